package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/JakeChampion/unassertify/internal/signature"
	"github.com/JakeChampion/unassertify/internal/stage"
)

const runLongDescription = `Strip assertions from the given files and directories.

Directories are walked for files with a matching extension; hidden
directories, node_modules, vendor, dist and build are skipped. Without -w
the stripped text of every changed file is printed to stdout.`

var (
	writeFlag       bool
	dryRunFlag      bool
	diffFlag        bool
	statsFlag       bool
	recursiveFlag   bool
	sourceMapFlag   bool
	markerFlags     []string
	patternFlags    []string
	signaturesFlag  string
	extFlags        []string
	runParallelFlag int
)

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "run [flags] <file|dir> [file|dir...]",
		Short:        "Strip assertions from files",
		Long:         runLongDescription,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStageFromConfig(slog.Default())
			if err != nil {
				return err
			}

			files, err := collectPaths(args, parseExtensions(viper.GetStringSlice(extConfigKey)), recursiveFlag)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				cmd.PrintErrln("no matching files found")
				return nil
			}

			results := processFiles(cmd.Context(), s, files, viper.GetInt(runParallelConfigKey))

			return report(cmd.OutOrStdout(), cmd.ErrOrStderr(), results, reportOptions{
				write:  writeFlag,
				dryRun: dryRunFlag,
				diff:   diffFlag,
				stats:  statsFlag,
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&writeFlag, "write", "w", false, "write result back to source files")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "show which files would change without modifying them")
	cmd.Flags().BoolVar(&diffFlag, "diff", false, "print a unified diff for every changed file")
	cmd.Flags().BoolVar(&statsFlag, "stats", false, "print a summary table")
	cmd.Flags().BoolVar(&recursiveFlag, "recursive", true, "recurse into directories")

	cmd.Flags().BoolVar(&sourceMapFlag, sourceMapFlagName, viper.GetBool(sourceMapConfigKey), "append an inline source map composed with any incoming one")
	bindFlagToConfig(cmd.Flags().Lookup(sourceMapFlagName), sourceMapConfigKey)

	cmd.Flags().StringArrayVar(&markerFlags, markerFlagName, viper.GetStringSlice(markersConfigKey), "additional assertion module name (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(markerFlagName), markersConfigKey)

	cmd.Flags().StringArrayVar(&patternFlags, patternFlagName, viper.GetStringSlice(patternsConfigKey), "additional call pattern such as \"invariant(condition, [message])\" (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(patternFlagName), patternsConfigKey)

	cmd.Flags().StringVar(&signaturesFlag, signaturesFlagName, viper.GetString(signaturesConfigKey), "YAML file with extra assertion modules and patterns")
	bindFlagToConfig(cmd.Flags().Lookup(signaturesFlagName), signaturesConfigKey)

	cmd.Flags().StringSliceVar(&extFlags, extFlagName, viper.GetStringSlice(extConfigKey), "file extensions to process when walking directories")
	bindFlagToConfig(cmd.Flags().Lookup(extFlagName), extConfigKey)

	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of files processed concurrently")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)
}

// newStageFromConfig builds the transform stage from the merged flag, env
// and file configuration.
func newStageFromConfig(logger *slog.Logger) (*stage.Stage, error) {
	set, err := loadSignatures(viper.GetString(signaturesConfigKey))
	if err != nil {
		return nil, err
	}

	return stage.New(stage.Config{
		TrackPositions: viper.GetBool(sourceMapConfigKey),
		ExtraMarkers:   viper.GetStringSlice(markersConfigKey),
		Patterns:       viper.GetStringSlice(patternsConfigKey),
		Signatures:     set,
		Logger:         logger,
	})
}

// loadSignatures returns the default set extended by the file at path, or
// nil when no file is configured.
func loadSignatures(path string) (*signature.Set, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	file, err := signature.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	set, err := file.Apply(signature.Default())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return set, nil
}

// collectPaths expands the command arguments into the list of files to
// process. Files named explicitly are kept whatever their extension.
func collectPaths(args []string, extSet map[string]bool, recursive bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		dirFiles, err := collectFiles(arg, extSet, recursive)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
		files = append(files, dirFiles...)
	}

	return files, nil
}

// collectFiles walks a directory and returns all files matching the extension set.
func collectFiles(root string, extSet map[string]bool, recursive bool) ([]string, error) {
	var files []string

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			name := d.Name()
			if name != "." && strings.HasPrefix(name, ".") && path != root {
				return fs.SkipDir
			}
			if name == "node_modules" || name == "vendor" || name == "dist" || name == "build" {
				return fs.SkipDir
			}
			if !recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}

		if extSet[filepath.Ext(path)] {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, err
	}
	return files, nil
}

// parseExtensions turns extension values, each possibly comma-separated,
// into a set of dotted extensions.
func parseExtensions(values []string) map[string]bool {
	m := make(map[string]bool)
	for _, value := range values {
		for _, ext := range strings.Split(value, ",") {
			ext = strings.TrimSpace(ext)
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			m[ext] = true
		}
	}
	return m
}

// unitResult is the outcome of processing one file.
type unitResult struct {
	path   string
	before []byte
	after  []byte
	err    error
}

func (r unitResult) changed() bool {
	return r.err == nil && !bytes.Equal(r.before, r.after)
}

func (r unitResult) status() string {
	switch {
	case r.err != nil:
		return "failed"
	case r.changed():
		return "changed"
	}
	return "unchanged"
}

// processFiles runs every file through s with at most parallel files in
// flight. A failing file is recorded in its result and never stops the
// others. Results keep the order of files.
func processFiles(ctx context.Context, s *stage.Stage, files []string, parallel int) []unitResult {
	results := make([]unitResult, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	if parallel > 0 {
		group.SetLimit(parallel)
	}

	for i, path := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				results[i] = unitResult{path: path, err: err}
				return nil
			}
			results[i] = processFile(s, path)
			return nil
		})
	}

	_ = group.Wait()

	return results
}

// processFile streams one file through a stage processor.
func processFile(s *stage.Stage, path string) unitResult {
	result := unitResult{path: path}

	f, err := os.Open(path)
	if err != nil {
		result.err = fmt.Errorf("reading %s: %w", path, err)
		return result
	}
	defer f.Close()

	var before, after bytes.Buffer
	p := s.NewProcessor(path, &unitSink{&after})
	if _, err := io.Copy(p, io.TeeReader(f, &before)); err != nil {
		result.err = fmt.Errorf("reading %s: %w", path, err)
		return result
	}
	if err := p.Close(); err != nil {
		result.err = err
		return result
	}

	result.before = before.Bytes()
	result.after = after.Bytes()
	return result
}

// unitSink collects the single write a processor emits.
type unitSink struct {
	*bytes.Buffer
}

func (unitSink) Close() error { return nil }

type reportOptions struct {
	write  bool
	dryRun bool
	diff   bool
	stats  bool
}

// report prints or writes the results and returns the joined per-file errors.
func report(stdout, stderr io.Writer, results []unitResult, opts reportOptions) error {
	var (
		errs    []error
		changed int
	)

	for _, r := range results {
		if r.err != nil {
			slog.Error("unit failed", "unit", r.path, "error", r.err)
			fmt.Fprintf(stderr, "ERROR: %v\n", r.err)
			errs = append(errs, r.err)
			continue
		}

		if !r.changed() {
			slog.Debug("unit unchanged", "unit", r.path)
			continue
		}
		changed++

		if opts.diff {
			if err := writeDiff(stdout, r); err != nil {
				errs = append(errs, fmt.Errorf("diffing %s: %w", r.path, err))
			}
		}

		switch {
		case opts.dryRun:
			fmt.Fprintf(stdout, "  %s\n", r.path)
		case opts.write:
			if err := writeBack(r); err != nil {
				fmt.Fprintf(stderr, "ERROR: %v\n", err)
				errs = append(errs, err)
				continue
			}
			slog.Info("unit rewritten", "unit", r.path)
			fmt.Fprintf(stdout, "  ✓ %s\n", r.path)
		case !opts.diff:
			_, _ = stdout.Write(r.after)
		}
	}

	if opts.stats {
		fmt.Fprint(stdout, renderStats(results))
	}

	if opts.dryRun || opts.write {
		fmt.Fprintf(stderr, "\n%d of %d file(s) changed\n", changed, len(results))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d file(s) failed: %w", len(errs), errors.Join(errs...))
	}

	return nil
}

// writeBack replaces the file with the stripped text, keeping its mode.
func writeBack(r unitResult) error {
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", r.path, err)
	}

	if err := os.WriteFile(r.path, r.after, info.Mode()); err != nil {
		return fmt.Errorf("writing %s: %w", r.path, err)
	}

	return nil
}
