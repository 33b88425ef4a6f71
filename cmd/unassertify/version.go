package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// modulePath names the build when the binary carries no module information.
const modulePath = "github.com/JakeChampion/unassertify"

// grammarPrefix selects the parser modules reported next to the build.
const grammarPrefix = "github.com/tree-sitter/"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the build and the grammars it parses with",
		Long: `Print the module path and version of this build, the Go version it was
built with, and the tree-sitter modules that decide what syntax is accepted.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			for _, line := range versionLines(info, ok) {
				cmd.Println(line)
			}
		},
	}
}

func versionLines(info *debug.BuildInfo, ok bool) []string {
	if !ok || info == nil {
		return []string{modulePath + " (no build information)"}
	}

	path := info.Main.Path
	if path == "" {
		path = modulePath
	}
	version := info.Main.Version
	if version == "" {
		version = "(devel)"
	}

	lines := []string{
		fmt.Sprintf("%s %s", path, version),
		"go " + strings.TrimPrefix(info.GoVersion, "go"),
	}
	for _, dep := range info.Deps {
		if strings.HasPrefix(dep.Path, grammarPrefix) {
			lines = append(lines, fmt.Sprintf("  %s %s", dep.Path, dep.Version))
		}
	}

	return lines
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
