package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeChampion/unassertify/internal/sourcemap"
	"github.com/JakeChampion/unassertify/internal/stage"
	"github.com/JakeChampion/unassertify/internal/transform"
)

const (
	withAssertions = "var assert = require('assert');\nfunction f(x){ assert(x > 0); return x; }"
	stripped       = "function f(x){ return x; }"
)

// chdirTemp moves the test into a fresh directory so the log file and
// config lookups stay out of the package directory.
func chdirTemp(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	originalWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(originalWD)) })

	return tempDir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeRun(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"run"}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseExtensions(t *testing.T) {
	got := parseExtensions([]string{".js, ts", "", ".mjs,,", " tsx "})
	assert.Equal(t, map[string]bool{".js": true, ".ts": true, ".mjs": true, ".tsx": true}, got)
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"a.js",
		"b.ts",
		"readme.md",
		"nested/deep/c.mjs",
		"node_modules/pkg/index.js",
		".git/hooks/d.js",
		"dist/bundle.js",
		"build/out.js",
		"vendor/v.js",
	} {
		writeFile(t, filepath.Join(root, p), "x")
	}
	exts := parseExtensions(defaultExtensions)

	files, err := collectFiles(root, exts, true)
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{
		filepath.Join(root, "a.js"),
		filepath.Join(root, "b.ts"),
		filepath.Join(root, "nested/deep/c.mjs"),
	}, files)

	files, err = collectFiles(root, exts, false)
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{filepath.Join(root, "a.js"), filepath.Join(root, "b.ts")}, files)
}

func TestCollectPaths(t *testing.T) {
	root := t.TempDir()
	explicit := writeFile(t, filepath.Join(root, "data.json"), "{}")
	writeFile(t, filepath.Join(root, "src/a.js"), "x")

	files, err := collectPaths([]string{explicit, filepath.Join(root, "src")}, parseExtensions(defaultExtensions), true)
	require.NoError(t, err)
	assert.Equal(t, []string{explicit, filepath.Join(root, "src/a.js")}, files)

	_, err = collectPaths([]string{filepath.Join(root, "missing")}, nil, true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessFiles_FailuresDoNotStopOthers(t *testing.T) {
	root := t.TempDir()
	files := []string{
		writeFile(t, filepath.Join(root, "a.js"), withAssertions),
		writeFile(t, filepath.Join(root, "broken.js"), "assert(;"),
		writeFile(t, filepath.Join(root, "plain.js"), "run();\n"),
		filepath.Join(root, "gone.js"),
	}

	s, err := stage.New(stage.Config{})
	require.NoError(t, err)

	results := processFiles(context.Background(), s, files, 2)
	require.Len(t, results, len(files))

	for i, r := range results {
		assert.Equal(t, files[i], r.path)
	}

	assert.Equal(t, "changed", results[0].status())
	assert.Equal(t, stripped, string(results[0].after))
	assert.Equal(t, withAssertions, string(results[0].before))

	assert.Equal(t, "failed", results[1].status())
	assert.ErrorIs(t, results[1].err, transform.ErrParse)

	assert.Equal(t, "unchanged", results[2].status())

	assert.Equal(t, "failed", results[3].status())
	assert.ErrorIs(t, results[3].err, os.ErrNotExist)
}

func TestProcessFiles_CancelledContext(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, filepath.Join(root, "a.js"), withAssertions)

	s, err := stage.New(stage.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := processFiles(ctx, s, []string{path}, 1)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].err, context.Canceled)
}

func TestRunCmd_PrintsStrippedText(t *testing.T) {
	dir := chdirTemp(t)
	path := writeFile(t, filepath.Join(dir, "app.js"), withAssertions)
	writeFile(t, filepath.Join(dir, "plain.js"), "run();\n")

	stdout, _, err := executeRun(t, dir)
	require.NoError(t, err)
	assert.Equal(t, stripped, stdout)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, withAssertions, string(content))
}

func TestRunCmd_WriteKeepsMode(t *testing.T) {
	dir := chdirTemp(t)
	path := writeFile(t, filepath.Join(dir, "app.js"), withAssertions)
	require.NoError(t, os.Chmod(path, 0o600))

	stdout, stderr, err := executeRun(t, "-w", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ "+path)
	assert.Contains(t, stderr, "1 of 1 file(s) changed")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, stripped, string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRunCmd_DryRun(t *testing.T) {
	dir := chdirTemp(t)
	path := writeFile(t, filepath.Join(dir, "app.js"), withAssertions)
	writeFile(t, filepath.Join(dir, "plain.js"), "run();\n")

	stdout, stderr, err := executeRun(t, "--dry-run", dir)
	require.NoError(t, err)
	assert.Equal(t, "  "+path+"\n", stdout)
	assert.Contains(t, stderr, "1 of 2 file(s) changed")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, withAssertions, string(content))
}

func TestRunCmd_Diff(t *testing.T) {
	dir := chdirTemp(t)
	path := writeFile(t, filepath.Join(dir, "app.js"), "var assert = require('assert');\nassert(ready);\nstart();\n")

	stdout, _, err := executeRun(t, "--diff", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "--- a/"+filepath.ToSlash(path))
	assert.Contains(t, stdout, "+++ b/"+filepath.ToSlash(path))
	assert.Contains(t, stdout, "-var assert = require('assert');\n")
	assert.Contains(t, stdout, "-assert(ready);\n")
	assert.Contains(t, stdout, " start();\n")
	assert.NotContains(t, stdout, "+start();")
}

func TestRunCmd_Stats(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, filepath.Join(dir, "app.js"), withAssertions)
	writeFile(t, filepath.Join(dir, "plain.js"), "run();\n")

	stdout, _, err := executeRun(t, "--stats", "--dry-run", dir)
	require.NoError(t, err)
	var appRow, plainRow string
	for _, line := range strings.Split(stdout, "\n") {
		switch {
		case strings.Contains(line, "app.js") && strings.Contains(line, "|"):
			appRow = line
		case strings.Contains(line, "plain.js"):
			plainRow = line
		}
	}
	assert.Contains(t, appRow, "changed")
	assert.NotContains(t, appRow, "unchanged")
	assert.Contains(t, plainRow, "unchanged")
}

func TestRunCmd_FailureReportedOthersWritten(t *testing.T) {
	dir := chdirTemp(t)
	good := writeFile(t, filepath.Join(dir, "good.js"), withAssertions)
	writeFile(t, filepath.Join(dir, "broken.js"), "assert(;")

	_, stderr, err := executeRun(t, "-w", "--parallel", "1", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrParse)
	assert.Contains(t, stderr, "broken.js")

	content, err := os.ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, stripped, string(content))
}

func TestRunCmd_SourceMap(t *testing.T) {
	dir := chdirTemp(t)
	path := writeFile(t, filepath.Join(dir, "app.js"), withAssertions)

	stdout, _, err := executeRun(t, "--source-map", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, stripped+"\n"+sourcemap.CommentPrefix), stdout)

	m, err := sourcemap.FromSource([]byte(stdout))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{path}, m.Sources)
}

func TestRunCmd_Marker(t *testing.T) {
	dir := chdirTemp(t)
	path := writeFile(t, filepath.Join(dir, "app.js"), "const check = require('my-assert');\ncheck(x);\nrun();\n")

	stdout, _, err := executeRun(t, "--marker", "my-assert", path)
	require.NoError(t, err)
	assert.Equal(t, "run();\n", stdout)
}

func TestRunCmd_SignatureFile(t *testing.T) {
	dir := chdirTemp(t)
	sigs := writeFile(t, filepath.Join(dir, "signatures.yaml"),
		"modules:\n  - invariant\npatterns:\n  - invariant(condition, [message])\n")
	path := writeFile(t, filepath.Join(dir, "app.js"), "const invariant = require('invariant');\ninvariant(ok, 'ok');\nrun();\n")

	stdout, _, err := executeRun(t, "--signatures", sigs, path)
	require.NoError(t, err)
	assert.Equal(t, "run();\n", stdout)
}

func TestRunCmd_BadSignatureFile(t *testing.T) {
	dir := chdirTemp(t)
	sigs := writeFile(t, filepath.Join(dir, "signatures.yaml"), "unknown: true\n")
	path := writeFile(t, filepath.Join(dir, "app.js"), withAssertions)

	_, _, err := executeRun(t, "--signatures", sigs, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signatures.yaml")
}

func TestRunCmd_RequiresArgs(t *testing.T) {
	chdirTemp(t)

	_, _, err := executeRun(t)
	require.Error(t, err)
}

func TestRunCmd_NoMatchingFiles(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, filepath.Join(dir, "readme.md"), "assert(x)")

	stdout, stderr, err := executeRun(t, dir)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "no matching files found")
}
