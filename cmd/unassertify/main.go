// Command unassertify strips assertion calls and assertion module imports
// from JavaScript/TypeScript/TSX files, optionally emitting a source map
// composed with the one each file already carries.
//
// Usage:
//
//	unassertify run [flags] <file|dir> [file|dir...]
//	unassertify dump <file>
//	unassertify init
//	unassertify version
//
// Run flags:
//
//	-w            Write changes back to files (default: print to stdout)
//	--dry-run     Show which files would change without modifying them
//	--diff        Print a unified diff per changed file
//	--stats       Print a summary table
//	--source-map  Append an inline source map comment
//	--marker      Additional assertion module name (repeatable)
//	--pattern     Additional call pattern, e.g. "invariant(condition, [message])"
//	--signatures  YAML file with extra modules and patterns
//	-p, --parallel Number of files processed concurrently
package main

func main() {
	Execute()
}
