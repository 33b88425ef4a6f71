package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeChampion/unassertify/internal/transform"
)

// dumpCmd represents the dump command.
var dumpCmd = newDumpCmd()

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the parsed tree of a file as an S-expression",
		Long: `Parse a file with the grammar its extension selects and print the
S-expression of the tree. Useful when writing new call patterns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			source, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			sexp, err := transform.DumpTree(source, transform.LanguageForPath(path))
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}

			cmd.Println(sexp)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}
