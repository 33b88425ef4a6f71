package main

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/pmezard/go-difflib/difflib"
)

// writeDiff prints a unified diff between the input and output of r.
func writeDiff(w io.Writer, r unitResult) error {
	name := filepath.ToSlash(r.path)
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(r.before)),
		B:        difflib.SplitLines(string(r.after)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}

	return difflib.WriteUnifiedDiff(w, diff)
}

func renderStats(results []unitResult) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Status", "Bytes In", "Bytes Out"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	var changed, bytesIn, bytesOut int

	for _, r := range results {
		if r.changed() {
			changed++
		}
		bytesIn += len(r.before)
		bytesOut += len(r.after)

		table.Append([]string{
			r.path,
			r.status(),
			fmt.Sprintf("%d", len(r.before)),
			fmt.Sprintf("%d", len(r.after)),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(results)),
		fmt.Sprintf("%d changed", changed),
		fmt.Sprintf("%d", bytesIn),
		fmt.Sprintf("%d", bytesOut),
	})

	table.Render()

	return tableBuffer.String()
}
