package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/claimsurvival/internal/survival"
	"github.com/dbsmedya/claimsurvival/internal/types"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

const (
	outputText = "text"
	outputJSON = "json"
)

func checkOutputFormat(format string) error {
	if format != outputText && format != outputJSON {
		return fmt.Errorf("invalid output format %q: must be %s or %s", format, outputText, outputJSON)
	}
	return nil
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", color.Bold.Sprint(title))
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", color.Cyan.Sprint(title))
	fmt.Fprintln(outputWriter, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// printRows prints label/value rows with labels padded to a common display width.
func printRows(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if w := runewidth.StringWidth(r[0]); w > width {
			width = w
		}
	}
	for _, r := range rows {
		fmt.Fprintf(outputWriter, "  %s  %s\n", runewidth.FillRight(r[0], width), r[1])
	}
}

// printCounts prints one row per category followed by a total row.
func printCounts(counts []types.CategoryCount, total int64) {
	rows := make([][2]string, 0, len(counts)+1)
	for _, c := range counts {
		rows = append(rows, [2]string{c.Category, fmt.Sprintf("%d", c.Count)})
	}
	rows = append(rows, [2]string{"total", fmt.Sprintf("%d", total)})
	printRows(rows)
}

// printReport writes report in the requested format.
func printReport(report *survival.Report, format string) error {
	if format == outputJSON {
		enc := json.NewEncoder(outputWriter)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printHeader("Survival Analysis: %s", report.Title)

	fmt.Fprintln(outputWriter)
	printSection("Raw counts (duplicates included)")
	printCounts(report.SurvivalTotal, report.CountTotal)

	fmt.Fprintln(outputWriter)
	printSection("Unique counts (highest priority wins)")
	printCounts(report.SurvivalUnique, report.CountUnique)

	if lost := report.CountTotal - report.CountUnique; lost > 0 {
		fmt.Fprintln(outputWriter)
		fmt.Fprintf(outputWriter, "  %s\n", color.Yellow.Sprintf("%d claims were counted more than once or could not be binned", lost))
	}
	return nil
}
