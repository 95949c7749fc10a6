package main

import (
	"fmt"
	"io"

	"github.com/blurfx/unnest/internal/archive"
)

func printSummary(w io.Writer, st styles, stats archive.Stats, dryRun bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render("=== Processing Summary ==="))
	if dryRun {
		fmt.Fprintln(w, st.warning.Render("(dry run, nothing was extracted)"))
	}

	failed := fmt.Sprint(stats.FailedExtractions)
	if stats.FailedExtractions > 0 {
		failed = st.failure.Render(failed)
	}
	lines := []struct {
		label string
		value string
	}{
		{"Directories processed:", fmt.Sprint(stats.DirectoriesProcessed)},
		{"Compressed files found:", fmt.Sprint(stats.CompressedFilesFound)},
		{"Successful extractions:", st.success.Render(fmt.Sprint(stats.SuccessfulExtractions))},
		{"Failed extractions:", failed},
	}
	for _, l := range lines {
		fmt.Fprintln(w, st.label.Render(l.label), l.value)
	}
}
