package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emeight/alumni-outreach/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// printRecordBox renders one candidate outcome as a bordered key/value box.
func printRecordBox(w io.Writer, rec models.CandidateRecord) {
	pairs := [][2]string{
		{"uid", strconv.FormatInt(rec.UID, 10)},
		{"name", rec.Name},
		{"url", rec.URL},
		{"status", string(rec.Status)},
		{"created_at", rec.CreatedAt.Format(timeLayout)},
		{"updated_at", rec.UpdatedAt.Format(timeLayout)},
	}

	maxKey, maxVal := 0, 0
	for _, p := range pairs {
		if len(p[0]) > maxKey {
			maxKey = len(p[0])
		}
		if len(p[1]) > maxVal {
			maxVal = len(p[1])
		}
	}

	border := "+" + strings.Repeat("-", maxKey+maxVal+5) + "+"

	fmt.Fprintln(w, border)
	for _, p := range pairs {
		fmt.Fprintf(w, "| %-*s : %-*s |\n", maxKey, p[0], maxVal, p[1])
	}
	fmt.Fprintln(w, border)
}

// printCounts prints the final per-status tallies, on every termination
// path.
func printCounts(summary models.RunSummary) {
	fmt.Printf("Run complete in %.2f seconds.\n", summary.ElapsedSeconds)
	fmt.Println("Status Counts:")
	fmt.Printf("  Sent: %d\n", summary.Counts.Sent)
	fmt.Printf("  Viewed: %d\n", summary.Counts.Viewed)
	fmt.Printf("  Skipped: %d\n", summary.Counts.Skipped)
}
