package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"buckethop/pkg/models"
)

const (
	maxExtensionRows = 10
	maxFailureRows   = 10
)

// renderSummary prints the end-of-run report: counters, byte totals,
// per-extension breakdown and the first few failures.
func renderSummary(w io.Writer, summary models.RunSummary) {
	duration := summary.EndTime.Sub(summary.StartTime).Round(100 * time.Millisecond)

	fmt.Fprintf(w, "\nTransfer %s in %s\n", summary.State, duration)
	fmt.Fprintf(w, "  Objects:      %d total, %d transferred, %d skipped, %d failed\n",
		summary.TotalObjects, summary.FilesTransferred, summary.FilesSkipped, summary.FilesFailed)
	fmt.Fprintf(w, "  Transferred:  %s of %s (%s skipped as up to date)\n",
		humanize.IBytes(uint64(summary.TotalBytesTransferred)),
		humanize.IBytes(uint64(summary.TotalBytes)),
		humanize.IBytes(uint64(summary.SkippedBytes)))

	if rate := averageRate(summary); rate > 0 {
		fmt.Fprintf(w, "  Average rate: %s/s\n", humanize.IBytes(uint64(rate)))
	}

	if len(summary.Extensions) > 0 {
		fmt.Fprintln(w, "\nBy extension:")
		for _, row := range topExtensions(summary.Extensions, maxExtensionRows) {
			fmt.Fprintf(w, "  %-16s %6d objects  %10s\n",
				row.ext, row.stat.Count, humanize.IBytes(uint64(row.stat.Bytes)))
		}
	}

	if len(summary.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d total):\n", len(summary.Failures))
		for i, failure := range summary.Failures {
			if i == maxFailureRows {
				fmt.Fprintf(w, "  ... and %d more\n", len(summary.Failures)-maxFailureRows)
				break
			}
			fmt.Fprintf(w, "  %s: %s\n", failure.Key, failure.Error)
		}
	}
}

func averageRate(summary models.RunSummary) float64 {
	elapsed := summary.EndTime.Sub(summary.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(summary.TotalBytesTransferred) / elapsed
}

type extensionRow struct {
	ext  string
	stat models.ExtensionStat
}

// topExtensions sorts by bytes descending, then name for a stable order.
func topExtensions(extensions map[string]models.ExtensionStat, limit int) []extensionRow {
	rows := make([]extensionRow, 0, len(extensions))
	for ext, stat := range extensions {
		rows = append(rows, extensionRow{ext: ext, stat: stat})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].stat.Bytes != rows[j].stat.Bytes {
			return rows[i].stat.Bytes > rows[j].stat.Bytes
		}
		return rows[i].ext < rows[j].ext
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
