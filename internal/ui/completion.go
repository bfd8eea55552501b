package ui

import (
	"fmt"

	"github.com/bamsammich/mirror/internal/stats"
)

// sessionSummary builds the line printed when mirroring stops from the
// session totals.
// Format: stopped ✓  passes 120  uploaded 48  size 2.1 MiB  avg 12.0 KB/s  deleted 3  time 4m 00s  errors 0
func sessionSummary(t stats.Snapshot) string {
	avgSpeed := 0.0
	if t.Elapsed.Seconds() > 0 {
		avgSpeed = float64(t.BytesUploaded) / t.Elapsed.Seconds()
	}

	icon := "✓"
	if t.Errors() > 0 {
		icon = "✗"
	}

	return fmt.Sprintf("stopped %s  passes %s  uploaded %s  size %s  avg %s  deleted %s  time %s  errors %d",
		icon,
		FormatCount(t.Passes),
		FormatCount(t.FilesUploaded),
		FormatBytes(t.BytesUploaded),
		FormatRate(avgSpeed),
		FormatCount(t.EntriesDeleted),
		FormatDuration(t.Elapsed),
		t.Errors(),
	)
}
