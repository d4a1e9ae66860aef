package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/backmassage/meshbatch/internal/term"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
		div = 1
		for i := 0; i <= exp; i++ {
			div *= unit
		}
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatDuration renders elapsed time compactly: "350ms", "4.2s", "2m05s",
// "1h02m03s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// StageLine formats one summary row: stage name, colored status, duration.
func StageLine(stage, status string, elapsed time.Duration) string {
	return fmt.Sprintf("%-12s %s %8s", stage, term.Paint(statusColor(status), fmt.Sprintf("%-9s", status)), FormatDuration(elapsed))
}

// Counts renders alternating label/value pairs as "  label=value ...".
// Zero values are omitted except the first.
func Counts(pairs ...interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		n, _ := pairs[i+1].(int)
		if n == 0 && i > 0 {
			continue
		}
		fmt.Fprintf(&b, "  %v=%d", pairs[i], n)
	}
	return b.String()
}

func statusColor(status string) string {
	switch status {
	case "success", "completed", "ready":
		return term.Green
	case "partial", "skipped":
		return term.Yellow
	case "failed", "cancelled":
		return term.Red
	}
	return term.Bold
}
