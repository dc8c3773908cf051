package util //nolint:revive // package name util hosts shared formatting helpers for CLI output

import "time"

// FormatProcessingDuration renders a job processing duration for display.
// Sub-millisecond values are shown as-is; longer values are truncated to
// millisecond precision. Non-positive durations render as "-".
func FormatProcessingDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}
