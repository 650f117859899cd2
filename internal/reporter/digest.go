package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/setevik/autoheal/internal/store"
)

// DigestSummary holds remediation outcomes for a period.
type DigestSummary struct {
	InstanceID string
	Since      time.Time
	Until      time.Time

	Total     int
	Succeeded int
	Failed    int
	Kinds     []store.KindStat
}

// BuildDigest aggregates per-kind stats into a DigestSummary.
func BuildDigest(instanceID string, stats []store.KindStat, since, until time.Time) *DigestSummary {
	d := &DigestSummary{
		InstanceID: instanceID,
		Since:      since,
		Until:      until,
		Kinds:      stats,
	}
	for _, s := range stats {
		d.Total += s.Total
		d.Succeeded += s.Succeeded
		d.Failed += s.Failed
	}
	return d
}

// SuccessRate returns the share of successful remediations in percent, or
// zero when there were none.
func (d *DigestSummary) SuccessRate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Succeeded) / float64(d.Total) * 100
}

// FormatDigest formats a DigestSummary as human-readable text suitable for
// ntfy or stdout output.
func FormatDigest(d *DigestSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s ===\n", d.InstanceID)
	fmt.Fprintf(&b, "Period: %s - %s\n\n",
		d.Since.Local().Format("Jan 02 15:04"),
		d.Until.Local().Format("Jan 02 15:04"))

	if d.Total == 0 {
		b.WriteString("No remediations.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Remediations: %d (%d succeeded, %d failed, %.0f%% success)\n\n",
		d.Total, d.Succeeded, d.Failed, d.SuccessRate())

	for _, k := range d.Kinds {
		fmt.Fprintf(&b, "%-20s %4d", k.Kind.Label()+":", k.Total)
		if k.Failed > 0 {
			fmt.Fprintf(&b, "  (\u00d7%d failed)", k.Failed)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDigestTitle generates the ntfy title for a digest notification.
func FormatDigestTitle(since, until time.Time) string {
	return fmt.Sprintf("\U0001f4ca autoheal digest (%s-%s)",
		since.Local().Format("Jan 02"),
		until.Local().Format("Jan 02"))
}
