package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// CooldownResult describes whether a finished remediation should be
// reported.
type CooldownResult struct {
	// ShouldAlert is true if this task should trigger a notification.
	ShouldAlert bool
	// RecentCount is the number of earlier failures of the same kind from the
	// same source within the window.
	RecentCount int
	// Aggregated is true when alerts were suppressed during the window but
	// the threshold was just reached, so a summary alert should fire.
	Aggregated bool
}

// CheckCooldown decides whether a failed task is worth another alert, based
// on how many failures of the same kind from the same source were recorded
// within window before it. The task itself is excluded from the count.
//
//   - no earlier failures: alert
//   - fewer than threshold: suppress
//   - exactly threshold: alert as aggregated (remediation keeps failing)
//   - more than threshold: suppress
func (d *DB) CheckCooldown(task fault.Task, window time.Duration, threshold int) (CooldownResult, error) {
	since := formatTime(recordedAt(task).Add(-window))

	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM remediations
		WHERE instance_id = ? AND kind = ? AND source = ? AND success = FALSE
		AND finished_at >= ? AND id != ?`,
		d.instance, string(task.Kind), task.Signal.Source, since, task.ID,
	).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return CooldownResult{}, fmt.Errorf("checking cooldown: %w", err)
	}

	result := CooldownResult{RecentCount: count}
	switch {
	case count == 0:
		result.ShouldAlert = true
	case count == threshold:
		result.ShouldAlert = true
		result.Aggregated = true
	}

	slog.Debug("cooldown check",
		"kind", task.Kind,
		"source", task.Signal.Source,
		"recent_count", count,
		"threshold", threshold,
		"should_alert", result.ShouldAlert,
	)
	return result, nil
}
