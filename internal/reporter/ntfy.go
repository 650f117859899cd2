// Package reporter formats and delivers remediation notifications via ntfy.
package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/setevik/autoheal/internal/config"
	"github.com/setevik/autoheal/internal/fault"
	"github.com/setevik/autoheal/internal/store"
)

// History is consulted to suppress repeated failure alerts.
type History interface {
	CheckCooldown(task fault.Task, window time.Duration, threshold int) (store.CooldownResult, error)
	MarkNotified(id string) error
}

// NtfyReporter sends remediation notifications to an ntfy server.
type NtfyReporter struct {
	cfg     *config.Config
	client  *http.Client
	history History
}

// NewNtfy creates a new NtfyReporter. history may be nil, which disables
// cooldown suppression.
func NewNtfy(cfg *config.Config, history History) *NtfyReporter {
	return &NtfyReporter{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		history: history,
	}
}

// Notify reports a finished task if its outcome passes notify_on. Repeated
// failures of the same kind and source are suppressed within the cooldown
// window, except for one aggregate alert when the threshold is reached.
func (r *NtfyReporter) Notify(ctx context.Context, task fault.Task) error {
	if r.cfg.Ntfy.URL == "" {
		slog.Debug("ntfy URL not configured, skipping notification")
		return nil
	}
	if !r.cfg.ShouldNotify(task.Result.Success) {
		slog.Debug("task outcome not in notify_on, skipping", "task", task.ID, "status", task.Status)
		return nil
	}

	repeats := 0
	if !task.Result.Success && r.history != nil {
		cd, err := r.history.CheckCooldown(task, r.cfg.Cooldown.Window.Duration, r.cfg.Cooldown.AggregateThreshold)
		if err != nil {
			slog.Warn("cooldown check failed, alerting anyway", "error", err)
		} else if !cd.ShouldAlert {
			slog.Debug("alert suppressed by cooldown", "kind", task.Kind, "recent", cd.RecentCount)
			return nil
		} else if cd.Aggregated {
			repeats = cd.RecentCount + 1
		}
	}

	if err := r.Send(ctx, task, repeats); err != nil {
		return err
	}
	if r.history != nil {
		if err := r.history.MarkNotified(task.ID); err != nil {
			slog.Warn("failed to mark remediation notified", "task", task.ID, "error", err)
		}
	}
	return nil
}

// Send delivers a notification for task without filtering. repeats > 0
// marks an aggregate alert.
func (r *NtfyReporter) Send(ctx context.Context, task fault.Task, repeats int) error {
	title := FormatTitle(r.cfg.Instance.ID, task, repeats)
	body := FormatBody(r.cfg.Instance.ID, task)
	priority := r.cfg.NtfyPriority(string(task.Status))
	if err := r.post(ctx, title, body, priority, TagsForTask(task)); err != nil {
		return err
	}
	slog.Info("notification sent", "kind", task.Kind, "status", task.Status, "priority", priority)
	return nil
}

// SendDigest delivers a history summary.
func (r *NtfyReporter) SendDigest(ctx context.Context, d *DigestSummary) error {
	if r.cfg.Ntfy.URL == "" {
		return fmt.Errorf("ntfy url not configured")
	}
	return r.post(ctx, FormatDigestTitle(d.Since, d.Until), FormatDigest(d), "low", "bar_chart")
}

func (r *NtfyReporter) post(ctx context.Context, title, body, priority, tags string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Ntfy.URL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating ntfy request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
