package reporter

import (
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// TestTask returns a synthetic finished task for checking ntfy
// connectivity.
func TestTask() fault.Task {
	now := time.Now()
	task := fault.NewTask(fault.KindUnknown, fault.Signal{
		Text:       "This is a test notification to verify ntfy connectivity.\nIf you see this, autoheal is configured correctly.",
		CapturedAt: now,
		Source:     "test",
	})
	task.StartedAt = now
	task.Finish(fault.Result{Success: true, Message: "Test notification from autoheal"}, now)
	return *task
}
