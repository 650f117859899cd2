package fault

import (
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	sig := Signal{Text: "Error: ECONNREFUSED 127.0.0.1:5432", CapturedAt: time.Now()}
	task := NewTask(KindConnectionRefused, sig)

	if task.ID == "" {
		t.Error("ID should not be empty")
	}
	if task.Kind != KindConnectionRefused {
		t.Errorf("Kind = %q, want %q", task.Kind, KindConnectionRefused)
	}
	if task.Status != StatusPending {
		t.Errorf("Status = %q, want %q", task.Status, StatusPending)
	}
	if task.Signal.Text != sig.Text {
		t.Errorf("Signal.Text = %q", task.Signal.Text)
	}
}

func TestNewTaskUniqueIDs(t *testing.T) {
	a := NewTask(KindTimeout, Signal{})
	b := NewTask(KindTimeout, Signal{})
	if a.ID == b.ID {
		t.Error("two tasks should have different IDs")
	}
}

func TestTaskFinish(t *testing.T) {
	start := time.Date(2026, 2, 19, 14, 0, 0, 0, time.UTC)

	task := NewTask(KindTimeout, Signal{})
	task.StartedAt = start
	task.Finish(Result{Success: true, Message: "ok"}, start.Add(2*time.Second))
	if task.Status != StatusSucceeded {
		t.Errorf("Status = %q, want %q", task.Status, StatusSucceeded)
	}
	if task.Duration() != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", task.Duration())
	}

	failed := NewTask(KindTimeout, Signal{})
	failed.Finish(Result{Message: "boom"}, start)
	if failed.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", failed.Status, StatusFailed)
	}
	if failed.Duration() != 0 {
		t.Errorf("Duration without start = %v, want 0", failed.Duration())
	}
}

func TestKindLabel(t *testing.T) {
	tests := []struct {
		kind  Kind
		label string
	}{
		{KindConnectionRefused, "Connection Refused"},
		{KindOutOfMemory, "Out of Memory"},
		{KindUnknown, "Unknown"},
		{Kind("disk-full"), "disk-full"},
	}

	for _, tt := range tests {
		if got := tt.kind.Label(); got != tt.label {
			t.Errorf("Kind(%q).Label() = %q, want %q", tt.kind, got, tt.label)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Status(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestUnknown(t *testing.T) {
	c := Unknown(time.Now())
	if !c.IsUnknown() {
		t.Error("Unknown() should report IsUnknown")
	}
	if c.Confidence > 0.1 {
		t.Errorf("Confidence = %f, want <= 0.1", c.Confidence)
	}
}
