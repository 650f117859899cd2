// Package fault defines the core data model shared by the autoheal engine:
// signals, classifications, remediation results and tasks.
package fault

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a class of fault. The vocabulary is open; the constants below
// are the kinds the default pattern table produces.
type Kind string

const (
	KindConnectionRefused Kind = "connection-refused"
	KindModuleMissing     Kind = "module-missing"
	KindSyntaxError       Kind = "syntax-error"
	KindPermissionDenied  Kind = "permission-denied"
	KindOutOfMemory       Kind = "out-of-memory"
	KindPortConflict      Kind = "port-conflict"
	KindTimeout           Kind = "timeout"
	KindFileMissing       Kind = "file-missing"
	KindUnknown           Kind = "unknown"
)

const (
	// MatchConfidence is reported for every pattern match.
	MatchConfidence = 0.9
	// UnknownConfidence is reported when no pattern matches.
	UnknownConfidence = 0.1
)

// Label returns a human-readable label for the kind.
func (k Kind) Label() string {
	switch k {
	case KindConnectionRefused:
		return "Connection Refused"
	case KindModuleMissing:
		return "Module Missing"
	case KindSyntaxError:
		return "Syntax Error"
	case KindPermissionDenied:
		return "Permission Denied"
	case KindOutOfMemory:
		return "Out of Memory"
	case KindPortConflict:
		return "Port Conflict"
	case KindTimeout:
		return "Timeout"
	case KindFileMissing:
		return "File Missing"
	case KindUnknown:
		return "Unknown"
	default:
		return string(k)
	}
}

// Signal is a raw log line captured from a source.
type Signal struct {
	Text       string
	CapturedAt time.Time
	Source     string
}

// Classification is the diagnosis for a single signal.
type Classification struct {
	Kind         Kind
	Confidence   float64
	ClassifiedAt time.Time
}

// Unknown returns the classification used when no pattern matches.
func Unknown(at time.Time) Classification {
	return Classification{Kind: KindUnknown, Confidence: UnknownConfidence, ClassifiedAt: at}
}

// IsUnknown reports whether the classification carries no actionable kind.
func (c Classification) IsUnknown() bool {
	return c.Kind == KindUnknown || c.Kind == ""
}

// Result is the outcome of a remediation action.
type Result struct {
	Success bool
	Message string
}

// Status tracks a remediation task through its lifetime.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Task is one admitted remediation run.
type Task struct {
	ID         string
	Kind       Kind
	Signal     Signal
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status
	Result     Result
}

// NewTask creates a pending task with a generated UUID.
func NewTask(kind Kind, sig Signal) *Task {
	return &Task{
		ID:     uuid.NewString(),
		Kind:   kind,
		Signal: sig,
		Status: StatusPending,
	}
}

// Finish records the result and moves the task to its terminal status.
func (t *Task) Finish(res Result, at time.Time) {
	t.Result = res
	t.FinishedAt = at
	if res.Success {
		t.Status = StatusSucceeded
	} else {
		t.Status = StatusFailed
	}
}

// Duration returns how long the task ran, or zero if it has not finished.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
