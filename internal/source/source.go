// Package source produces signals for the scan loop: plain-text log files
// tailed between polls and line streams such as the systemd journal.
package source

import (
	"context"

	"github.com/setevik/autoheal/internal/fault"
)

// Stream pushes signals as they arrive. The channel is closed when the
// stream ends or ctx is cancelled. Buffer turns a Stream into something the
// scan loop can poll.
type Stream interface {
	Signals(ctx context.Context) (<-chan fault.Signal, error)
	Stop()
}
