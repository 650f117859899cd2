package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// SupervisedStream restarts a stream whenever it ends.
type SupervisedStream struct {
	factory     func() Stream
	restartWait time.Duration
	maxRestarts int
}

// NewSupervisedStream wraps factory. After a failure it waits restartWait
// before creating a new stream. maxRestarts of 0 means unlimited.
func NewSupervisedStream(factory func() Stream, restartWait time.Duration, maxRestarts int) *SupervisedStream {
	return &SupervisedStream{
		factory:     factory,
		restartWait: restartWait,
		maxRestarts: maxRestarts,
	}
}

// Signals forwards signals across restarts. The channel is closed when ctx
// is cancelled or max restarts are exceeded.
func (s *SupervisedStream) Signals(ctx context.Context) (<-chan fault.Signal, error) {
	out := make(chan fault.Signal, 64)

	go func() {
		defer close(out)

		restarts := 0
		for {
			if s.maxRestarts > 0 && restarts >= s.maxRestarts {
				slog.Error("stream exceeded max restarts", "max", s.maxRestarts)
				return
			}

			stream := s.factory()
			signals, err := stream.Signals(ctx)
			if err != nil {
				slog.Error("failed to start stream", "error", err, "restart_count", restarts)
				if !s.sleep(ctx) {
					return
				}
				restarts++
				continue
			}

			if !forward(ctx, signals, out) {
				stream.Stop()
				return
			}

			slog.Warn("stream ended, restarting", "restart_count", restarts)
			stream.Stop()
			restarts++
			if !s.sleep(ctx) {
				return
			}
		}
	}()

	return out, nil
}

// Stop is a no-op; cancel the context passed to Signals instead.
func (s *SupervisedStream) Stop() {}

func (s *SupervisedStream) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.restartWait):
		return true
	}
}

// forward copies in to out until in closes. It reports false if ctx was
// cancelled first.
func forward(ctx context.Context, in <-chan fault.Signal, out chan<- fault.Signal) bool {
	for {
		select {
		case sig, ok := <-in:
			if !ok {
				return true
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}
