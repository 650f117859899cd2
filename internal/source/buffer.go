package source

import (
	"context"
	"log/slog"
	"sync"

	"github.com/setevik/autoheal/internal/fault"
)

// DefaultBufferSize bounds signals held between polls.
const DefaultBufferSize = 1024

// Buffer collects signals from a Stream and hands them out on Poll. When
// full it drops the oldest signal.
type Buffer struct {
	name   string
	stream Stream
	max    int

	mu      sync.Mutex
	pending []fault.Signal
	dropped int64
	done    chan struct{}
}

// NewBuffer creates a buffer over stream holding at most max signals.
func NewBuffer(name string, stream Stream, max int) *Buffer {
	if max <= 0 {
		max = DefaultBufferSize
	}
	return &Buffer{name: name, stream: stream, max: max}
}

func (b *Buffer) Name() string { return b.name }

// Start begins consuming the stream until ctx is cancelled or the stream
// closes.
func (b *Buffer) Start(ctx context.Context) error {
	signals, err := b.stream.Signals(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for sig := range signals {
			b.push(sig)
		}
		slog.Debug("buffered stream closed", "source", b.name)
	}()
	return nil
}

// Done is closed once the underlying stream has closed. It is nil before
// Start.
func (b *Buffer) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

func (b *Buffer) push(sig fault.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= b.max {
		b.pending = b.pending[1:]
		b.dropped++
		if b.dropped == 1 || b.dropped%100 == 0 {
			slog.Warn("signal buffer full, dropping oldest", "source", b.name, "dropped", b.dropped)
		}
	}
	b.pending = append(b.pending, sig)
}

// Poll returns and clears the buffered signals.
func (b *Buffer) Poll(context.Context) ([]fault.Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out, nil
}

// Dropped returns how many signals were discarded because the buffer was
// full.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
