package gc

import (
	"context"
	"sync"
)

// Handle is the one-shot completion handle a writer receives for each
// announced store. The coordinator resolves it once the write is safe to
// acknowledge; resolution is always an acknowledgement, never an error.
type Handle struct {
	once sync.Once
	ch   chan struct{}
}

func newHandle() *Handle {
	return &Handle{ch: make(chan struct{})}
}

func (h *Handle) resolve() {
	h.once.Do(func() { close(h.ch) })
}

// Done returns a channel that is closed once the write is acknowledged.
func (h *Handle) Done() <-chan struct{} {
	return h.ch
}

// Await blocks until the write is acknowledged or ctx ends.
func (h *Handle) Await(ctx context.Context) error {
	select {
	case <-h.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
