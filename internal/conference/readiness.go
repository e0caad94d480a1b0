package conference

import (
	"context"
	"fmt"
	"sync"
)

// Readiness is a one-shot signal that the conferencing engine has loaded and
// joined.
type Readiness struct {
	once sync.Once
	ch   chan struct{}
}

func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

func (r *Readiness) MarkReady() {
	r.once.Do(func() { close(r.ch) })
}

func (r *Readiness) Ready() bool {
	select {
	case <-r.ch:
		return true
	default:
		return false
	}
}

func (r *Readiness) Done() <-chan struct{} { return r.ch }

// Wait blocks until ready or ctx ends.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
}
