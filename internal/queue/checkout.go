package queue

import (
	"context"
	"fmt"
	"sync"
)

// Checkouter hands the next job to a worker.
type Checkouter interface {
	Next(ctx context.Context, conn Conn) (*Job, error)
}

// LockCheckout serializes checkouts through a process-wide lock.
// All workers of a process must share the same LockCheckout.
type LockCheckout struct {
	mu sync.Mutex
}

func (c *LockCheckout) Next(ctx context.Context, conn Conn) (*Job, error) {
	return Checkout(ctx, conn, &c.mu)
}

// ClaimCheckout relies on row locks and needs no shared state.
type ClaimCheckout struct{}

func (ClaimCheckout) Next(ctx context.Context, conn Conn) (*Job, error) {
	return Claim(ctx, conn)
}

// NewCheckouter returns the checkout strategy for a mode name.
func NewCheckouter(mode string) (Checkouter, error) {
	switch mode {
	case "claim", "":
		return ClaimCheckout{}, nil
	case "lock":
		return &LockCheckout{}, nil
	}
	return nil, fmt.Errorf("unknown checkout mode %q", mode)
}
