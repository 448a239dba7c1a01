// Package gate provides the admission-control primitive that bounds how many
// networks of one ecosystem family may be fetching at the same time.
package gate

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting semaphore. A sync task holds one permit for the duration
// of a fetch window, not per height, so capacity bounds simultaneous outbound
// RPC pressure regardless of how many networks are scheduled.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
}

// New builds a gate admitting up to capacity concurrent holders.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire permit: %w", err)
	}
	return nil
}

// TryAcquire takes a permit without blocking.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release returns a permit. Callers must release exactly once per acquire,
// including on error paths.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Capacity reports the configured permit count.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}
