package tasks

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many extractor-invoking jobs run at once. Permits are
// owned by ActiveTask handles and released exactly once on finalize.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
}

func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

func (g *Gate) Capacity() int {
	return g.capacity
}

func (g *Gate) acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *Gate) release() {
	g.sem.Release(1)
}
