package uci

import (
	"context"
	"sync"
)

// Gate is a FIFO mutual-exclusion lock around the engine conversation. Every
// position+go sequence runs inside RunExclusive so the single engine never
// sees two interleaved analyses. sync.Mutex makes no ordering promise, hence
// the explicit waiter queue: callers are released in acquisition order.
type Gate struct {
	mu     sync.Mutex
	locked bool
	queue  []chan struct{}
}

func NewGate() *Gate {
	return &Gate{}
}

// Acquire blocks until the gate is held or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.locked {
		g.locked = true
		g.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	g.queue = append(g.queue, waiter)
	g.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.queue {
			if w == waiter {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The lock was handed to us while we were cancelling; pass it on.
		<-waiter
		g.Release()
		return ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or unlocks it.
func (g *Gate) Release() {
	g.mu.Lock()
	if len(g.queue) > 0 {
		next := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		close(next)
		return
	}
	g.locked = false
	g.mu.Unlock()
}

// RunExclusive runs fn while holding the gate. The release is deferred so a
// failing fn cannot leave the engine permanently locked.
func (g *Gate) RunExclusive(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
