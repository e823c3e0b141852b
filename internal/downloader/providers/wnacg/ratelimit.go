package wnacg

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// SlotGate admits at most N requests per cooldown window. Each acquired slot
// is returned cooldown after it was taken, so a burst of N requests is
// followed by a wait rather than a failure.
type SlotGate struct {
	sem      *semaphore.Weighted
	cooldown time.Duration
}

// NewSlotGate creates a gate with the given number of slots.
func NewSlotGate(slots int, cooldown time.Duration) *SlotGate {
	if slots < 1 {
		slots = 1
	}
	return &SlotGate{sem: semaphore.NewWeighted(int64(slots)), cooldown: cooldown}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *SlotGate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	time.AfterFunc(g.cooldown, func() { g.sem.Release(1) })
	return nil
}
