package state

import (
	"context"

	"github.com/mpataki/boda/internal/models"
)

// Navigation is what the viewer is looking at.
type Navigation struct {
	Target      models.Target
	Scroll      int
	ShowHistory bool
	ShowHelp    bool
}

// Chain answers ordering queries over the ids that exist in the store.
type Chain interface {
	Bounds(ctx context.Context) (oldest, newest int64, ok bool, err error)
	Neighbor(ctx context.Context, id int64, older bool) (int64, bool, error)
}

// Select moves to t. Scroll resets whenever the target changes.
func (n Navigation) Select(t models.Target) Navigation {
	if n.Target != t {
		n.Target = t
		n.Scroll = 0
	}
	return n
}

// Next steps one execution back in time. From Latest it lands on the newest
// id; at the oldest id it stays put.
func (n Navigation) Next(ctx context.Context, c Chain) (Navigation, error) {
	id, ok := n.Target.ID()
	if !ok {
		_, newest, exists, err := c.Bounds(ctx)
		if err != nil || !exists {
			return n, err
		}
		return n.Select(models.Specific(newest)), nil
	}

	older, exists, err := c.Neighbor(ctx, id, true)
	if err != nil || !exists {
		return n, err
	}
	return n.Select(models.Specific(older)), nil
}

// Prev steps one execution forward in time, returning to Latest from the
// newest id. It is a no-op on Latest.
func (n Navigation) Prev(ctx context.Context, c Chain) (Navigation, error) {
	id, ok := n.Target.ID()
	if !ok {
		return n, nil
	}

	_, newest, exists, err := c.Bounds(ctx)
	if err != nil {
		return n, err
	}
	if !exists || id >= newest {
		return n.Select(models.Latest()), nil
	}

	newer, exists, err := c.Neighbor(ctx, id, false)
	if err != nil {
		return n, err
	}
	if !exists {
		return n.Select(models.Latest()), nil
	}
	return n.Select(models.Specific(newer)), nil
}

func (n Navigation) ScrollUp() Navigation {
	if n.Scroll > 0 {
		n.Scroll--
	}
	return n
}

// ScrollDown moves one line down within a target of the given line count.
func (n Navigation) ScrollDown(lines int) Navigation {
	if lines <= 0 {
		return n
	}
	n.Scroll = min(n.Scroll+1, lines-1)
	return n
}
