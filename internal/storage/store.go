package storage

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/dreamware/zboard/internal/widget"
)

// Store defines the interface for widget storage
// All implementations must be safe for concurrent use and must apply each
// Save and Delete as one indivisible state transition
type Store interface {
	// ListAll returns one page of the board ordered by z-index
	// Out-of-range pages are empty, not an error
	ListAll(ctx context.Context, page widget.Page) ([]widget.Widget, error)

	// ListWithinArea returns every widget whose centerpoint lies strictly inside area
	ListWithinArea(ctx context.Context, area widget.Area) ([]widget.Widget, error)

	// FindByID looks a widget up; ok is false when it does not exist
	FindByID(ctx context.Context, id uuid.UUID) (w widget.Widget, ok bool, err error)

	// FindLargestZIndex returns the highest committed z-index
	// z is 0 and ok is false when the board is empty
	FindLargestZIndex(ctx context.Context) (z int, ok bool, err error)

	// FindCollisionChain returns, unshifted and in ascending order, the
	// committed widgets that must move up for a widget to take z
	FindCollisionChain(ctx context.Context, z int) ([]widget.Widget, error)

	// Save commits shifted (already moved to their new z-index) and then
	// primary. A primary without an ID gets a fresh one
	// Returns ErrConcurrentModification if shifted no longer matches the board,
	// and ErrNotFound under MustExist when the primary is not stored
	Save(ctx context.Context, primary widget.Widget, shifted []widget.Widget, opts ...SaveOption) (widget.Widget, error)

	// Delete removes a widget and returns it
	// Returns ErrNotFound if it doesn't exist
	Delete(ctx context.Context, id uuid.UUID) (widget.Widget, error)

	// Stats returns storage statistics
	Stats(ctx context.Context) (StoreStats, error)

	// Close releases backend resources
	Close() error
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Widgets       int `json:"widgets"`         // Number of committed widgets
	LargestZIndex int `json:"largest_z_index"` // 0 when empty
}

// SaveOption sets a precondition on a Save
type SaveOption func(*saveOptions)

type saveOptions struct {
	mustExist bool
}

// MustExist makes Save fail with ErrNotFound unless the primary is already
// stored. The check runs against the state the write commits on top of, so a
// delete that lands first is never undone by an update.
func MustExist() SaveOption {
	return func(o *saveOptions) { o.mustExist = true }
}

func collect(opts []SaveOption) saveOptions {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// prepare validates a Save request and assigns the primary its identity
func prepare(primary widget.Widget, shifted []widget.Widget) (widget.Widget, error) {
	if err := primary.Validate(); err != nil {
		return widget.Widget{}, err
	}
	for _, s := range shifted {
		if !s.HasID() {
			return widget.Widget{}, widget.ErrInvalidWidget
		}
		// a shifted widget moved up, so it cannot sit at the bottom
		if s.ZIndex == math.MinInt {
			return widget.Widget{}, fmt.Errorf("%w: widget <%s> shifted past the top", widget.ErrInvalidWidget, s.ID)
		}
		if err := s.Validate(); err != nil {
			return widget.Widget{}, err
		}
	}
	if !primary.HasID() {
		primary.ID = uuid.New()
	}
	return primary, nil
}

// boardView is the read access a staleness check needs from the state a
// Save is about to commit on top of
type boardView interface {
	byID(id uuid.UUID) (widget.Widget, bool, error)
	idsAt(z int) ([]uuid.UUID, error)
}

// checkChain verifies that shifted still describes the board: each shifted
// widget must currently sit one below its target, and no widget outside the
// write may already occupy a target z-index. Anything else means the chain
// was computed against a board that has since changed
// Under MustExist the primary itself has to be on the board
func checkChain(view boardView, primary widget.Widget, shifted []widget.Widget, o saveOptions) error {
	if o.mustExist {
		_, ok, err := view.byID(primary.ID)
		if err != nil {
			return err
		}
		if !ok {
			return widget.NotFound(primary.ID)
		}
	}

	touched := make(map[uuid.UUID]bool, len(shifted)+1)
	touched[primary.ID] = true
	for _, s := range shifted {
		touched[s.ID] = true
	}

	for _, s := range shifted {
		current, ok, err := view.byID(s.ID)
		if err != nil {
			return err
		}
		if !ok || current.ZIndex != s.ZIndex-1 {
			return widget.Conflict(primary.ID)
		}
	}

	targets := make([]int, 0, len(shifted)+1)
	targets = append(targets, primary.ZIndex)
	for _, s := range shifted {
		targets = append(targets, s.ZIndex)
	}
	for _, z := range targets {
		ids, err := view.idsAt(z)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if !touched[id] {
				return widget.Conflict(primary.ID)
			}
		}
	}
	return nil
}
