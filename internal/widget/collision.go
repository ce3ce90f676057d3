package widget

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Shift records that a committed widget has to move from its current
// z-index to To so an incoming widget can take its place.
type Shift struct {
	Widget Widget
	To     int
}

// Apply returns the widget moved to its target z-index.
func (s Shift) Apply() Widget {
	return s.Widget.WithZIndex(s.To)
}

// Resolve computes the collision chain for a widget entering at z.
//
// ordered must be sorted ascending by z-index and hold every committed widget
// with a z-index of at least z; widgets below z are ignored, so the full board
// and a "z_index >= z" range scan give the same answer.
//
// The chain starts at the first widget with z-index >= z and runs while each
// widget sits at most one above its predecessor. The first gap of two or more
// ends it. Every widget in the chain moves up by exactly one. Resolve does not
// modify ordered, and it does not check that the top of the chain has room
// to move; CheckShift does.
func Resolve(ordered []Widget, z int) []Shift {
	start, _ := slices.BinarySearchFunc(ordered, z, func(w Widget, target int) int {
		switch {
		case w.ZIndex < target:
			return -1
		case w.ZIndex > target:
			return 1
		}
		return 0
	})
	if start == len(ordered) {
		return nil
	}

	shifts := []Shift{{Widget: ordered[start], To: ordered[start].ZIndex + 1}}
	for i := start + 1; i < len(ordered); i++ {
		if ordered[i].ZIndex > ordered[i-1].ZIndex+1 {
			break
		}
		shifts = append(shifts, Shift{Widget: ordered[i], To: ordered[i].ZIndex + 1})
	}
	return shifts
}

// Chain returns just the widgets of a collision chain, unshifted.
func Chain(shifts []Shift) []Widget {
	out := make([]Widget, len(shifts))
	for i, s := range shifts {
		out[i] = s.Widget
	}
	return out
}

// ShiftUp returns copies of ws each moved up by one z-index.
func ShiftUp(ws []Widget) []Widget {
	out := make([]Widget, len(ws))
	for i, w := range ws {
		out[i] = w.WithZIndex(w.ZIndex + 1)
	}
	return out
}

// Above returns the z-index directly above z.
// The topmost representable z-index has nothing above it.
func Above(z int) (int, error) {
	if z == math.MaxInt {
		return 0, fmt.Errorf("%w: no z-index above %d", ErrInvalidWidget, z)
	}
	return z + 1, nil
}

// CheckShift reports whether every widget of an ascending chain can move up by one.
func CheckShift(chain []Widget) error {
	if n := len(chain); n > 0 {
		_, err := Above(chain[n-1].ZIndex)
		return err
	}
	return nil
}

// Sort orders ws in place by z-index, then ID.
func Sort(ws []Widget) {
	slices.SortFunc(ws, Compare)
}
