package widget

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Widget is a rectangle placed on the board.
// Values are snapshots: a change always produces a new Widget that replaces
// the old one by ID.
type Widget struct {
	ID     uuid.UUID `json:"id"`     // uuid.Nil until the store assigns one
	ZIndex int       `json:"zIndex"` // Stacking order, lower renders below
	X      int       `json:"x"`      // Horizontal position
	Y      int       `json:"y"`      // Vertical position
	Width  int       `json:"width"`  // Must be positive
	Height int       `json:"height"` // Must be positive
}

// Point is a coordinate on the board.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Area is a query rectangle given by its lower-left and upper-right corners.
type Area struct {
	LowerLeft  Point `json:"lowerLeft"`
	UpperRight Point `json:"upperRight"`
}

// Page selects a window of the z-ordered board.
type Page struct {
	Number int // 0-based page number
	Size   int // Widgets per page
}

// HasID reports whether the widget already carries an identity.
func (w Widget) HasID() bool {
	return w.ID != uuid.Nil
}

// WithZIndex returns a copy of w moved to z.
func (w Widget) WithZIndex(z int) Widget {
	w.ZIndex = z
	return w
}

// Center returns the centerpoint used by area queries.
// The horizontal coordinate is offset by half the height and the vertical
// coordinate by half the width. Relational backends index the same
// expressions, so both must stay in step.
func (w Widget) Center() Point {
	return Point{
		X: w.X + w.Height/2,
		Y: w.Y + w.Width/2,
	}
}

// Validate rejects geometry that cannot be stored.
func (w Widget) Validate() error {
	var problems []string
	if w.Width <= 0 {
		problems = append(problems, fmt.Sprintf("width must be positive, got %d", w.Width))
	}
	if w.Height <= 0 {
		problems = append(problems, fmt.Sprintf("height must be positive, got %d", w.Height))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidWidget, strings.Join(problems, "; "))
	}
	return nil
}

// Less orders widgets by z-index, breaking ties on the ID text so that the
// order is total and stable across backends.
func Less(a, b Widget) bool {
	return Compare(a, b) < 0
}

// Compare is the three-way form of Less.
func Compare(a, b Widget) int {
	switch {
	case a.ZIndex < b.ZIndex:
		return -1
	case a.ZIndex > b.ZIndex:
		return 1
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// Contains reports whether p lies strictly inside the area on both axes.
// Points on the boundary are outside.
func (a Area) Contains(p Point) bool {
	return p.X > a.LowerLeft.X && p.X < a.UpperRight.X &&
		p.Y > a.LowerLeft.Y && p.Y < a.UpperRight.Y
}

// Within reports whether the widget's centerpoint lies inside the area.
func (w Widget) Within(a Area) bool {
	return a.Contains(w.Center())
}

// Offset returns the index of the first widget on the page and whether the
// page can hold anything at all.
func (p Page) Offset() (int, bool) {
	if p.Number < 0 || p.Size <= 0 {
		return 0, false
	}
	return p.Number * p.Size, true
}
