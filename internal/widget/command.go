package widget

import "github.com/google/uuid"

// Command is a request to place a widget on the board.
// The set of implementations is closed: CreateCommand and UpdateCommand.
type Command interface {
	// RequestedZIndex returns the z-index asked for, if any.
	RequestedZIndex() (int, bool)
	command()
}

// Geometry is the placement shared by every command.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CreateCommand asks for a new widget. A nil ZIndex places it on top.
type CreateCommand struct {
	ZIndex *int `json:"zIndex,omitempty"`
	Geometry
}

// UpdateCommand replaces an existing widget. A nil ZIndex moves it on top.
type UpdateCommand struct {
	ZIndex *int `json:"zIndex,omitempty"`
	Geometry
}

func (c CreateCommand) RequestedZIndex() (int, bool) { return deref(c.ZIndex) }
func (c UpdateCommand) RequestedZIndex() (int, bool) { return deref(c.ZIndex) }

func (CreateCommand) command() {}
func (UpdateCommand) command() {}

// FromCommand builds the widget described by cmd at z-index z.
// The result has no ID unless the caller sets one.
func FromCommand(cmd Command, z int) (Widget, error) {
	var g Geometry
	switch c := cmd.(type) {
	case CreateCommand:
		g = c.Geometry
	case *CreateCommand:
		if c == nil {
			return Widget{}, ErrUnknownCommand
		}
		g = c.Geometry
	case UpdateCommand:
		g = c.Geometry
	case *UpdateCommand:
		if c == nil {
			return Widget{}, ErrUnknownCommand
		}
		g = c.Geometry
	default:
		return Widget{}, ErrUnknownCommand
	}

	w := Widget{
		ZIndex: z,
		X:      g.X,
		Y:      g.Y,
		Width:  g.Width,
		Height: g.Height,
	}
	return w, w.Validate()
}

// WithID returns a copy of w carrying id.
func (w Widget) WithID(id uuid.UUID) Widget {
	w.ID = id
	return w
}

// Z is a convenience for building optional z-indexes.
func Z(z int) *int {
	return &z
}

func deref(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
