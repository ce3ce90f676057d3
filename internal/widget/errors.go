package widget

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an operation references an unknown widget.
	ErrNotFound = errors.New("widget not found")

	// ErrConcurrentModification is returned when another writer changed the
	// board between reading it and committing a mutation. Callers may retry.
	ErrConcurrentModification = errors.New("board changed concurrently")

	// ErrInvalidWidget is returned for non-positive width or height.
	ErrInvalidWidget = errors.New("invalid widget")

	// ErrUnknownCommand is returned when a command cannot be converted into a widget.
	ErrUnknownCommand = errors.New("unknown command")
)

// NotFound wraps ErrNotFound with the missing ID.
func NotFound(id uuid.UUID) error {
	return fmt.Errorf("%w: widget <%s>", ErrNotFound, id)
}

// Conflict wraps ErrConcurrentModification with the widget being written.
func Conflict(id uuid.UUID) error {
	return fmt.Errorf("%w: failed to write widget <%s>", ErrConcurrentModification, id)
}

// IsRetryable reports whether err is worth retrying against a fresh board.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
