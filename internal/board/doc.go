// Package board implements the widget operations on top of a storage.Store.
//
// The Service decides where a widget goes: a requested z-index is honoured,
// an absent one puts the widget on top of the stack (0 on an empty board).
// It asks the store for the collision chain at that z-index, shifts the chain
// up by one and hands both to Store.Save, which commits them together or
// reports ErrConcurrentModification when the board moved underneath.
//
// The Service never retries. Callers that want retries (the HTTP API does)
// wrap calls in their own policy.
//
// After each committed mutation the Service publishes an events.Event.
// Publishing is best effort; its failures are logged and otherwise ignored.
package board
