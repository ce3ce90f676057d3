// Package widget defines the board's value types and the pure rules that
// govern them: the Widget snapshot, the commands that describe changes, area
// and page selectors, the error taxonomy shared by every layer, and the
// collision resolver that decides which widgets move when a z-index is taken.
//
// # Ordering
//
// Widgets are ordered by z-index. Two committed widgets never share a
// z-index; ties only exist transiently while a collision chain is being
// computed and are broken by comparing IDs so the order stays total.
//
// # Collisions
//
// Placing a widget at z pushes up every widget from the first one at or
// above z until the first gap:
//
//	before:  A:0  B:1  C:2  D:4  E:7      insert at 0
//	chain:   A    B    C                  (D: 4 > 2+1, gap)
//	after:   new:0  A:1  B:2  C:3  D:4  E:7
//
// Resolve only reports the shifts; stores apply them.
//
// # Errors
//
//   - ErrNotFound: unknown widget ID on update, delete or fetch-dependent paths
//   - ErrConcurrentModification: another writer won; safe to retry
//   - ErrInvalidWidget: non-positive width or height
//   - ErrUnknownCommand: a command value outside CreateCommand/UpdateCommand
package widget
