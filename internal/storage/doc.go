// Package storage owns the authoritative, z-ordered set of widgets on the
// board and applies every mutation to it atomically, with optimistic
// concurrency control instead of locks.
//
// # Overview
//
// The package defines the Store interface and two interchangeable backends.
// The backend is chosen once at process start from configuration; callers
// (the board service) only ever see the interface.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            board.Service            │
//	│  (z-index defaulting, collisions)   │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│           Store interface           │
//	└─────────────────────────────────────┘
//	                 │
//	         ┌───────┴────────┐
//	         ▼                ▼
//	┌────────────────┐ ┌────────────────┐
//	│  MemoryStore   │ │    SQLStore    │
//	│ atomic pointer │ │ sqlite | pgx   │
//	└────────────────┘ └────────────────┘
//
// # Core Interface
//
// Reads:
//   - ListAll(page) - One page of the board, ascending z-index
//   - ListWithinArea(area) - Widgets whose centerpoint is strictly inside
//   - FindByID(id) - Single lookup, absence is not an error
//   - FindLargestZIndex() - Top of the stack (0 when empty)
//   - FindCollisionChain(z) - Widgets that must move up for z to be taken
//
// Writes:
//   - Save(primary, shifted, opts...) - Commit a widget plus its shifted chain
//     (MustExist turns it into a pure update)
//   - Delete(id) - Remove a widget
//
// # Implementations
//
// MemoryStore: immutable snapshot behind atomic.Pointer
//   - Readers load the pointer and never block
//   - Writers copy the snapshot, apply their change and CompareAndSwap
//   - A lost swap returns ErrConcurrentModification; the store never retries
//   - Data lives as long as the process
//
// SQLStore: one table, one transaction per write
//   - SQLite through modernc.org/sqlite (no cgo), immediate transactions
//   - PostgreSQL through the pgx database/sql driver, serializable isolation
//   - Schema embedded from schema.sql and applied on open
//   - Serialization failures map to ErrConcurrentModification
//
// # Consistency Guarantees
//
// Save validates the chain it is handed against the state it is about to
// commit on top of:
//   - every shifted widget must currently sit exactly one below its target
//   - no widget outside the write may already hold a target z-index
//
// A chain computed against a board that has since changed is therefore
// rejected instead of silently leaving two widgets on one z-index. For the
// SQL backend the check runs inside the write transaction.
//
// Invariants maintained by every committed state:
//   - IDs are unique
//   - z-indexes are unique
//   - a write never becomes partially visible
//
// # Error Handling
//
// ErrNotFound: Delete of an unknown ID, or Save under MustExist when the
// primary is gone
//   - Never retried
//
// ErrConcurrentModification: another writer won
//   - Safe to retry from a fresh read
//   - Retry policy belongs to the caller (see internal/api)
//
// ErrInvalidWidget: non-positive width or height reached Save directly, or a
// shifted widget wrapped past the top z-index
//
// # Usage Examples
//
//	store := storage.NewMemoryStore()
//	defer store.Close()
//
//	chain, err := store.FindCollisionChain(ctx, 5)
//	if err != nil {
//	    return err
//	}
//	saved, err := store.Save(ctx, w.WithZIndex(5), widget.ShiftUp(chain))
//	if errors.Is(err, widget.ErrConcurrentModification) {
//	    // re-read and try again, or report the conflict
//	}
//
//	// Relational backend
//	sqlStore, err := storage.OpenSQL(ctx, storage.DialectSQLite, "board.db")
//
// # Testing
//
//	go test ./internal/storage/...
//	go test -race ./internal/storage/...
//
// Backend equivalence is checked by replaying the same writes against both
// implementations and comparing the boards.
package storage
