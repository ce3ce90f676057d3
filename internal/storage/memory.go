package storage

import (
	"cmp"
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/zboard/internal/widget"
)

// snapshot is one immutable version of the board
// Nothing reachable from a published snapshot is ever written again
type snapshot struct {
	ordered []widget.Widget   // Ascending by z-index, then ID
	index   map[uuid.UUID]int // ID -> position in ordered
}

var emptySnapshot = &snapshot{index: map[uuid.UUID]int{}}

func newSnapshot(ws []widget.Widget) *snapshot {
	widget.Sort(ws)
	index := make(map[uuid.UUID]int, len(ws))
	for i, w := range ws {
		index[w.ID] = i
	}
	return &snapshot{ordered: ws, index: index}
}

func (s *snapshot) byID(id uuid.UUID) (widget.Widget, bool, error) {
	i, ok := s.index[id]
	if !ok {
		return widget.Widget{}, false, nil
	}
	return s.ordered[i], true, nil
}

func (s *snapshot) idsAt(z int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	i, _ := slices.BinarySearchFunc(s.ordered, z, func(w widget.Widget, target int) int {
		return cmp.Compare(w.ZIndex, target)
	})
	for ; i < len(s.ordered) && s.ordered[i].ZIndex == z; i++ {
		ids = append(ids, s.ordered[i].ID)
	}
	return ids, nil
}

// with returns a new snapshot in which every widget in writes replaces the
// one with the same ID, applied in order so later writes win
func (s *snapshot) with(writes ...widget.Widget) *snapshot {
	merged := make(map[uuid.UUID]widget.Widget, len(s.ordered)+len(writes))
	for _, w := range s.ordered {
		merged[w.ID] = w
	}
	for _, w := range writes {
		merged[w.ID] = w
	}
	ws := make([]widget.Widget, 0, len(merged))
	for _, w := range merged {
		ws = append(ws, w)
	}
	return newSnapshot(ws)
}

// without returns a new snapshot lacking the widget at position i
func (s *snapshot) without(i int) *snapshot {
	ws := make([]widget.Widget, 0, len(s.ordered)-1)
	ws = append(ws, s.ordered[:i]...)
	ws = append(ws, s.ordered[i+1:]...)
	return newSnapshot(ws)
}

// MemoryStore implements Store over an immutable snapshot behind an atomic pointer
// Readers never block. Writers build a new snapshot from the one they read and
// publish it with a single compare-and-swap; a writer that loses the race gets
// ErrConcurrentModification and nothing is changed. The store never retries.
type MemoryStore struct {
	state atomic.Pointer[snapshot]

	// beforeSwap runs between computing a new snapshot and publishing it
	// Tests use it to force a competing writer into the window
	beforeSwap func()
}

// NewMemoryStore creates a new empty in-memory store
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	m.state.Store(emptySnapshot)
	return m
}

// ListAll returns one page of the board
// Returns a copy so callers cannot reach into the snapshot
func (m *MemoryStore) ListAll(_ context.Context, page widget.Page) ([]widget.Widget, error) {
	current := m.state.Load()
	offset, ok := page.Offset()
	if !ok || offset >= len(current.ordered) {
		return []widget.Widget{}, nil
	}
	end := min(offset+page.Size, len(current.ordered))
	return slices.Clone(current.ordered[offset:end]), nil
}

// ListWithinArea filters the current snapshot by centerpoint
func (m *MemoryStore) ListWithinArea(_ context.Context, area widget.Area) ([]widget.Widget, error) {
	current := m.state.Load()
	result := []widget.Widget{}
	for _, w := range current.ordered {
		if w.Within(area) {
			result = append(result, w)
		}
	}
	return result, nil
}

// FindByID looks a widget up in the current snapshot
func (m *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (widget.Widget, bool, error) {
	return m.state.Load().byID(id)
}

// FindLargestZIndex returns the z-index of the topmost widget
func (m *MemoryStore) FindLargestZIndex(_ context.Context) (int, bool, error) {
	current := m.state.Load()
	if len(current.ordered) == 0 {
		return 0, false, nil
	}
	return current.ordered[len(current.ordered)-1].ZIndex, true, nil
}

// FindCollisionChain resolves the chain for z against the current snapshot
func (m *MemoryStore) FindCollisionChain(_ context.Context, z int) ([]widget.Widget, error) {
	current := m.state.Load()
	return widget.Chain(widget.Resolve(current.ordered, z)), nil
}

// Save replaces the shifted widgets and then the primary in one swap
func (m *MemoryStore) Save(_ context.Context, primary widget.Widget, shifted []widget.Widget, opts ...SaveOption) (widget.Widget, error) {
	primary, err := prepare(primary, shifted)
	if err != nil {
		return widget.Widget{}, err
	}

	current := m.state.Load()
	if err := checkChain(current, primary, shifted, collect(opts)); err != nil {
		return widget.Widget{}, err
	}

	writes := make([]widget.Widget, 0, len(shifted)+1)
	writes = append(writes, shifted...)
	writes = append(writes, primary)
	next := current.with(writes...)

	if m.beforeSwap != nil {
		m.beforeSwap()
	}
	if !m.state.CompareAndSwap(current, next) {
		return widget.Widget{}, widget.Conflict(primary.ID)
	}

	saved, _, _ := next.byID(primary.ID)
	return saved, nil
}

// Delete removes a widget in one swap
// Returns ErrNotFound if it doesn't exist
func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) (widget.Widget, error) {
	current := m.state.Load()
	i, ok := current.index[id]
	if !ok {
		return widget.Widget{}, widget.NotFound(id)
	}
	removed := current.ordered[i]
	next := current.without(i)

	if m.beforeSwap != nil {
		m.beforeSwap()
	}
	if !m.state.CompareAndSwap(current, next) {
		return widget.Widget{}, widget.Conflict(id)
	}
	return removed, nil
}

// Stats returns storage statistics for the current snapshot
func (m *MemoryStore) Stats(_ context.Context) (StoreStats, error) {
	current := m.state.Load()
	stats := StoreStats{Widgets: len(current.ordered)}
	if n := len(current.ordered); n > 0 {
		stats.LargestZIndex = current.ordered[n-1].ZIndex
	}
	return stats, nil
}

// Close is a no-op; the snapshot is garbage collected with the store
func (m *MemoryStore) Close() error {
	return nil
}
