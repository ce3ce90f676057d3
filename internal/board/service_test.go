package board

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/zboard/internal/events"
	"github.com/dreamware/zboard/internal/storage"
	"github.com/dreamware/zboard/internal/widget"
)

func geometry() widget.Geometry {
	return widget.Geometry{X: 1, Y: 1, Width: 100, Height: 100}
}

func create(z *int) widget.CreateCommand {
	return widget.CreateCommand{ZIndex: z, Geometry: geometry()}
}

func mustCreate(t *testing.T, svc *Service, z *int) widget.Widget {
	t.Helper()
	w, err := svc.Create(context.Background(), create(z))
	require.NoError(t, err)
	return w
}

func listAll(t *testing.T, svc *Service) []widget.Widget {
	t.Helper()
	ws, err := svc.List(context.Background(), widget.Page{Number: 0, Size: 1000})
	require.NoError(t, err)
	return ws
}

func zIndexes(ws []widget.Widget) []int {
	out := make([]int, len(ws))
	for i, w := range ws {
		out[i] = w.ZIndex
	}
	return out
}

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

// racingStore runs beforeSave once, right before delegating the next Save
type racingStore struct {
	storage.Store
	beforeSave func()
}

func (r *racingStore) Save(ctx context.Context, primary widget.Widget, shifted []widget.Widget, opts ...storage.SaveOption) (widget.Widget, error) {
	if f := r.beforeSave; f != nil {
		r.beforeSave = nil
		f()
	}
	return r.Store.Save(ctx, primary, shifted, opts...)
}

// stores opens one empty store per backend
func stores(t *testing.T) map[string]storage.Store {
	t.Helper()
	sqlStore, err := storage.OpenSQL(context.Background(), storage.DialectSQLite, filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })
	return map[string]storage.Store{
		"memory": storage.NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty board defaults to zero", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())

		w := mustCreate(t, svc, nil)
		assert.Equal(t, 0, w.ZIndex)
		assert.True(t, w.HasID())
		assert.Equal(t, 1, w.X)
		assert.Equal(t, 100, w.Width)
	})

	t.Run("no z-index goes on top", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		mustCreate(t, svc, widget.Z(7))

		w := mustCreate(t, svc, nil)
		assert.Equal(t, 8, w.ZIndex)
	})

	t.Run("collision shifts the existing widget", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		a := mustCreate(t, svc, widget.Z(5))

		w := mustCreate(t, svc, widget.Z(5))
		assert.Equal(t, 5, w.ZIndex)

		moved, ok, err := svc.Fetch(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 6, moved.ZIndex)
	})

	t.Run("shifting stops at the first gap", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		a := mustCreate(t, svc, widget.Z(0))
		b := mustCreate(t, svc, widget.Z(1))
		c := mustCreate(t, svc, widget.Z(2))
		d := mustCreate(t, svc, widget.Z(4))

		w := mustCreate(t, svc, widget.Z(0))

		assert.Equal(t, []widget.Widget{
			w,
			a.WithZIndex(1),
			b.WithZIndex(2),
			c.WithZIndex(3),
			d,
		}, listAll(t, svc))
	})

	t.Run("chain length follows a deliberate gap", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		for _, z := range []int{0, 1, 2, 5, 6} {
			mustCreate(t, svc, widget.Z(z))
		}

		mustCreate(t, svc, widget.Z(0))
		assert.Equal(t, []int{0, 1, 2, 3, 5, 6}, zIndexes(listAll(t, svc)))
	})

	t.Run("invalid geometry", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		cmd := create(nil)
		cmd.Width = 0

		_, err := svc.Create(ctx, cmd)
		assert.ErrorIs(t, err, widget.ErrInvalidWidget)
		assert.Empty(t, listAll(t, svc))
	})

	t.Run("injected ids", func(t *testing.T) {
		id := uuid.MustParse("6f1c2a1e-8a55-4d7e-9c33-0c3c5f3d9b11")
		svc := NewService(storage.NewMemoryStore(), WithIDGenerator(func() uuid.UUID { return id }))

		w := mustCreate(t, svc, nil)
		assert.Equal(t, id, w.ID)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())

		_, err := svc.Update(ctx, uuid.New(), widget.UpdateCommand{Geometry: geometry()})
		assert.ErrorIs(t, err, widget.ErrNotFound)
	})

	t.Run("keeps id and replaces geometry", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		w := mustCreate(t, svc, widget.Z(3))

		updated, err := svc.Update(ctx, w.ID, widget.UpdateCommand{
			ZIndex:   widget.Z(3),
			Geometry: widget.Geometry{X: 9, Y: 8, Width: 7, Height: 6},
		})
		require.NoError(t, err)
		assert.Equal(t, widget.Widget{ID: w.ID, ZIndex: 3, X: 9, Y: 8, Width: 7, Height: 6}, updated)
		assert.Len(t, listAll(t, svc), 1)
	})

	t.Run("moving onto an occupied z-index", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		a := mustCreate(t, svc, widget.Z(0))
		b := mustCreate(t, svc, widget.Z(1))
		c := mustCreate(t, svc, widget.Z(10))

		updated, err := svc.Update(ctx, c.ID, widget.UpdateCommand{ZIndex: widget.Z(0), Geometry: geometry()})
		require.NoError(t, err)

		assert.Equal(t, []widget.Widget{updated, a.WithZIndex(1), b.WithZIndex(2)}, listAll(t, svc))
	})

	t.Run("without z-index moves to top", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		w := mustCreate(t, svc, widget.Z(0))
		mustCreate(t, svc, widget.Z(4))

		updated, err := svc.Update(ctx, w.ID, widget.UpdateCommand{Geometry: geometry()})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.ZIndex)
	})

	for name, store := range stores(t) {
		t.Run("delete committed mid-update wins on "+name, func(t *testing.T) {
			racing := &racingStore{Store: store}
			svc := NewService(racing)
			w := mustCreate(t, svc, widget.Z(0))
			other := mustCreate(t, svc, widget.Z(3))

			racing.beforeSave = func() {
				_, err := store.Delete(ctx, w.ID)
				require.NoError(t, err)
			}
			_, err := svc.Update(ctx, w.ID, widget.UpdateCommand{ZIndex: widget.Z(3), Geometry: geometry()})
			assert.ErrorIs(t, err, widget.ErrNotFound)

			_, ok, err := svc.Fetch(ctx, w.ID)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, []widget.Widget{other}, listAll(t, svc))
		})
	}
}

func TestZIndexBounds(t *testing.T) {
	ctx := context.Background()

	t.Run("collision at the top is rejected", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		top := mustCreate(t, svc, widget.Z(math.MaxInt))

		_, err := svc.Create(ctx, create(widget.Z(math.MaxInt)))
		assert.ErrorIs(t, err, widget.ErrInvalidWidget)
		assert.Equal(t, []widget.Widget{top}, listAll(t, svc))
	})

	t.Run("chain reaching the top is rejected", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		mustCreate(t, svc, widget.Z(math.MaxInt-1))
		mustCreate(t, svc, widget.Z(math.MaxInt))

		_, err := svc.Create(ctx, create(widget.Z(math.MaxInt-1)))
		assert.ErrorIs(t, err, widget.ErrInvalidWidget)
		assert.Equal(t, []int{math.MaxInt - 1, math.MaxInt}, zIndexes(listAll(t, svc)))
	})

	t.Run("default placement above the top is rejected", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		mustCreate(t, svc, widget.Z(math.MaxInt))

		_, err := svc.Create(ctx, create(nil))
		assert.ErrorIs(t, err, widget.ErrInvalidWidget)
		assert.Len(t, listAll(t, svc), 1)
	})

	t.Run("bottom of the range is usable", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		low := mustCreate(t, svc, widget.Z(math.MinInt))

		w := mustCreate(t, svc, widget.Z(math.MinInt))
		assert.Equal(t, []widget.Widget{w, low.WithZIndex(math.MinInt + 1)}, listAll(t, svc))
	})
}

func TestDeleteAndFetch(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore())
	w := mustCreate(t, svc, nil)

	removed, err := svc.Delete(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, removed)

	_, ok, err := svc.Fetch(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Delete(ctx, w.ID)
	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestFilterInArea(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore())

	inside, err := svc.Create(ctx, widget.CreateCommand{Geometry: widget.Geometry{X: 0, Y: 0, Width: 100, Height: 100}})
	require.NoError(t, err)
	// Centerpoint (50, 150) sits on the upper boundary
	_, err = svc.Create(ctx, widget.CreateCommand{Geometry: widget.Geometry{X: 0, Y: 100, Width: 100, Height: 100}})
	require.NoError(t, err)

	got, err := svc.FilterInArea(ctx, widget.Area{
		LowerLeft:  widget.Point{X: 0, Y: 0},
		UpperRight: widget.Point{X: 100, Y: 150},
	})
	require.NoError(t, err)
	assert.Equal(t, []widget.Widget{inside}, got)
}

func TestConcurrentCreates(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly one of two racing writers conflicts", func(t *testing.T) {
		racing := &racingStore{Store: storage.NewMemoryStore()}
		svc := NewService(racing)
		a := mustCreate(t, svc, widget.Z(5))

		var winner widget.Widget
		racing.beforeSave = func() {
			winner = mustCreate(t, svc, widget.Z(5))
		}

		_, err := svc.Create(ctx, create(widget.Z(5)))
		assert.ErrorIs(t, err, widget.ErrConcurrentModification)

		assert.Equal(t, []widget.Widget{winner, a.WithZIndex(6)}, listAll(t, svc))

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), stats.Ops.Creates)
		assert.Equal(t, uint64(1), stats.Ops.Conflicts)
	})

	t.Run("retrying writers converge", func(t *testing.T) {
		svc := NewService(storage.NewMemoryStore())
		numGoroutines := 2

		var wg sync.WaitGroup
		wg.Add(numGoroutines)
		ids := make([]uuid.UUID, numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				for {
					w, err := svc.Create(ctx, create(widget.Z(0)))
					if errors.Is(err, widget.ErrConcurrentModification) {
						continue
					}
					if err != nil {
						t.Errorf("create: %v", err)
						return
					}
					ids[i] = w.ID
					return
				}
			}(i)
		}
		wg.Wait()

		ws := listAll(t, svc)
		assert.Equal(t, []int{0, 1}, zIndexes(ws))
		assert.NotEqual(t, ids[0], ids[1])
	})
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	t.Run("one event per mutation", func(t *testing.T) {
		rec := &recorder{}
		svc := NewService(storage.NewMemoryStore(),
			WithPublisher(rec),
			WithClock(func() time.Time { return at }))

		a := mustCreate(t, svc, widget.Z(0))
		b := mustCreate(t, svc, widget.Z(0))
		updated, err := svc.Update(ctx, b.ID, widget.UpdateCommand{ZIndex: widget.Z(1), Geometry: geometry()})
		require.NoError(t, err)
		_, err = svc.Delete(ctx, a.ID)
		require.NoError(t, err)

		// Failed mutations publish nothing
		_, err = svc.Delete(ctx, a.ID)
		require.Error(t, err)

		require.Len(t, rec.events, 4)
		assert.Equal(t, events.Event{Type: events.Created, Widget: a, At: at}, rec.events[0])
		assert.Equal(t, events.Created, rec.events[1].Type)
		assert.Equal(t, []widget.Widget{a.WithZIndex(1)}, rec.events[1].Shifted)
		assert.Equal(t, events.Updated, rec.events[2].Type)
		assert.Equal(t, updated, rec.events[2].Widget)
		assert.Equal(t, []widget.Widget{a.WithZIndex(2)}, rec.events[2].Shifted)
		assert.Equal(t, events.Event{Type: events.Deleted, Widget: a.WithZIndex(2), At: at}, rec.events[3])
	})

	t.Run("publish failures are logged not returned", func(t *testing.T) {
		var logs bytes.Buffer
		rec := &recorder{err: errors.New("bus down")}
		svc := NewService(storage.NewMemoryStore(),
			WithPublisher(rec),
			WithLogger(log.New(&logs)))

		_, err := svc.Create(ctx, create(nil))
		require.NoError(t, err)
		assert.Contains(t, logs.String(), "bus down")
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore())

	w := mustCreate(t, svc, widget.Z(4))
	mustCreate(t, svc, widget.Z(9))
	_, _, _ = svc.Fetch(ctx, w.ID)
	_, _ = svc.Update(ctx, w.ID, widget.UpdateCommand{ZIndex: widget.Z(1), Geometry: geometry()})
	_, _ = svc.Delete(ctx, uuid.New())

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Ops:     OperationStats{Creates: 2, Updates: 1, Deletes: 1, Fetches: 1},
		Storage: storage.StoreStats{Widgets: 2, LargestZIndex: 9},
	}, stats)
}
