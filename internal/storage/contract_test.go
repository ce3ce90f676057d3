package storage

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/zboard/internal/widget"
)

// backends lists every Store implementation the contract runs against
var backends = []struct {
	name string
	open func(t *testing.T) Store
}{
	{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
	{"sqlite", openSQLite},
}

func openSQLite(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQL(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fixture mirrors a typical widget used across tests
func fixture(z int) widget.Widget {
	return widget.Widget{ZIndex: z, X: 5, Y: 25, Width: 100, Height: 100}
}

// place runs the full create path against a store: resolve, shift, save
func place(t *testing.T, s Store, w widget.Widget) widget.Widget {
	t.Helper()
	ctx := context.Background()
	chain, err := s.FindCollisionChain(ctx, w.ZIndex)
	require.NoError(t, err)
	saved, err := s.Save(ctx, w, widget.ShiftUp(chain))
	require.NoError(t, err)
	return saved
}

func all(t *testing.T, s Store) []widget.Widget {
	t.Helper()
	ws, err := s.ListAll(context.Background(), widget.Page{Number: 0, Size: 10_000})
	require.NoError(t, err)
	return ws
}

// assertConsistent checks unique IDs and strictly ascending z-indexes
func assertConsistent(t *testing.T, s Store) {
	t.Helper()
	ws := all(t, s)
	seen := make(map[uuid.UUID]bool, len(ws))
	for i, w := range ws {
		assert.False(t, seen[w.ID], "duplicate id %s", w.ID)
		seen[w.ID] = true
		if i > 0 {
			assert.Greater(t, w.ZIndex, ws[i-1].ZIndex, "z-index %d repeated or out of order", w.ZIndex)
		}
	}
}

func zs(ws []widget.Widget) []int {
	out := make([]int, len(ws))
	for i, w := range ws {
		out[i] = w.ZIndex
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("new store is empty", func(t *testing.T) {
				s := b.open(t)

				assert.Empty(t, all(t, s))

				_, ok, err := s.FindByID(ctx, uuid.New())
				require.NoError(t, err)
				assert.False(t, ok)

				z, ok, err := s.FindLargestZIndex(ctx)
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Equal(t, 0, z)

				stats, err := s.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, StoreStats{}, stats)

				chain, err := s.FindCollisionChain(ctx, 0)
				require.NoError(t, err)
				assert.Empty(t, chain)
			})

			t.Run("save assigns id and fetch returns it", func(t *testing.T) {
				s := b.open(t)

				saved, err := s.Save(ctx, fixture(0), nil)
				require.NoError(t, err)
				assert.True(t, saved.HasID())

				found, ok, err := s.FindByID(ctx, saved.ID)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, saved, found)
			})

			t.Run("save keeps a given id", func(t *testing.T) {
				s := b.open(t)
				id := uuid.New()

				saved, err := s.Save(ctx, fixture(3).WithID(id), nil)
				require.NoError(t, err)
				assert.Equal(t, id, saved.ID)
			})

			t.Run("collisions update the affected widgets", func(t *testing.T) {
				s := b.open(t)
				e1 := place(t, s, fixture(1))
				e2 := place(t, s, fixture(2))
				e3 := place(t, s, fixture(4))

				chain, err := s.FindCollisionChain(ctx, 1)
				require.NoError(t, err)
				assert.Equal(t, []widget.Widget{e1, e2}, chain)

				saved, err := s.Save(ctx, fixture(1), widget.ShiftUp(chain))
				require.NoError(t, err)

				assert.Equal(t, []widget.Widget{
					saved,
					e1.WithZIndex(2),
					e2.WithZIndex(3),
					e3,
				}, all(t, s))
			})

			t.Run("update replaces in place", func(t *testing.T) {
				s := b.open(t)
				saved := place(t, s, fixture(0))

				moved := saved.WithZIndex(2)
				moved.Width = 7
				updated, err := s.Save(ctx, moved, nil)
				require.NoError(t, err)
				assert.Equal(t, moved, updated)
				assert.Len(t, all(t, s), 1)
			})

			t.Run("update into its own chain", func(t *testing.T) {
				s := b.open(t)
				a := place(t, s, fixture(0))
				bw := place(t, s, fixture(1))

				// move b below a; the chain contains b itself
				chain, err := s.FindCollisionChain(ctx, 0)
				require.NoError(t, err)
				require.Len(t, chain, 2)

				_, err = s.Save(ctx, bw.WithZIndex(0), widget.ShiftUp(chain))
				require.NoError(t, err)

				assert.Equal(t, []widget.Widget{bw.WithZIndex(0), a.WithZIndex(1)}, all(t, s))
			})

			t.Run("delete existing widget", func(t *testing.T) {
				s := b.open(t)
				saved := place(t, s, fixture(0))

				deleted, err := s.Delete(ctx, saved.ID)
				require.NoError(t, err)
				assert.Equal(t, saved, deleted)

				_, ok, err := s.FindByID(ctx, saved.ID)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("delete unknown widget", func(t *testing.T) {
				s := b.open(t)
				_, err := s.Delete(ctx, uuid.New())
				assert.ErrorIs(t, err, widget.ErrNotFound)
			})

			t.Run("largest z-index", func(t *testing.T) {
				s := b.open(t)
				place(t, s, fixture(0))
				place(t, s, fixture(100))
				place(t, s, fixture(10000))

				z, ok, err := s.FindLargestZIndex(ctx)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, 10000, z)

				stats, err := s.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, StoreStats{Widgets: 3, LargestZIndex: 10000}, stats)
			})

			t.Run("collision chain stops at gap", func(t *testing.T) {
				s := b.open(t)
				w1 := place(t, s, fixture(0))
				w2 := place(t, s, fixture(1))
				w3 := place(t, s, fixture(2))
				place(t, s, fixture(4))

				chain, err := s.FindCollisionChain(ctx, 0)
				require.NoError(t, err)
				assert.Equal(t, []widget.Widget{w1, w2, w3}, chain)

				again, err := s.FindCollisionChain(ctx, 0)
				require.NoError(t, err)
				assert.Equal(t, chain, again)
			})

			t.Run("widgets within area", func(t *testing.T) {
				s := b.open(t)
				w1 := place(t, s, widget.Widget{ZIndex: 1, X: 0, Y: 0, Width: 100, Height: 100})
				w2 := place(t, s, widget.Widget{ZIndex: 2, X: 0, Y: 50, Width: 100, Height: 100})
				place(t, s, widget.Widget{ZIndex: 3, X: 50, Y: 50, Width: 100, Height: 100})

				area := widget.Area{
					LowerLeft:  widget.Point{X: 0, Y: 0},
					UpperRight: widget.Point{X: 100, Y: 150},
				}
				in, err := s.ListWithinArea(ctx, area)
				require.NoError(t, err)
				assert.Equal(t, []widget.Widget{w1, w2}, in)
			})

			t.Run("pagination", func(t *testing.T) {
				s := b.open(t)
				for z := 0; z < 5; z++ {
					place(t, s, fixture(z*2))
				}

				tests := []struct {
					page widget.Page
					want []int
				}{
					{widget.Page{Number: 0, Size: 2}, []int{0, 2}},
					{widget.Page{Number: 1, Size: 2}, []int{4, 6}},
					{widget.Page{Number: 2, Size: 2}, []int{8}},
					{widget.Page{Number: 3, Size: 2}, []int{}},
					{widget.Page{Number: -1, Size: 2}, []int{}},
					{widget.Page{Number: 0, Size: 0}, []int{}},
				}
				for _, tt := range tests {
					got, err := s.ListAll(ctx, tt.page)
					require.NoError(t, err)
					assert.Equal(t, tt.want, zs(got), "page %+v", tt.page)
				}
			})

			t.Run("invalid widget is rejected", func(t *testing.T) {
				s := b.open(t)
				bad := fixture(0)
				bad.Height = 0

				_, err := s.Save(ctx, bad, nil)
				assert.ErrorIs(t, err, widget.ErrInvalidWidget)
				assert.Empty(t, all(t, s))
			})

			t.Run("stale chain is rejected", func(t *testing.T) {
				s := b.open(t)
				a := place(t, s, fixture(0))

				chain, err := s.FindCollisionChain(ctx, 0)
				require.NoError(t, err)

				// another writer moves a before the chain is committed
				_, err = s.Save(ctx, a.WithZIndex(5), nil)
				require.NoError(t, err)

				_, err = s.Save(ctx, fixture(0), widget.ShiftUp(chain))
				assert.ErrorIs(t, err, widget.ErrConcurrentModification)
				assert.Equal(t, []int{5}, zs(all(t, s)))
			})

			t.Run("must exist rejects an absent primary", func(t *testing.T) {
				s := b.open(t)
				gone := place(t, s, fixture(0))
				_, err := s.Delete(ctx, gone.ID)
				require.NoError(t, err)

				_, err = s.Save(ctx, gone.WithZIndex(1), nil, MustExist())
				assert.ErrorIs(t, err, widget.ErrNotFound)
				assert.Empty(t, all(t, s))

				kept := place(t, s, fixture(2))
				updated, err := s.Save(ctx, kept.WithZIndex(4), nil, MustExist())
				require.NoError(t, err)
				assert.Equal(t, 4, updated.ZIndex)
			})

			t.Run("shift past the top is rejected", func(t *testing.T) {
				s := b.open(t)
				top := place(t, s, fixture(math.MaxInt))

				chain, err := s.FindCollisionChain(ctx, math.MaxInt)
				require.NoError(t, err)
				_, err = s.Save(ctx, fixture(math.MaxInt), widget.ShiftUp(chain))
				assert.ErrorIs(t, err, widget.ErrInvalidWidget)
				assert.Equal(t, []widget.Widget{top}, all(t, s))
			})

			t.Run("extreme z-indexes stay ordered and checked", func(t *testing.T) {
				s := b.open(t)
				for _, z := range []int{math.MinInt, 0, 3_000_000_000, math.MaxInt} {
					place(t, s, fixture(z))
				}
				assert.Equal(t, []int{math.MinInt, 0, 3_000_000_000, math.MaxInt}, zs(all(t, s)))

				for _, z := range []int{math.MinInt, math.MaxInt} {
					_, err := s.Save(ctx, fixture(z), nil)
					assert.ErrorIs(t, err, widget.ErrConcurrentModification, "z %d", z)
				}
				assertConsistent(t, s)
			})

			t.Run("missing chain is rejected", func(t *testing.T) {
				s := b.open(t)
				place(t, s, fixture(0))

				_, err := s.Save(ctx, fixture(0), nil)
				assert.ErrorIs(t, err, widget.ErrConcurrentModification)
				assertConsistent(t, s)
			})
		})
	}
}

// TestBackendEquivalence replays the same writes against every backend and
// requires identical boards and collision chains afterwards
func TestBackendEquivalence(t *testing.T) {
	ctx := context.Background()
	id := func(i int) uuid.UUID {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("widget-%d", i)))
	}

	type op struct {
		del bool
		id  int
		z   int
	}
	ops := []op{
		{id: 0, z: 0}, {id: 1, z: 0}, {id: 2, z: 5}, {id: 3, z: 1},
		{id: 4, z: 7}, {id: 5, z: 6}, {id: 1, z: 9}, {del: true, id: 3},
		{id: 6, z: 2}, {id: 7, z: -1}, {id: 0, z: 6}, {id: 8, z: 0},
		{del: true, id: 5}, {id: 9, z: 4}, {id: 2, z: 0},
	}

	boards := make([][]widget.Widget, 0, len(backends))
	chains := make([][][]widget.Widget, 0, len(backends))
	for _, b := range backends {
		s := b.open(t)
		for _, o := range ops {
			if o.del {
				_, err := s.Delete(ctx, id(o.id))
				require.NoError(t, err, b.name)
			} else {
				w := fixture(o.z).WithID(id(o.id))
				w.X = o.id * 10
				place(t, s, w)
			}
			assertConsistent(t, s)
		}
		boards = append(boards, all(t, s))

		var perZ [][]widget.Widget
		for z := -2; z < 16; z++ {
			chain, err := s.FindCollisionChain(ctx, z)
			require.NoError(t, err)
			perZ = append(perZ, chain)
		}
		chains = append(chains, perZ)
	}

	for i := 1; i < len(backends); i++ {
		assert.Equal(t, boards[0], boards[i], "%s vs %s", backends[0].name, backends[i].name)
		assert.Equal(t, chains[0], chains[i], "%s vs %s", backends[0].name, backends[i].name)
	}
}
