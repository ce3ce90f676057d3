package board

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dreamware/zboard/internal/events"
	"github.com/dreamware/zboard/internal/storage"
	"github.com/dreamware/zboard/internal/widget"
)

// Service runs widget operations against a store
// Safe for concurrent use; all coordination happens in the store.
type Service struct {
	store     storage.Store
	publisher events.Publisher
	logger    *log.Logger
	newID     func() uuid.UUID
	now       func() time.Time
	ops       counters
}

// Stats combines operation counts with storage statistics
type Stats struct {
	Ops     OperationStats     `json:"ops"`     // Operation counts since start
	Storage storage.StoreStats `json:"storage"` // Storage statistics
}

// OperationStats tracks operation counts
type OperationStats struct {
	Creates   uint64 `json:"creates"`   // Number of create operations
	Updates   uint64 `json:"updates"`   // Number of update operations
	Deletes   uint64 `json:"deletes"`   // Number of delete operations
	Fetches   uint64 `json:"fetches"`   // Number of single-widget reads
	Conflicts uint64 `json:"conflicts"` // Writes rejected as concurrent modifications
}

type counters struct {
	creates, updates, deletes, fetches, conflicts atomic.Uint64
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger; the default discards debug output
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPublisher sets where change events go
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithIDGenerator replaces uuid.New for new widgets
func WithIDGenerator(f func() uuid.UUID) Option {
	return func(s *Service) { s.newID = f }
}

// WithClock replaces time.Now for event timestamps
func WithClock(f func() time.Time) Option {
	return func(s *Service) { s.now = f }
}

// NewService creates a service over store
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.Default(),
		newID:  uuid.New,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a new widget
// Without a requested z-index the widget goes on top of the stack.
func (s *Service) Create(ctx context.Context, cmd widget.CreateCommand) (widget.Widget, error) {
	s.ops.creates.Add(1)
	saved, shifted, err := s.place(ctx, cmd, s.newID())
	if err != nil {
		return widget.Widget{}, s.failed(err)
	}
	s.logger.Debug("created widget", "id", saved.ID, "z", saved.ZIndex, "shifted", len(shifted))
	s.publish(ctx, events.Created, saved, shifted)
	return saved, nil
}

// Update replaces the widget with the given ID, keeping its ID
// Returns ErrNotFound if it doesn't exist, including when a delete commits
// while the update is in flight
func (s *Service) Update(ctx context.Context, id uuid.UUID, cmd widget.UpdateCommand) (widget.Widget, error) {
	s.ops.updates.Add(1)
	_, ok, err := s.store.FindByID(ctx, id)
	if err != nil {
		return widget.Widget{}, err
	}
	if !ok {
		return widget.Widget{}, widget.NotFound(id)
	}

	saved, shifted, err := s.place(ctx, cmd, id, storage.MustExist())
	if err != nil {
		return widget.Widget{}, s.failed(err)
	}
	s.logger.Debug("updated widget", "id", saved.ID, "z", saved.ZIndex, "shifted", len(shifted))
	s.publish(ctx, events.Updated, saved, shifted)
	return saved, nil
}

// Delete removes a widget and returns it
// Returns ErrNotFound if it doesn't exist
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (widget.Widget, error) {
	s.ops.deletes.Add(1)
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return widget.Widget{}, s.failed(err)
	}
	s.logger.Debug("deleted widget", "id", id, "z", removed.ZIndex)
	s.publish(ctx, events.Deleted, removed, nil)
	return removed, nil
}

// Fetch looks a widget up; absence is reported through ok
func (s *Service) Fetch(ctx context.Context, id uuid.UUID) (widget.Widget, bool, error) {
	s.ops.fetches.Add(1)
	return s.store.FindByID(ctx, id)
}

// List returns one page of the board in ascending z-index order
func (s *Service) List(ctx context.Context, page widget.Page) ([]widget.Widget, error) {
	return s.store.ListAll(ctx, page)
}

// FilterInArea returns the widgets whose centerpoint lies strictly inside area
func (s *Service) FilterInArea(ctx context.Context, area widget.Area) ([]widget.Widget, error) {
	return s.store.ListWithinArea(ctx, area)
}

// Stats returns current operation and storage statistics
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	storageStats, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Ops: OperationStats{
			Creates:   s.ops.creates.Load(),
			Updates:   s.ops.updates.Load(),
			Deletes:   s.ops.deletes.Load(),
			Fetches:   s.ops.fetches.Load(),
			Conflicts: s.ops.conflicts.Load(),
		},
		Storage: storageStats,
	}, nil
}

// place resolves the target z-index and collision chain for cmd and saves
// the widget under id together with the shifted chain
func (s *Service) place(ctx context.Context, cmd widget.Command, id uuid.UUID, opts ...storage.SaveOption) (widget.Widget, []widget.Widget, error) {
	z, ok := cmd.RequestedZIndex()
	if !ok {
		largest, found, err := s.store.FindLargestZIndex(ctx)
		if err != nil {
			return widget.Widget{}, nil, err
		}
		if found {
			if z, err = widget.Above(largest); err != nil {
				return widget.Widget{}, nil, err
			}
		}
	}

	primary, err := widget.FromCommand(cmd, z)
	if err != nil {
		return widget.Widget{}, nil, err
	}
	primary = primary.WithID(id)

	chain, err := s.store.FindCollisionChain(ctx, z)
	if err != nil {
		return widget.Widget{}, nil, err
	}
	if err := widget.CheckShift(chain); err != nil {
		return widget.Widget{}, nil, err
	}
	shifted := widget.ShiftUp(chain)

	saved, err := s.store.Save(ctx, primary, shifted, opts...)
	if err != nil {
		return widget.Widget{}, nil, err
	}
	return saved, others(shifted, id), nil
}

// others drops the widget being written from its own chain
func others(shifted []widget.Widget, id uuid.UUID) []widget.Widget {
	var out []widget.Widget
	for _, w := range shifted {
		if w.ID != id {
			out = append(out, w)
		}
	}
	return out
}

func (s *Service) failed(err error) error {
	if errors.Is(err, widget.ErrConcurrentModification) {
		s.ops.conflicts.Add(1)
	}
	return err
}

func (s *Service) publish(ctx context.Context, typ events.Type, w widget.Widget, shifted []widget.Widget) {
	if s.publisher == nil {
		return
	}
	e := events.Event{Type: typ, Widget: w, Shifted: shifted, At: s.now().UTC()}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publishing change event", "type", typ, "id", w.ID, "err", err)
	}
}
