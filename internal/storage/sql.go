package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dreamware/zboard/internal/widget"
)

//go:embed schema.sql
var schema string

// Dialect selects the SQL flavour and driver of a SQLStore
type Dialect string

const (
	// DialectSQLite uses modernc.org/sqlite
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses the pgx database/sql driver
	DialectPostgres Dialect = "postgres"
)

const widgetColumns = "id, z_index, x_axis, y_axis, width, height"

// querier is the subset of *sql.DB and *sql.Tx the store reads through
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on a relational database
// Every Save and Delete runs in a single transaction, and the staleness check
// of a Save reads inside that same transaction, so the chain it validates is
// the chain it commits on top of.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL connects to the database, applies the schema and returns a ready store
//
// For SQLite the DSN is a file path or URI; busy timeout and immediate
// transactions are appended. For PostgreSQL it is any DSN pgx accepts.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			// One connection keeps ":memory:" databases shared and serialises
			// writers inside the process
			db.SetMaxOpenConns(1)
		}
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("applying schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_txlock=immediate"
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites "?" placeholders into the dialect's form
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// order is the ORDER BY clause matching widget.Compare
func (s *SQLStore) order() string {
	if s.dialect == DialectPostgres {
		return ` ORDER BY z_index, id COLLATE "C"`
	}
	return " ORDER BY z_index, id"
}

func (s *SQLStore) txOptions() *sql.TxOptions {
	if s.dialect == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// ListAll returns one page of the board
func (s *SQLStore) ListAll(ctx context.Context, page widget.Page) ([]widget.Widget, error) {
	offset, ok := page.Offset()
	if !ok {
		return []widget.Widget{}, nil
	}
	q := "SELECT " + widgetColumns + " FROM widget" + s.order() + " LIMIT ? OFFSET ?"
	return s.query(ctx, s.db, q, page.Size, offset)
}

// ListWithinArea pushes the centerpoint predicate down to the database
func (s *SQLStore) ListWithinArea(ctx context.Context, area widget.Area) ([]widget.Widget, error) {
	q := "SELECT " + widgetColumns + " FROM widget" +
		" WHERE x_axis + (height / 2) > ? AND x_axis + (height / 2) < ?" +
		" AND y_axis + (width / 2) > ? AND y_axis + (width / 2) < ?" +
		s.order()
	return s.query(ctx, s.db, q,
		area.LowerLeft.X, area.UpperRight.X,
		area.LowerLeft.Y, area.UpperRight.Y)
}

// FindByID looks a single row up
func (s *SQLStore) FindByID(ctx context.Context, id uuid.UUID) (widget.Widget, bool, error) {
	return s.findByID(ctx, s.db, id)
}

// FindLargestZIndex reads the top of the z_index index
func (s *SQLStore) FindLargestZIndex(ctx context.Context) (int, bool, error) {
	var z int
	err := s.db.QueryRowContext(ctx, "SELECT z_index FROM widget ORDER BY z_index DESC LIMIT 1").Scan(&z)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return z, true, nil
}

// FindCollisionChain scans rows at or above z and resolves the chain in process
func (s *SQLStore) FindCollisionChain(ctx context.Context, z int) ([]widget.Widget, error) {
	return s.collisionChain(ctx, s.db, z)
}

func (s *SQLStore) collisionChain(ctx context.Context, q querier, z int) ([]widget.Widget, error) {
	rows, err := s.query(ctx, q, "SELECT "+widgetColumns+" FROM widget WHERE z_index >= ?"+s.order(), z)
	if err != nil {
		return nil, err
	}
	return widget.Chain(widget.Resolve(rows, z)), nil
}

// Save writes shifted and then primary inside one transaction
func (s *SQLStore) Save(ctx context.Context, primary widget.Widget, shifted []widget.Widget, opts ...SaveOption) (widget.Widget, error) {
	primary, err := prepare(primary, shifted)
	if err != nil {
		return widget.Widget{}, err
	}

	tx, err := s.db.BeginTx(ctx, s.txOptions())
	if err != nil {
		return widget.Widget{}, s.classify(primary.ID, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkChain(txView{ctx: ctx, tx: tx, s: s}, primary, shifted, collect(opts)); err != nil {
		return widget.Widget{}, s.classify(primary.ID, err)
	}

	upsert := s.rebind("INSERT INTO widget (" + widgetColumns + ") VALUES (?, ?, ?, ?, ?, ?)" +
		" ON CONFLICT (id) DO UPDATE SET z_index = excluded.z_index, x_axis = excluded.x_axis," +
		" y_axis = excluded.y_axis, width = excluded.width, height = excluded.height")
	for _, w := range append(shifted[:len(shifted):len(shifted)], primary) {
		if _, err := tx.ExecContext(ctx, upsert, w.ID.String(), w.ZIndex, w.X, w.Y, w.Width, w.Height); err != nil {
			return widget.Widget{}, s.classify(primary.ID, fmt.Errorf("writing widget %s: %w", w.ID, err))
		}
	}

	saved, _, err := s.findByID(ctx, tx, primary.ID)
	if err != nil {
		return widget.Widget{}, s.classify(primary.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return widget.Widget{}, s.classify(primary.ID, fmt.Errorf("committing: %w", err))
	}
	return saved, nil
}

// Delete removes one row inside a transaction
// Returns ErrNotFound if it doesn't exist
func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) (widget.Widget, error) {
	tx, err := s.db.BeginTx(ctx, s.txOptions())
	if err != nil {
		return widget.Widget{}, s.classify(id, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	found, ok, err := s.findByID(ctx, tx, id)
	if err != nil {
		return widget.Widget{}, s.classify(id, err)
	}
	if !ok {
		return widget.Widget{}, widget.NotFound(id)
	}
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM widget WHERE id = ?"), id.String()); err != nil {
		return widget.Widget{}, s.classify(id, err)
	}
	if err := tx.Commit(); err != nil {
		return widget.Widget{}, s.classify(id, fmt.Errorf("committing: %w", err))
	}
	return found, nil
}

// Stats counts rows and reads the largest z-index in one query
func (s *SQLStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(MAX(z_index), 0) FROM widget").
		Scan(&stats.Widgets, &stats.LargestZIndex)
	return stats, err
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) findByID(ctx context.Context, q querier, id uuid.UUID) (widget.Widget, bool, error) {
	ws, err := s.query(ctx, q, "SELECT "+widgetColumns+" FROM widget WHERE id = ?", id.String())
	if err != nil || len(ws) == 0 {
		return widget.Widget{}, false, err
	}
	return ws[0], true, nil
}

func (s *SQLStore) query(ctx context.Context, q querier, query string, args ...any) ([]widget.Widget, error) {
	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []widget.Widget{}
	for rows.Next() {
		var (
			w  widget.Widget
			id string
		)
		if err := rows.Scan(&id, &w.ZIndex, &w.X, &w.Y, &w.Width, &w.Height); err != nil {
			return nil, err
		}
		if w.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("row with malformed id %q: %w", id, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// classify maps serialization failures onto ErrConcurrentModification
func (s *SQLStore) classify(id uuid.UUID, err error) error {
	if err == nil || errors.Is(err, widget.ErrConcurrentModification) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %v", widget.Conflict(id), err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", widget.Conflict(id), err)
		}
	}
	return err
}

// txView reads the board through an open transaction for checkChain
type txView struct {
	ctx context.Context
	tx  *sql.Tx
	s   *SQLStore
}

func (v txView) byID(id uuid.UUID) (widget.Widget, bool, error) {
	return v.s.findByID(v.ctx, v.tx, id)
}

func (v txView) idsAt(z int) ([]uuid.UUID, error) {
	ws, err := v.s.query(v.ctx, v.tx, "SELECT "+widgetColumns+" FROM widget WHERE z_index = ?", z)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	return ids, nil
}
