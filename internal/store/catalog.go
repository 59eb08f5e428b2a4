package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

const catalogSchemaVersion = 1

// SQLiteCatalog is the path-keyed file catalog.
//
// Every statement, read or write, runs on one actor goroutine that owns the
// only connection. Callers enqueue requests on a bounded channel and wait
// for the reply; a request that has been dequeued always runs to completion
// even if its caller gives up.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
	opts CatalogOptions

	reqs    chan catalogRequest
	quit    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ Catalog = (*SQLiteCatalog)(nil)

type catalogRequest struct {
	ctx   context.Context
	fn    func(ctx context.Context, db *sql.DB) error
	reply chan error
}

// NewSQLiteCatalog opens (creating if needed) the catalog at path and starts
// its actor. An empty path opens an in-memory catalog for tests.
func NewSQLiteCatalog(path string, opts CatalogOptions) (*SQLiteCatalog, error) {
	def := DefaultCatalogOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = def.BusyTimeoutMS
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, catalogErr("create catalog directory", err).WithDetail("path", path)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, catalogErr("open catalog", err).WithDetail("path", path)
	}

	// One connection: the actor is the only user, and :memory: databases
	// are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters, so set pragmas directly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, catalogErr("set pragma", err).WithDetail("pragma", pragma)
		}
	}

	if err := initCatalogSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &SQLiteCatalog{
		db:      db,
		path:    path,
		opts:    opts,
		reqs:    make(chan catalogRequest, opts.QueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.run()

	slog.Info("catalog_opened",
		slog.String("path", path),
		slog.Int("queue_size", opts.QueueSize))
	return c, nil
}

func initCatalogSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			processed_at TEXT NOT NULL,
			vector_id TEXT UNIQUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return catalogErr("create schema", err)
		}
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", catalogSchemaVersion); err != nil {
			return catalogErr("write schema version", err)
		}
	case err != nil:
		return catalogErr("read schema version", err)
	case version > catalogSchemaVersion:
		return mferrors.New(mferrors.ErrCodeSchemaMismatch,
			fmt.Sprintf("catalog schema version %d is newer than supported version %d", version, catalogSchemaVersion), nil).
			WithSuggestion("Upgrade magicfolder or point storage.catalog_path at a new file")
	}
	return nil
}

func (c *SQLiteCatalog) run() {
	defer close(c.stopped)
	for {
		select {
		case req := <-c.reqs:
			c.serve(req)
		case <-c.quit:
			// Drain what was already accepted before shutting down.
			for {
				select {
				case req := <-c.reqs:
					c.serve(req)
				default:
					return
				}
			}
		}
	}
}

func (c *SQLiteCatalog) serve(req catalogRequest) {
	req.reply <- req.fn(context.WithoutCancel(req.ctx), c.db)
}

// do enqueues fn and waits for its result. It blocks while the queue is full.
func (c *SQLiteCatalog) do(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	req := catalogRequest{ctx: ctx, fn: fn, reply: make(chan error, 1)}

	select {
	case <-c.quit:
		return closedErr().WithDetail("store", "catalog")
	default:
	}

	select {
	case c.reqs <- req:
	case <-ctx.Done():
		return catalogErr("enqueue", ctx.Err())
	case <-c.quit:
		return closedErr().WithDetail("store", "catalog")
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return catalogErr("wait", ctx.Err())
	case <-c.stopped:
		// The actor may have replied just before stopping.
		select {
		case err := <-req.reply:
			return err
		default:
			return closedErr().WithDetail("store", "catalog")
		}
	}
}

// RecordProcessing inserts or refreshes the row for path and returns its ID.
// The ID assigned on first insert is kept across reprocessing.
func (c *SQLiteCatalog) RecordProcessing(ctx context.Context, path, vectorKey string) (int64, error) {
	if path == "" {
		return 0, mferrors.Validation(mferrors.ErrCodeInvalidInput, "catalog path must not be empty")
	}

	var id int64
	err := c.do(ctx, func(ctx context.Context, db *sql.DB) error {
		now := c.opts.Now().UTC().Format(time.RFC3339Nano)
		row := db.QueryRowContext(ctx, `
			INSERT INTO files (path, processed_at, vector_id)
			VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				processed_at = excluded.processed_at,
				vector_id = excluded.vector_id
			RETURNING id`,
			path, now, vectorKey)
		if err := row.Scan(&id); err != nil {
			return catalogErr("record processing", err).WithDetail("path", path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetByPath returns the record for path, or nil if the path was never processed.
func (c *SQLiteCatalog) GetByPath(ctx context.Context, path string) (*FileRecord, error) {
	var rec *FileRecord
	err := c.do(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			"SELECT id, path, processed_at, COALESCE(vector_id, '') FROM files WHERE path = ?", path)
		r, err := scanFileRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return catalogErr("get file", err).WithDetail("path", path)
		}
		rec = r
		return nil
	})
	return rec, err
}

// List returns records ordered by ID.
func (c *SQLiteCatalog) List(ctx context.Context, limit, offset int) ([]*FileRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	var out []*FileRecord
	err := c.do(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT id, path, processed_at, COALESCE(vector_id, '') FROM files ORDER BY id LIMIT ? OFFSET ?",
			limit, offset)
		if err != nil {
			return catalogErr("list files", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanFileRecord(rows)
			if err != nil {
				return catalogErr("list files", err)
			}
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			return catalogErr("list files", err)
		}
		return nil
	})
	return out, err
}

// Count returns the number of cataloged paths.
func (c *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.do(ctx, func(ctx context.Context, db *sql.DB) error {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n); err != nil {
			return catalogErr("count files", err)
		}
		return nil
	})
	return n, err
}

// VectorKeys returns every non-null vector_id.
func (c *SQLiteCatalog) VectorKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := c.do(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, "SELECT vector_id FROM files WHERE vector_id IS NOT NULL ORDER BY id")
		if err != nil {
			return catalogErr("list vector keys", err)
		}
		defer rows.Close()

		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return catalogErr("list vector keys", err)
			}
			keys = append(keys, k)
		}
		if err := rows.Err(); err != nil {
			return catalogErr("list vector keys", err)
		}
		return nil
	})
	return keys, err
}

// Pending returns the number of queued requests not yet picked up.
func (c *SQLiteCatalog) Pending() int {
	return len(c.reqs)
}

// QueueCapacity returns the bound on queued requests.
func (c *SQLiteCatalog) QueueCapacity() int {
	return cap(c.reqs)
}

// Path returns the database file path ("" for in-memory).
func (c *SQLiteCatalog) Path() string {
	return c.path
}

// Close stops accepting requests, finishes queued ones and closes the database.
func (c *SQLiteCatalog) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.stopped
		if err := c.db.Close(); err != nil {
			c.closeErr = catalogErr("close catalog", err)
		}
	})
	return c.closeErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(s rowScanner) (*FileRecord, error) {
	var (
		r  FileRecord
		ts string
	)
	if err := s.Scan(&r.ID, &r.Path, &ts, &r.VectorKey); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse processed_at %q: %w", ts, err)
	}
	r.ProcessedAt = t
	return &r, nil
}

func catalogErr(op string, cause error) *mferrors.Error {
	return mferrors.Storage(mferrors.ErrCodeCatalogStore, op, cause).WithDetail("store", "catalog")
}
