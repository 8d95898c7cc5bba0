package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedant-vijay/community-platform/internal/docstore"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store implements docstore.Store on a local SQLite file. Live queries are
// driven by an in-process Hub, so only writes made through this Store are
// observed.
type Store struct {
	db  *sql.DB
	hub *docstore.Hub

	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database at path and applies the schema.
// The caller should call Close when the store is no longer needed.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:  db,
		hub: docstore.NewHub(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	schema, err := fs.ReadFile(schemaFS, "schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(schema))
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT collection, id, data, create_time, update_time
		 FROM documents WHERE collection = ? AND id = ?`, collection, id)

	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return d, nil
}

// Set creates or replaces a document.
func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := s.write(ctx, collection, id, fields); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add creates a document with a generated id.
func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.write(ctx, collection, id, fields); err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	return id, nil
}

func (s *Store) write(ctx context.Context, collection, id string, fields docstore.Fields) error {
	now := s.stamp()
	resolved, err := docstore.Resolve(fields, now)
	if err != nil {
		return err
	}

	data, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	ts := docstore.FormatTime(now)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, create_time, update_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, update_time = excluded.update_time`,
		collection, id, string(data), ts, ts,
	)
	if err != nil {
		return err
	}

	s.hub.Notify(collection)
	return nil
}

// Query runs a one-shot query.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT collection, id, data, create_time, update_time FROM documents WHERE collection = ?`)
	for _, f := range q.Filters {
		sb.WriteString(` AND json_extract(data, ?) = ?`)
		args = append(args, "$."+f.Field, f.Value)
	}

	dir := "ASC"
	if q.Direction == docstore.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, ` ORDER BY json_extract(data, ?) %s, id %s`, dir, dir)
		args = append(args, "$."+q.OrderBy)
	} else {
		fmt.Fprintf(&sb, ` ORDER BY id %s`, dir)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// Listen opens a live query.
func (s *Store) Listen(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	return docstore.Watch(ctx, s.hub, q, s.Query)
}

// stamp returns a strictly increasing server time at microsecond resolution.
func (s *Store) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (docstore.Document, error) {
	var (
		d                docstore.Document
		data             string
		created, updated string
	)
	if err := row.Scan(&d.Collection, &d.ID, &data, &created, &updated); err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(data), &d.Fields); err != nil {
		return d, fmt.Errorf("unmarshal data: %w", err)
	}

	var err error
	if d.CreateTime, err = docstore.ParseTime(created); err != nil {
		return d, fmt.Errorf("parse create_time: %w", err)
	}
	if d.UpdateTime, err = docstore.ParseTime(updated); err != nil {
		return d, fmt.Errorf("parse update_time: %w", err)
	}
	return d, nil
}
