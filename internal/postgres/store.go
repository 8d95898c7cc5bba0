package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vedant-vijay/community-platform/internal/docstore"
)

// notifyChannel is the NOTIFY channel written by the documents trigger. The
// payload is the collection name.
const notifyChannel = "document_changes"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements docstore.Store on PostgreSQL. Documents are JSONB rows and
// live queries are woken by a trigger-driven NOTIFY, so writes from any
// process sharing the database are observed.
type Store struct {
	db       *sql.DB
	hub      *docstore.Hub
	listener *pq.Listener
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore connects to PostgreSQL at the given URL, applies migrations,
// starts listening for document changes and returns a new Store. The caller
// should call Close when the store is no longer needed.
func NewStore(databaseURL string, logger *slog.Logger) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("document listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		hub:      docstore.NewHub(),
		listener: listener,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.dispatch(ctx)

	return s, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close stops the change listener and closes the database.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	if err := s.listener.Close(); err != nil {
		s.logger.Warn("failed to close document listener", "error", err)
	}
	return s.db.Close()
}

func (s *Store) dispatch(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.listener.Notify:
			if n == nil {
				// Reconnected: notifications sent while down are lost.
				s.logger.Info("document listener reconnected")
				s.hub.NotifyAll()
				continue
			}
			s.hub.Notify(n.Extra)
		case <-time.After(90 * time.Second):
			go s.listener.Ping()
		}
	}
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection, id, data, create_time, update_time
		FROM documents
		WHERE collection = $1 AND id = $2`,
		collection, id,
	)

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
	if err := s.upsert(ctx, collection, id, fields); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add creates a document with a generated id.
func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.upsert(ctx, collection, id, fields); err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	return id, nil
}

// upsert writes the document. Fields holding the server timestamp sentinel
// are filled in by the database clock.
func (s *Store) upsert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	plain, stamped, err := docstore.SplitServerTimestamps(fields)
	if err != nil {
		return err
	}

	data, err := json.Marshal(plain)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, create_time, update_time)
		VALUES ($1, $2, $3::jsonb || COALESCE((
			SELECT jsonb_object_agg(f, to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'))
			FROM unnest($4::text[]) AS f
		), '{}'::jsonb), now(), now())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, update_time = EXCLUDED.update_time`,
		collection, id, string(data), pq.Array(stamped),
	)
	return err
}

// Query runs a one-shot query.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT collection, id, data, create_time, update_time FROM documents WHERE collection = $1`)
	for _, f := range q.Filters {
		value, err := textValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		fmt.Fprintf(&sb, ` AND data->>$%d = $%d`, len(args)+1, len(args)+2)
		args = append(args, f.Field, value)
	}

	dir := "ASC"
	if q.Direction == docstore.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, ` ORDER BY data->>$%d %s, id %s`, len(args)+1, dir, dir)
		args = append(args, q.OrderBy)
	} else {
		fmt.Fprintf(&sb, ` ORDER BY id %s`, dir)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s (filters=%d, order=%q): %w", q.Collection, len(q.Filters), q.OrderBy, err)
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

// textValue renders a filter value the way ->> renders the stored JSON value.
func textValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (docstore.Document, error) {
	var (
		d    docstore.Document
		data []byte
	)
	err := row.Scan(
		&d.Collection,
		&d.ID,
		&data,
		&d.CreateTime,
		&d.UpdateTime,
	)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(data, &d.Fields); err != nil {
		return d, fmt.Errorf("unmarshal data: %w", err)
	}
	d.CreateTime = d.CreateTime.UTC()
	d.UpdateTime = d.UpdateTime.UTC()
	return d, nil
}
