package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // SQLite driver registration
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultBusyTimeout = 5000

// Store persists events in the SQLite table audit_events. Triggers reject
// UPDATE and DELETE, so the table is append-only.
type Store struct {
	db *sql.DB
}

var (
	_ Sink    = (*Store)(nil)
	_ Resumer = (*Store)(nil)
)

// OpenStore opens or creates the database at path and applies pending
// migrations. The database uses WAL mode, a 5 s busy timeout and a single
// connection.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("audit: migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("audit: migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("audit: run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write inserts e.
func (s *Store) Write(ctx context.Context, e Event) error {
	payload := []byte("{}")
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("audit: marshal payload: %w", err)
		}
		payload = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (sequence, timestamp, kind, severity, execution_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		int64(e.Sequence), e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Kind), string(e.Severity), e.ExecutionID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("audit: insert event %d: %w", e.Sequence, err)
	}
	return nil
}

// MaxSequence returns the largest stored sequence, or 0 for an empty table.
func (s *Store) MaxSequence(ctx context.Context) (uint64, error) {
	var last int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(sequence), 0) FROM audit_events").Scan(&last); err != nil {
		return 0, fmt.Errorf("audit: max sequence: %w", err)
	}
	return uint64(last), nil
}

// Query returns stored events matching f, oldest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, f.ExecutionID)
	}
	if f.AfterSequence > 0 {
		where = append(where, "sequence > ?")
		args = append(args, int64(f.AfterSequence))
	}

	q := "SELECT sequence, timestamp, kind, severity, execution_id, payload FROM audit_events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY sequence DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			seq     int64
			ts      string
			kind    string
			sev     string
			payload string
		)
		if err := rows.Scan(&seq, &ts, &kind, &sev, &e.ExecutionID, &payload); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Sequence = uint64(seq)
		e.Kind = Kind(kind)
		e.Severity = Severity(sev)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("audit: event %d timestamp: %w", seq, err)
		}
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit: event %d payload: %w", seq, err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}

	// Selected newest first so LIMIT keeps the tail; return oldest first.
	slices.Reverse(events)
	return events, nil
}
