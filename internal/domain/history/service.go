// Package history persists dispatch outcomes and capture sessions.
// Rows are append-only; captured frames are never stored.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrNotFound is returned by GetByID for unknown ids.
var ErrNotFound = errors.New("history: not found")

// Entry is one persisted dispatch.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Frames    int       `json:"frames"`
	Status    string    `json:"status"`
	Reply     string    `json:"reply,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one persisted continuous stream start.
type Session struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Provider  string    `json:"provider,omitempty"`
	FPS       int       `json:"fps"`
	BatchSize int       `json:"batch_size"`
	StartedAt time.Time `json:"started_at"`
}

// ListFilter selects a page of entries, newest first.
type ListFilter struct {
	SessionID string
	Limit     int
	Offset    int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Service reads and writes the history tables.
type Service struct {
	db *sql.DB
}

// NewService creates a Service over a migrated database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RecordDispatch implements vision.Recorder.
func (s *Service) RecordDispatch(ctx context.Context, rec vision.DispatchRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch (id, session_id, provider, model, frames, status, reply, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.SessionID, rec.Provider, rec.Model, rec.Frames, string(rec.Status),
		rec.Reply, rec.Error, rec.Latency.Milliseconds(), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("history record dispatch: %w", err)
	}
	return nil
}

// RecordSession stores a stream start.
func (s *Service) RecordSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capture_session (id, question, provider, fps, batch_size, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Question, sess.Provider, sess.FPS, sess.BatchSize, formatTime(sess.StartedAt))
	if err != nil {
		return fmt.Errorf("history record session: %w", err)
	}
	return nil
}

// List returns a page of entries and the total matching count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	f := filter.normalized()

	where, args := "", []any{}
	if f.SessionID != "" {
		where = "WHERE session_id = ?"
		args = append(args, f.SessionID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispatch "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, provider, model, frames, status, reply, error, latency_ms, created_at
		FROM dispatch `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("history list: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	entries := make([]*Entry, 0, f.Limit)
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("history list: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("history list: %w", err)
	}
	return entries, total, nil
}

// GetByID returns one entry.
func (s *Service) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, provider, model, frames, status, reply, error, latency_ms, created_at
		FROM dispatch WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history get %s: %w", id, err)
	}
	return e, nil
}

// GetSession returns one stream start.
func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess    Session
		started string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question, provider, fps, batch_size, started_at
		FROM capture_session WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Question, &sess.Provider, &sess.FPS, &sess.BatchSize, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history get session %s: %w", id, err)
	}
	sess.StartedAt = parseTime(started)
	return &sess, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e       Entry
		created string
	)
	if err := sc.Scan(&e.ID, &e.SessionID, &e.Provider, &e.Model, &e.Frames, &e.Status,
		&e.Reply, &e.Error, &e.LatencyMS, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(created)
	return &e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
