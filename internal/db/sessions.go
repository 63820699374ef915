package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tgienger/taskdemo/internal/models"
)

// Counter names one of the session usage counters
type Counter int

const (
	CounterTaskCreate Counter = iota
	CounterTaskUpdate
	CounterTagCreate
	CounterTagUpdate
)

func (c Counter) column() (string, error) {
	switch c {
	case CounterTaskCreate:
		return "task_create_count", nil
	case CounterTaskUpdate:
		return "task_update_count", nil
	case CounterTagCreate:
		return "tag_create_count", nil
	case CounterTagUpdate:
		return "tag_update_count", nil
	}
	return "", fmt.Errorf("unknown counter %d", c)
}

const sessionColumns = `id, task_create_count, task_update_count, tag_create_count, tag_update_count, seeded_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	s := &models.Session{}
	var seededAt sql.NullTime
	err := row.Scan(&s.ID, &s.TaskCreateCount, &s.TaskUpdateCount, &s.TagCreateCount, &s.TagUpdateCount,
		&seededAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.SeededAt = timePtr(seededAt)
	return s, nil
}

// EnsureSession finds or creates the session with the given id. The second
// return value reports whether this call inserted the row.
func (q *Queries) EnsureSession(ctx context.Context, id string) (*models.Session, bool, error) {
	ts := now()
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, ts, ts)
	if err != nil {
		return nil, false, fmt.Errorf("upsert session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	s, err := q.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return s, n > 0, nil
}

// CreateSession inserts a session with a freshly generated id
func (q *Queries) CreateSession(ctx context.Context) (*models.Session, error) {
	ts := now()
	id := uuid.NewString()
	if _, err := q.q.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
	`, id, ts, ts); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return q.GetSession(ctx, id)
}

// GetSession retrieves a session by ID
func (q *Queries) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s, err := scanSession(q.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns all sessions, most recently active first
func (q *Queries) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// MarkSessionSeeded stamps the time default data was populated
func (q *Queries) MarkSessionSeeded(ctx context.Context, id string, at time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE sessions SET seeded_at = ?, updated_at = ? WHERE id = ?
	`, at.UTC(), now(), id)
	return err
}

// IncrementSessionCounter adds one to the given usage counter
func (q *Queries) IncrementSessionCounter(ctx context.Context, id string, c Counter) error {
	col, err := c.column()
	if err != nil {
		return err
	}

	result, err := q.q.ExecContext(ctx,
		`UPDATE sessions SET `+col+` = `+col+` + 1, updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}
	return expectRow(result)
}

// SessionCount returns the number of sessions
func (q *Queries) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

// DeleteSession removes a session together with its tasks and tags
func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	result, err := q.q.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectRow(result)
}
