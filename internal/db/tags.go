package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tgienger/taskdemo/internal/models"
)

const tagColumns = `id, session_id, name, color, created_at, updated_at`

func scanTag(row interface{ Scan(...any) error }) (models.Tag, error) {
	var t models.Tag
	err := row.Scan(&t.ID, &t.SessionID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateTag creates a new tag
func (q *Queries) CreateTag(ctx context.Context, sessionID, name, color string) (*models.Tag, error) {
	ts := now()
	id := uuid.NewString()
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tags (id, session_id, name, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionID, name, color, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return q.GetTag(ctx, sessionID, id)
}

// GetTag retrieves a tag by ID within a session
func (q *Queries) GetTag(ctx context.Context, sessionID, id string) (*models.Tag, error) {
	t, err := scanTag(q.q.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = ? AND session_id = ?`, id, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTags returns all tags of a session ordered by name
func (q *Queries) ListTags(ctx context.Context, sessionID string) ([]models.Tag, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE session_id = ? ORDER BY name COLLATE NOCASE`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListTagUsage returns every tag of a session with the number of tasks using
// it, most used first
func (q *Queries) ListTagUsage(ctx context.Context, sessionID string) ([]models.TagUsage, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT t.id, t.session_id, t.name, t.color, t.created_at, t.updated_at, COUNT(tt.task_id)
		FROM tags t
		LEFT JOIN task_tags tt ON t.id = tt.tag_id
		WHERE t.session_id = ?
		GROUP BY t.id
		ORDER BY COUNT(tt.task_id) DESC, t.name COLLATE NOCASE
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []models.TagUsage
	for rows.Next() {
		var u models.TagUsage
		if err := rows.Scan(&u.ID, &u.SessionID, &u.Name, &u.Color, &u.CreatedAt, &u.UpdatedAt, &u.UsageCount); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// CountTags returns the number of live tags in a session
func (q *Queries) CountTags(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

// UpdateTag updates a tag owned by the session
func (q *Queries) UpdateTag(ctx context.Context, sessionID, id, name, color string) error {
	result, err := q.q.ExecContext(ctx, `
		UPDATE tags SET name = ?, color = ?, updated_at = ? WHERE id = ? AND session_id = ?
	`, name, color, now(), id, sessionID)
	if err != nil {
		return fmt.Errorf("update tag: %w", err)
	}
	return expectRow(result)
}

// DeleteTag deletes a tag owned by the session and returns the number of
// rows removed. Task links go with it.
func (q *Queries) DeleteTag(ctx context.Context, sessionID, id string) (int64, error) {
	result, err := q.q.ExecContext(ctx, "DELETE FROM tags WHERE id = ? AND session_id = ?", id, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete tag: %w", err)
	}
	return result.RowsAffected()
}

// OwnedTagIDs returns the subset of ids that belong to the session
func (q *Queries) OwnedTagIDs(ctx context.Context, sessionID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := q.q.QueryContext(ctx,
		`SELECT id FROM tags WHERE session_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned = append(owned, id)
	}
	return owned, rows.Err()
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
