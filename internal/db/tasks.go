package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tgienger/taskdemo/internal/models"
)

// TaskFields are the mutable columns of a task
type TaskFields struct {
	Title       string
	Description string
	DueDate     *time.Time
	Priority    models.Priority
	Status      models.Status
}

// TaskFilter narrows ListTasksFiltered. Zero values mean no filter.
type TaskFilter struct {
	Status models.Status
	TagID  string
	Search string
}

const taskColumns = `t.id, t.session_id, t.title, t.description, t.due_date, t.priority, t.status, t.created_at, t.updated_at`

func scanTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var t models.Task
	var due sql.NullTime
	err := row.Scan(&t.ID, &t.SessionID, &t.Title, &t.Description, &due, &t.Priority, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	t.DueDate = timePtr(due)
	return t, err
}

// CreateTask creates a new task and links the given tags
func (q *Queries) CreateTask(ctx context.Context, sessionID string, f TaskFields, tagIDs []string) (*models.Task, error) {
	ts := now()
	id := uuid.NewString()
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tasks (id, session_id, title, description, due_date, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, sessionID, f.Title, f.Description, nullTime(f.DueDate), f.Priority, f.Status, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	if err := q.SetTaskTags(ctx, id, tagIDs); err != nil {
		return nil, err
	}

	return q.GetTask(ctx, sessionID, id)
}

// GetTask retrieves a task by ID with its tags
func (q *Queries) GetTask(ctx context.Context, sessionID, id string) (*models.Task, error) {
	t, err := scanTask(q.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ? AND t.session_id = ?`, id, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tags, err := q.GetTaskTags(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Tags = tags

	return &t, nil
}

// ListTasks returns all tasks of a session, newest first
func (q *Queries) ListTasks(ctx context.Context, sessionID string) ([]models.Task, error) {
	return q.ListTasksFiltered(ctx, sessionID, TaskFilter{})
}

// likeEscaper makes LIKE wildcards in user search text match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListTasksFiltered returns tasks filtered by status, tag and/or a search
// query over title and description
func (q *Queries) ListTasksFiltered(ctx context.Context, sessionID string, filter TaskFilter) ([]models.Task, error) {
	query := `SELECT DISTINCT ` + taskColumns + ` FROM tasks t`
	args := []any{sessionID}

	if filter.TagID != "" {
		query += " JOIN task_tags tt ON t.id = tt.task_id"
	}

	query += " WHERE t.session_id = ?"

	if filter.Status != "" {
		query += " AND t.status = ?"
		args = append(args, filter.Status)
	}

	if filter.Search != "" {
		query += ` AND (t.title LIKE ? ESCAPE '\' OR t.description LIKE ? ESCAPE '\')`
		searchPattern := "%" + likeEscaper.Replace(filter.Search) + "%"
		args = append(args, searchPattern, searchPattern)
	}

	if filter.TagID != "" {
		query += " AND tt.tag_id = ?"
		args = append(args, filter.TagID)
	}

	query += " ORDER BY t.created_at DESC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := q.attachTags(ctx, sessionID, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// attachTags loads the tags of every task in one query
func (q *Queries) attachTags(ctx context.Context, sessionID string, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT tt.task_id, tg.id, tg.session_id, tg.name, tg.color, tg.created_at, tg.updated_at
		FROM task_tags tt
		JOIN tags tg ON tg.id = tt.tag_id
		WHERE tg.session_id = ?
		ORDER BY tg.name COLLATE NOCASE
	`, sessionID)
	if err != nil {
		return err
	}
	defer rows.Close()

	byTask := make(map[string][]models.Tag)
	for rows.Next() {
		var taskID string
		var tg models.Tag
		if err := rows.Scan(&taskID, &tg.ID, &tg.SessionID, &tg.Name, &tg.Color, &tg.CreatedAt, &tg.UpdatedAt); err != nil {
			return err
		}
		byTask[taskID] = append(byTask[taskID], tg)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range tasks {
		tasks[i].Tags = byTask[tasks[i].ID]
	}
	return nil
}

// CountTasks returns the number of live tasks in a session
func (q *Queries) CountTasks(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

// CountTasksByStatus returns the number of tasks in each status. Statuses
// with no tasks are absent.
func (q *Queries) CountTasksByStatus(ctx context.Context, sessionID string) (map[models.Status]int, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM tasks WHERE session_id = ? GROUP BY status", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status models.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountTasksByPriority returns the number of tasks at each priority
func (q *Queries) CountTasksByPriority(ctx context.Context, sessionID string) (map[models.Priority]int, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT priority, COUNT(*) FROM tasks WHERE session_id = ? GROUP BY priority", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Priority]int)
	for rows.Next() {
		var priority models.Priority
		var n int
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, err
		}
		counts[priority] = n
	}
	return counts, rows.Err()
}

// UpdateTask replaces the mutable fields of a task owned by the session
func (q *Queries) UpdateTask(ctx context.Context, sessionID, id string, f TaskFields) error {
	result, err := q.q.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, status = ?, updated_at = ?
		WHERE id = ? AND session_id = ?
	`, f.Title, f.Description, nullTime(f.DueDate), f.Priority, f.Status, now(), id, sessionID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(result)
}

// SetTaskStatus changes only the status of a task owned by the session
func (q *Queries) SetTaskStatus(ctx context.Context, sessionID, id string, status models.Status) error {
	result, err := q.q.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND session_id = ?
	`, status, now(), id, sessionID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return expectRow(result)
}

// SetTaskPriority changes only the priority of a task owned by the session
func (q *Queries) SetTaskPriority(ctx context.Context, sessionID, id string, priority models.Priority) error {
	result, err := q.q.ExecContext(ctx, `
		UPDATE tasks SET priority = ?, updated_at = ? WHERE id = ? AND session_id = ?
	`, priority, now(), id, sessionID)
	if err != nil {
		return fmt.Errorf("update task priority: %w", err)
	}
	return expectRow(result)
}

// DeleteTask deletes a task owned by the session and returns the number of
// rows removed
func (q *Queries) DeleteTask(ctx context.Context, sessionID, id string) (int64, error) {
	result, err := q.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND session_id = ?", id, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	return result.RowsAffected()
}

// GetTaskTags returns all tags for a task
func (q *Queries) GetTaskTags(ctx context.Context, taskID string) ([]models.Tag, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT t.id, t.session_id, t.name, t.color, t.created_at, t.updated_at
		FROM tags t
		JOIN task_tags tt ON t.id = tt.tag_id
		WHERE tt.task_id = ?
		ORDER BY t.name COLLATE NOCASE
	`, taskID)
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

// SetTaskTags replaces the tag set of a task. Callers are responsible for
// checking that every tag belongs to the task's session.
func (q *Queries) SetTaskTags(ctx context.Context, taskID string, tagIDs []string) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM task_tags WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}

	for _, tagID := range tagIDs {
		if _, err := q.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)
		`, taskID, tagID); err != nil {
			return fmt.Errorf("link tag %s: %w", tagID, err)
		}
	}
	return nil
}
