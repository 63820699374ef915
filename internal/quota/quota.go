// Package quota enforces the per-session usage caps of the demo sandbox.
//
// Two kinds of cap exist. Alive caps bound how many tasks or tags a session
// holds right now and are recomputed from live row counts on every check.
// Lifetime caps bound how many times an operation may ever succeed and are
// read from the session's monotonic counters. Deleting rows frees alive
// capacity but never lifetime capacity.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/models"
)

const (
	TaskAliveLimit  = 10
	TaskCreateLimit = 10
	TaskUpdateLimit = 50
	TagAliveLimit   = 5
	TagUpdateLimit  = 10
)

// Code is the machine-readable reason a limit tripped
type Code string

const (
	CodeTaskAlive  Code = "task-alive-limit"
	CodeTaskCreate Code = "task-create-limit"
	CodeTaskUpdate Code = "task-update-limit"
	CodeTagAlive   Code = "tag-alive-limit"
	CodeTagUpdate  Code = "tag-update-limit"
)

// ErrSessionNotFound means the guarded session row does not exist. It is a
// caller bug rather than a user-facing condition.
var ErrSessionNotFound = errors.New("session not found")

// LimitError reports that a session has exhausted one of its caps
type LimitError struct {
	Code    Code
	Message string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Limits describes every cap, for display
type Limits struct {
	TaskAlive  int `json:"taskAlive"`
	TaskCreate int `json:"taskCreate"`
	TaskUpdate int `json:"taskUpdate"`
	TagAlive   int `json:"tagAlive"`
	TagUpdate  int `json:"tagUpdate"`
}

// Default returns the fixed caps
func Default() Limits {
	return Limits{
		TaskAlive:  TaskAliveLimit,
		TaskCreate: TaskCreateLimit,
		TaskUpdate: TaskUpdateLimit,
		TagAlive:   TagAliveLimit,
		TagUpdate:  TagUpdateLimit,
	}
}

// CheckCreateTask permits a task create unless the lifetime create cap or the
// alive cap has been reached
func CheckCreateTask(s models.Session, alive int) error {
	if s.TaskCreateCount >= TaskCreateLimit {
		return &LimitError{Code: CodeTaskCreate, Message: "Create limit reached for this session."}
	}
	if alive >= TaskAliveLimit {
		return &LimitError{Code: CodeTaskAlive, Message: "Too many tasks in this session. Delete one before adding more."}
	}
	return nil
}

// CheckUpdateTask permits a task update unless the lifetime update cap has
// been reached
func CheckUpdateTask(s models.Session) error {
	if s.TaskUpdateCount >= TaskUpdateLimit {
		return &LimitError{Code: CodeTaskUpdate, Message: "Edit limit reached for this session."}
	}
	return nil
}

// CheckCreateTag permits a tag create unless the alive cap has been reached.
// Tag creation has no lifetime cap.
func CheckCreateTag(alive int) error {
	if alive >= TagAliveLimit {
		return &LimitError{Code: CodeTagAlive, Message: "Too many tags for this session. Delete one before adding more."}
	}
	return nil
}

// CheckUpdateTag permits a tag update unless the lifetime update cap has been
// reached
func CheckUpdateTag(s models.Session) error {
	if s.TagUpdateCount >= TagUpdateLimit {
		return &LimitError{Code: CodeTagUpdate, Message: "Edit limit reached for tags in this session."}
	}
	return nil
}

// The Assert and Record functions below must be given the Queries of the
// transaction that performs the guarded write, so the check, the write and
// the counter bump commit or roll back together.

// AssertCanCreateTask re-reads the session and its live task count
func AssertCanCreateTask(ctx context.Context, q *db.Queries, sessionID string) error {
	s, err := loadSession(ctx, q, sessionID)
	if err != nil {
		return err
	}
	alive, err := q.CountTasks(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	return CheckCreateTask(*s, alive)
}

// AssertCanUpdateTask re-reads the session's task update counter
func AssertCanUpdateTask(ctx context.Context, q *db.Queries, sessionID string) error {
	s, err := loadSession(ctx, q, sessionID)
	if err != nil {
		return err
	}
	return CheckUpdateTask(*s)
}

// AssertCanCreateTag re-reads the session's live tag count
func AssertCanCreateTag(ctx context.Context, q *db.Queries, sessionID string) error {
	alive, err := q.CountTags(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("count tags: %w", err)
	}
	return CheckCreateTag(alive)
}

// AssertCanUpdateTag re-reads the session's tag update counter
func AssertCanUpdateTag(ctx context.Context, q *db.Queries, sessionID string) error {
	s, err := loadSession(ctx, q, sessionID)
	if err != nil {
		return err
	}
	return CheckUpdateTag(*s)
}

func RecordTaskCreated(ctx context.Context, q *db.Queries, sessionID string) error {
	return q.IncrementSessionCounter(ctx, sessionID, db.CounterTaskCreate)
}

func RecordTaskUpdated(ctx context.Context, q *db.Queries, sessionID string) error {
	return q.IncrementSessionCounter(ctx, sessionID, db.CounterTaskUpdate)
}

func RecordTagCreated(ctx context.Context, q *db.Queries, sessionID string) error {
	return q.IncrementSessionCounter(ctx, sessionID, db.CounterTagCreate)
}

func RecordTagUpdated(ctx context.Context, q *db.Queries, sessionID string) error {
	return q.IncrementSessionCounter(ctx, sessionID, db.CounterTagUpdate)
}

func loadSession(ctx context.Context, q *db.Queries, sessionID string) (*models.Session, error) {
	s, err := q.GetSession(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}
