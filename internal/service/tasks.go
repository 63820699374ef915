package service

import (
	"context"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/quota"
)

func (in TaskInput) fields() db.TaskFields {
	return db.TaskFields{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Status:      in.Status,
	}
}

// CreateTask creates a task for the session
func (s *Service) CreateTask(ctx context.Context, sessionID string, in TaskInput) Result {
	o := op{entity: "task", name: "create", failure: "Failed to create task", notFound: "Task not found", scopes: taskScopes}
	if err := s.checkTask(sessionID, &in); err != nil {
		return s.fail(sessionID, o, err)
	}

	return s.inTx(ctx, sessionID, o, func(q *db.Queries) (string, error) {
		if err := quota.AssertCanCreateTask(ctx, q, sessionID); err != nil {
			return "", err
		}
		tagIDs, err := ensureSessionTags(ctx, q, sessionID, in.TagIDs)
		if err != nil {
			return "", err
		}

		task, err := q.CreateTask(ctx, sessionID, in.fields(), tagIDs)
		if err != nil {
			return "", err
		}

		if err := quota.RecordTaskCreated(ctx, q, sessionID); err != nil {
			return "", err
		}
		return task.ID, nil
	})
}

// UpdateTask replaces every mutable field of a task, including its tag set
func (s *Service) UpdateTask(ctx context.Context, sessionID, id string, in TaskInput) Result {
	o := op{entity: "task", name: "update", failure: "Failed to update task", notFound: "Task not found", scopes: taskScopes}
	if err := s.checkID(sessionID, id); err != nil {
		return s.fail(sessionID, o, err)
	}
	if err := s.checkTask(sessionID, &in); err != nil {
		return s.fail(sessionID, o, err)
	}

	return s.inTx(ctx, sessionID, o, func(q *db.Queries) (string, error) {
		if err := quota.AssertCanUpdateTask(ctx, q, sessionID); err != nil {
			return "", err
		}
		tagIDs, err := ensureSessionTags(ctx, q, sessionID, in.TagIDs)
		if err != nil {
			return "", err
		}

		if err := q.UpdateTask(ctx, sessionID, id, in.fields()); err != nil {
			return "", err
		}
		if err := q.SetTaskTags(ctx, id, tagIDs); err != nil {
			return "", err
		}

		if err := quota.RecordTaskUpdated(ctx, q, sessionID); err != nil {
			return "", err
		}
		return id, nil
	})
}

// UpdateTaskStatus changes only the status of a task
func (s *Service) UpdateTaskStatus(ctx context.Context, sessionID, id string, status models.Status) Result {
	o := op{entity: "task", name: "status", failure: "Failed to update status", notFound: "Task not found", scopes: taskScopes}
	if err := s.checkID(sessionID, id); err != nil {
		return s.fail(sessionID, o, err)
	}
	if !status.Valid() {
		return s.fail(sessionID, o, inputError("Choose a valid status"))
	}

	return s.inTx(ctx, sessionID, o, func(q *db.Queries) (string, error) {
		if err := quota.AssertCanUpdateTask(ctx, q, sessionID); err != nil {
			return "", err
		}
		if err := q.SetTaskStatus(ctx, sessionID, id, status); err != nil {
			return "", err
		}
		if err := quota.RecordTaskUpdated(ctx, q, sessionID); err != nil {
			return "", err
		}
		return id, nil
	})
}

// UpdateTaskPriority changes only the priority of a task
func (s *Service) UpdateTaskPriority(ctx context.Context, sessionID, id string, priority models.Priority) Result {
	o := op{entity: "task", name: "priority", failure: "Failed to update priority", notFound: "Task not found", scopes: taskScopes}
	if err := s.checkID(sessionID, id); err != nil {
		return s.fail(sessionID, o, err)
	}
	if !priority.Valid() {
		return s.fail(sessionID, o, inputError("Choose a valid priority"))
	}

	return s.inTx(ctx, sessionID, o, func(q *db.Queries) (string, error) {
		if err := quota.AssertCanUpdateTask(ctx, q, sessionID); err != nil {
			return "", err
		}
		if err := q.SetTaskPriority(ctx, sessionID, id, priority); err != nil {
			return "", err
		}
		if err := quota.RecordTaskUpdated(ctx, q, sessionID); err != nil {
			return "", err
		}
		return id, nil
	})
}

// DeleteTask removes a task owned by the session. Deletes are not metered and
// never give back lifetime quota.
func (s *Service) DeleteTask(ctx context.Context, sessionID, id string) Result {
	o := op{entity: "task", name: "delete", failure: "Failed to delete task", notFound: "Task not found", scopes: taskScopes}
	if err := s.checkID(sessionID, id); err != nil {
		return s.fail(sessionID, o, err)
	}

	n, err := s.db.DeleteTask(ctx, sessionID, id)
	if err != nil {
		return s.fail(sessionID, o, err)
	}
	if n == 0 {
		return s.fail(sessionID, o, db.ErrNotFound)
	}
	return s.succeed(sessionID, o, id)
}
