package service

import (
	"context"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/quota"
)

// CreateTag creates a tag for the session. Only the alive cap applies; the
// create counter is still recorded.
func (s *Service) CreateTag(ctx context.Context, sessionID string, in TagInput) Result {
	o := op{entity: "tag", name: "create", failure: "Failed to create tag", notFound: "Tag not found", scopes: tagScopes}
	if err := s.checkTag(sessionID, &in); err != nil {
		return s.fail(sessionID, o, err)
	}

	return s.inTx(ctx, sessionID, o, func(q *db.Queries) (string, error) {
		if err := quota.AssertCanCreateTag(ctx, q, sessionID); err != nil {
			return "", err
		}

		tag, err := q.CreateTag(ctx, sessionID, in.Name, in.Color)
		if err != nil {
			return "", err
		}

		if err := quota.RecordTagCreated(ctx, q, sessionID); err != nil {
			return "", err
		}
		return tag.ID, nil
	})
}

// UpdateTag renames or recolors a tag
func (s *Service) UpdateTag(ctx context.Context, sessionID, id string, in TagInput) Result {
	o := op{entity: "tag", name: "update", failure: "Failed to update tag", notFound: "Tag not found", scopes: tagScopes}
	if err := s.checkID(sessionID, id); err != nil {
		return s.fail(sessionID, o, err)
	}
	if err := s.checkTag(sessionID, &in); err != nil {
		return s.fail(sessionID, o, err)
	}

	return s.inTx(ctx, sessionID, o, func(q *db.Queries) (string, error) {
		if err := quota.AssertCanUpdateTag(ctx, q, sessionID); err != nil {
			return "", err
		}
		if err := q.UpdateTag(ctx, sessionID, id, in.Name, in.Color); err != nil {
			return "", err
		}
		if err := quota.RecordTagUpdated(ctx, q, sessionID); err != nil {
			return "", err
		}
		return id, nil
	})
}

// DeleteTag removes a tag owned by the session and detaches it from every task
func (s *Service) DeleteTag(ctx context.Context, sessionID, id string) Result {
	o := op{entity: "tag", name: "delete", failure: "Failed to delete tag", notFound: "Tag not found", scopes: tagScopes}
	if err := s.checkID(sessionID, id); err != nil {
		return s.fail(sessionID, o, err)
	}

	n, err := s.db.DeleteTag(ctx, sessionID, id)
	if err != nil {
		return s.fail(sessionID, o, err)
	}
	if n == 0 {
		return s.fail(sessionID, o, db.ErrNotFound)
	}
	return s.succeed(sessionID, o, id)
}
