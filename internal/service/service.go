// Package service runs every task and tag mutation for a session.
//
// Creates and updates execute inside one transaction that checks the quota,
// verifies tag ownership, writes the row and bumps the usage counter, so no
// partial state is ever committed. Failures come back as a Result rather than
// an error: quota and validation problems carry a user-facing message, and
// unexpected store errors are logged and replaced with a generic one.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/metrics"
	"github.com/tgienger/taskdemo/internal/quota"
)

// ErrInvalidReference means a tag id does not belong to the caller's session
var ErrInvalidReference = errors.New("one or more tags are invalid for this session")

// Kind classifies a failed Result
type Kind string

const (
	KindValidation       Kind = "validation"
	KindQuota            Kind = "quota"
	KindInvalidReference Kind = "invalid_reference"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal"
)

// Result is the outcome of a mutation
type Result struct {
	Success bool       `json:"success"`
	ID      string     `json:"id,omitempty"`
	Error   string     `json:"error,omitempty"`
	Code    quota.Code `json:"code,omitempty"`
	Kind    Kind       `json:"kind,omitempty"`
}

// Scope names a cached view that a mutation makes stale
type Scope string

const (
	ScopeTasks     Scope = "tasks"
	ScopeTags      Scope = "tags"
	ScopeDashboard Scope = "dashboard"
	ScopeReports   Scope = "reports"
	ScopeCalendar  Scope = "calendar"
	ScopeActivity  Scope = "activity"
)

var (
	taskScopes = []Scope{ScopeTasks, ScopeDashboard, ScopeReports, ScopeCalendar, ScopeActivity}
	tagScopes  = []Scope{ScopeTasks, ScopeTags, ScopeDashboard, ScopeReports, ScopeCalendar, ScopeActivity}
)

// Invalidator is told which views of a session are stale after a mutation
type Invalidator interface {
	Invalidate(sessionID string, scopes ...Scope)
}

// Service performs guarded mutations
type Service struct {
	db          *db.DB
	logger      *slog.Logger
	metrics     *metrics.Metrics
	invalidator Invalidator
	validate    *validator.Validate
}

// New creates a Service. logger, m and inv may be nil.
func New(database *db.DB, logger *slog.Logger, m *metrics.Metrics, inv Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:          database,
		logger:      logger,
		metrics:     m,
		invalidator: inv,
		validate:    newValidator(),
	}
}

// op describes one mutation for logging, metrics and failure messages
type op struct {
	entity   string
	name     string
	failure  string // generic message for unexpected errors
	notFound string
	scopes   []Scope
}

// inTx runs fn in a transaction and maps its outcome to a Result
func (s *Service) inTx(ctx context.Context, sessionID string, o op, fn func(q *db.Queries) (string, error)) Result {
	var id string
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		var err error
		id, err = fn(q)
		return err
	})
	if err != nil {
		return s.fail(sessionID, o, err)
	}
	return s.succeed(sessionID, o, id)
}

func (s *Service) succeed(sessionID string, o op, id string) Result {
	s.metrics.Mutation(o.entity, o.name, "success")
	if s.invalidator != nil {
		s.invalidator.Invalidate(sessionID, o.scopes...)
	}
	return Result{Success: true, ID: id}
}

func (s *Service) fail(sessionID string, o op, err error) Result {
	var (
		limit  *quota.LimitError
		verrs  validator.ValidationErrors
		result Result
	)

	switch {
	case errors.As(err, &limit):
		s.metrics.QuotaRejected(string(limit.Code))
		result = Result{Error: limit.Message, Code: limit.Code, Kind: KindQuota}
	case errors.As(err, &verrs):
		result = Result{Error: describe(verrs), Kind: KindValidation}
	case errors.Is(err, errInvalidInput):
		result = Result{Error: err.Error(), Kind: KindValidation}
	case errors.Is(err, ErrInvalidReference):
		result = Result{Error: "One or more tags are invalid for this session", Kind: KindInvalidReference}
	case errors.Is(err, db.ErrNotFound):
		result = Result{Error: o.notFound, Kind: KindNotFound}
	default:
		s.logger.Error("Mutation failed",
			slog.String("op", o.entity+"."+o.name),
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		result = Result{Error: o.failure, Kind: KindInternal}
	}

	s.metrics.Mutation(o.entity, o.name, string(result.Kind))
	return result
}

// ensureSessionTags deduplicates ids and fails with ErrInvalidReference
// unless every one of them belongs to the session
func ensureSessionTags(ctx context.Context, q *db.Queries, sessionID string, ids []string) ([]string, error) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	owned, err := q.OwnedTagIDs(ctx, sessionID, ids)
	if err != nil {
		return nil, err
	}
	if len(owned) != len(ids) {
		return nil, ErrInvalidReference
	}
	return ids, nil
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
