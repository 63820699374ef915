package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/metrics"
	"github.com/tgienger/taskdemo/internal/models"
)

// Resolver finds or creates the Session behind an Identity
type Resolver struct {
	db      *db.DB
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Now is used for seed due dates; tests may replace it
	Now func() time.Time
}

// NewResolver creates a resolver backed by database
func NewResolver(database *db.DB, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		db:      database,
		logger:  logger,
		metrics: m,
		Now:     time.Now,
	}
}

type requestCacheKey struct{}

type requestCache struct {
	mu      sync.Mutex
	session *models.Session
}

// WithRequestCache returns a context under which GetOrCreate resolves at most
// once. Install it once per inbound request.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{})
}

// GetOrCreate returns the session for id. A cookie identifier wins over the
// forwarded header. Known identifiers are upserted, which makes concurrent
// first requests with the same fresh id converge on one row. With no
// identifier at all a new session is minted. Sessions that have never been
// seeded receive the default tags and tasks.
func (r *Resolver) GetOrCreate(ctx context.Context, id Identity) (*models.Session, error) {
	cache, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	if cache != nil {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		if cache.session != nil {
			return cache.session, nil
		}
	}

	session, err := r.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		cache.session = session
	}
	return session, nil
}

func (r *Resolver) resolve(ctx context.Context, id Identity) (*models.Session, error) {
	var (
		session *models.Session
		created bool
		err     error
	)

	if sessionID := id.ID(); sessionID != "" {
		session, created, err = r.db.EnsureSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("ensure session: %w", err)
		}
	} else {
		session, err = r.db.CreateSession(ctx)
		if err != nil {
			return nil, err
		}
		created = true
	}

	if created {
		r.metrics.SessionCreated()
		r.logger.Info("Session created", slog.String("session", session.ID))
	}

	if session.SeededAt != nil {
		return session, nil
	}

	session, seeded, err := seed(ctx, r.db, session.ID, r.Now())
	if err != nil {
		return nil, err
	}
	if seeded {
		r.metrics.SessionSeeded()
		r.logger.Debug("Session seeded", slog.String("session", session.ID))
	}
	return session, nil
}
