package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tgienger/taskdemo/internal/categorize"
	"github.com/tgienger/taskdemo/internal/identity"
	"github.com/tgienger/taskdemo/internal/metrics"
	"github.com/tgienger/taskdemo/internal/service"
	"github.com/tgienger/taskdemo/internal/views"
)

const shutdownTimeout = 10 * time.Second

// Options wires the server's collaborators. Metrics and Logger may be nil.
type Options struct {
	Resolver    *identity.Resolver
	Service     *service.Service
	Views       *views.Reader
	Categorizer *categorize.Client
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Cookie      identity.CookieConfig
}

// Server is the taskdemo HTTP server
type Server struct {
	router   *gin.Engine
	resolver *identity.Resolver
	service  *service.Service
	views    *views.Reader
	ai       *categorize.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cookie   identity.CookieConfig
}

// NewServer creates a new web server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		router:   router,
		resolver: opts.Resolver,
		service:  opts.Service,
		views:    opts.Views,
		ai:       opts.Categorizer,
		metrics:  opts.Metrics,
		logger:   logger,
		cookie:   opts.Cookie,
	}

	router.GET("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// Everything under /api belongs to a session
	api := router.Group("/api", identity.Edge(s.cookie), s.resolveSession())
	{
		api.GET("/session", s.handleSession)

		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.POST("/tasks", s.handleCreateTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.PATCH("/tasks/:id/status", s.handleUpdateStatus)
		api.PATCH("/tasks/:id/priority", s.handleUpdatePriority)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.GET("/tags", s.handleListTags)
		api.POST("/tags", s.handleCreateTag)
		api.PUT("/tags/:id", s.handleUpdateTag)
		api.DELETE("/tags/:id", s.handleDeleteTag)

		api.GET("/dashboard", s.handleDashboard)
		api.GET("/reports", s.handleReports)
		api.GET("/calendar", s.handleCalendar)
		api.GET("/activity", s.handleActivity)

		api.POST("/ai/categorize", s.handleCategorize)
		api.GET("/ai/health", s.handleAIHealth)
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
