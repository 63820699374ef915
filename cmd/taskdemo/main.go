package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tgienger/taskdemo/internal/config"
	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/identity"
	"github.com/tgienger/taskdemo/internal/logging"
	"github.com/tgienger/taskdemo/internal/metrics"
	"github.com/tgienger/taskdemo/internal/service"
	"github.com/tgienger/taskdemo/internal/views"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "taskdemo",
	Short:         "Quota-guarded demo task manager",
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: none, env TASKDEMO_* still applies)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	metrics  *metrics.Metrics
	cache    *views.Cache
	service  *service.Service
	reader   *views.Reader
	resolver *identity.Resolver
}

// loadApp builds the shared components, logging to logOut
func loadApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)

	database, err := db.Open(cfg.DBOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	cache := views.NewCache(cfg.Views.CacheTTL)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       database,
		metrics:  m,
		cache:    cache,
		service:  service.New(database, logger, m, cache),
		reader:   views.NewReader(database, cache),
		resolver: identity.NewResolver(database, logger, m),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
