package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tgienger/taskdemo/internal/categorize"
	"github.com/tgienger/taskdemo/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the taskdemo HTTP API.

Every /api request is bound to a session identified by cookie or forwarded
header. New sessions are seeded with demo tags and tasks.

Examples:
  taskdemo serve
  taskdemo serve --addr :9090
  TASKDEMO_LOG_FORMAT=json taskdemo serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveAddr != "" {
		a.cfg.Server.Addr = serveAddr
	}
	gin.SetMode(a.cfg.Server.Mode)

	srv := web.NewServer(web.Options{
		Resolver:    a.resolver,
		Service:     a.service,
		Views:       a.reader,
		Categorizer: categorize.NewClient(a.cfg.Categorizer.URL, a.cfg.Categorizer.Timeout),
		Metrics:     a.metrics,
		Logger:      a.logger,
		Cookie:      a.cfg.CookieConfig(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("Starting taskdemo",
		slog.String("version", version),
		slog.String("db", a.cfg.Database.Path),
		slog.Bool("metrics", a.metrics != nil),
		slog.Bool("remote_categorizer", a.cfg.Categorizer.URL != ""))

	return srv.Run(ctx, a.cfg.Server.Addr)
}
