package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/yairfalse/birthmark/internal/api"
	"github.com/yairfalse/birthmark/internal/telemetry"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the attribution API over HTTP",
	Long: `Serve the attribution API over HTTP.

Endpoints:
- GET  /api/resources?service=ec2&startDate=...&endDate=...
- GET  /api/report?startDate=...&endDate=...&kinds=ec2,rds
- GET  /api/kinds
- GET  /api/identity
- POST /api/resources/delete (only when delete.enabled is set)
- GET  /health, /metrics`,
	Example: `  birthmark serve                        # Listen on :8080
  birthmark serve --addr :9000            # Custom address
  birthmark serve --config birthmark.toml # With config file`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	logger := telemetry.NewLogger("serve")
	if id, err := a.service.Identity(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not resolve caller identity")
	} else {
		logger.Info().Str("account", id.Account).Str("arn", id.ARN).Msg("caller identity")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(a.service, a.location, a.provider.MetricsHandler()).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group
	g.Add(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("region", cfg.AWS.Region).
			Bool("delete_enabled", a.service.DeleteEnabled()).
			Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}
