package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	httpapi "reyu/internal/http"
	"reyu/internal/platform/config"
	"reyu/internal/platform/httpserver"
	"reyu/internal/platform/logger"
	"reyu/internal/platform/metrics"
)

// main wires the process: storage, event transport, payment gateway, the
// market and identity services, and the HTTP server. Business logic lives in
// the internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Validator:      app.validator,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        metrics.NewHTTP(),
		HealthChecks:   app.healthChecks,
		RateLimit:      app.rateLimit,
	}, app.modules...)
	srv := httpserver.New(cfg.Server, router)

	log.Info("starting reyu",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"storage", cfg.Storage.Driver,
		"events", cfg.Events.Driver,
		"payment", cfg.Payment.Driver,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, srv, cfg.Server, log) })
	g.Go(func() error { return app.sweeper.Run(gctx) })
	g.Go(func() error { return app.consumer.Run(gctx) })
	return g.Wait()
}
