package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dropin/internal/platform/config"
	"dropin/internal/platform/httpserver"
	"dropin/internal/platform/logger"
	"dropin/internal/platform/otel"
)

// main loads configuration, wires the services and serves HTTP until
// SIGINT or SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := httpserver.New(cfg.Addr, app.router, cfg.RequestTimeout)
	log.Info("starting dropin", "addr", cfg.Addr, "roster_backend", cfg.RosterBackend)
	return serve(ctx, srv, app.auditWorker, cfg.ShutdownGrace, shutdownTracing, log)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type backgroundWorker interface {
	Run(ctx context.Context) error
}

// serve runs srv and worker until ctx is done. The worker has its own
// context and is only stopped once srv.Shutdown has drained in-flight
// requests, so events they emit still reach the sink.
func serve(ctx context.Context, srv httpServer, worker backgroundWorker, grace time.Duration, shutdownTracing func(context.Context) error, log *slog.Logger) error {
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(workerCtx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		cancelWorker()
		if err != nil {
			return err
		}
		return shutdownTracing(shutdownCtx)
	})
	return g.Wait()
}
