package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dropin/internal/audit"
	cataloghandler "dropin/internal/catalog/handler"
	catalogservice "dropin/internal/catalog/service"
	identityhandler "dropin/internal/identity/handler"
	identityservice "dropin/internal/identity/service"
	identitystore "dropin/internal/identity/store"
	identitymigrations "dropin/internal/identity/store/migrations"
	jwttoken "dropin/internal/jwt_token"
	"dropin/internal/platform/config"
	"dropin/internal/platform/metrics"
	"dropin/internal/platform/middleware"
	"dropin/internal/platform/postgres"
	"dropin/internal/platform/redis"
	ratelimitmw "dropin/internal/ratelimit/middleware"
	ratelimitstore "dropin/internal/ratelimit/store"
	registrationhandler "dropin/internal/registration/handler"
	registrationmetrics "dropin/internal/registration/metrics"
	registrationservice "dropin/internal/registration/service"
	rostermodels "dropin/internal/roster/models"
	rosterstore "dropin/internal/roster/store"
	rostermigrations "dropin/internal/roster/store/migrations"
	"dropin/pkg/platform/httputil"
)

// rosterBackend is what every roster store offers: the engine's atomic
// steps, the catalog reads and a health probe.
type rosterBackend interface {
	registrationservice.RosterStore
	ListGames(ctx context.Context) ([]*rostermodels.GameView, error)
	Ping(ctx context.Context) error
}

type identityBackend interface {
	identityservice.Store
	Ping(ctx context.Context) error
}

type app struct {
	router      http.Handler
	auditWorker *audit.Worker
	limiter     ratelimitmw.Limiter
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	roster, directory, err := a.openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	sink, err := a.openAuditSink(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	auditPublisher := audit.NewAsyncPublisher(
		audit.WithBufferSize(cfg.Audit.BufferSize),
		audit.WithPublisherLogger(log),
	)
	a.auditWorker = audit.NewWorker(sink, auditPublisher.Inbox(), log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(registry)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTIssuer)
	identity, err := identityservice.New(directory, tokens,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditPublisher),
		identityservice.WithTokenTTL(cfg.TokenTTL),
	)
	if err != nil {
		return nil, err
	}
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	if err := identity.Seed(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed identity directory: %w", err)
	}

	engine, err := registrationservice.New(roster,
		registrationservice.WithLogger(log),
		registrationservice.WithAuditPublisher(auditPublisher),
		registrationservice.WithMetrics(registrationmetrics.New(registry)),
		registrationservice.WithOrganizerRegistration(cfg.AllowOrganizerRegistration),
		registrationservice.WithMaxConflictRetries(cfg.MaxConflictRetries),
	)
	if err != nil {
		return nil, err
	}
	catalog, err := catalogservice.New(roster, engine, catalogservice.WithLogger(log))
	if err != nil {
		return nil, err
	}

	validator := jwttoken.NewJWTServiceAdapter(tokens)
	if a.limiter == nil {
		a.limiter = ratelimitstore.NewInMemory()
	}
	authLimit := ratelimitmw.New(a.limiter, log, ratelimitmw.WithDisabled(cfg.Auth.Disabled))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(httpMetrics))

	r.Get("/healthz", healthHandler(roster, directory))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(authLimit.PerClientIP("auth", cfg.Auth.Requests, cfg.Auth.Window))
			r.Use(middleware.OptionalAuth(validator, identity, log))
			identityhandler.New(identity, log).Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(validator, identity, log))
			registrationhandler.New(engine, log).Register(r)
			cataloghandler.New(catalog, log).Register(r)
		})
	})

	a.router = r
	ok = true
	return a, nil
}

func (a *app) openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (rosterBackend, identityBackend, error) {
	switch cfg.RosterBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Driver:          cfg.Postgres.Driver,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		log.Info("using postgres stores", "driver", cfg.Postgres.Driver)
		return rosterstore.NewPostgres(db), identitystore.NewPostgres(db), nil

	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.limiter = ratelimitstore.NewRedis(client.Client, cfg.Redis.KeyPrefix)
		log.Info("using redis stores")
		return rosterstore.NewRedis(client.Client, rosterstore.WithKeyPrefix(cfg.Redis.KeyPrefix)),
			identitystore.NewRedis(client.Client, identitystore.WithKeyPrefix(cfg.Redis.KeyPrefix)), nil

	default:
		log.Info("using in-memory stores")
		return rosterstore.NewInMemory(), identitystore.NewInMemory(), nil
	}
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, migrations := range []fs.FS{identitymigrations.FS, rostermigrations.FS} {
		if err := postgres.ApplyMigrations(ctx, db, migrations); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) openAuditSink(ctx context.Context, cfg config.Server, log *slog.Logger) (audit.Sink, error) {
	if len(cfg.Audit.KafkaBrokers) == 0 {
		log.Info("audit events written to the log")
		return audit.NewLogSink(log), nil
	}
	sink, err := audit.NewKafkaSink(ctx, audit.KafkaConfig{
		Brokers: cfg.Audit.KafkaBrokers,
		Topic:   cfg.Audit.KafkaTopic,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sink.Close)
	log.Info("audit events published to kafka", "topic", cfg.Audit.KafkaTopic)
	return sink, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(stores ...pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, s := range stores {
			if err := s.Ping(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
