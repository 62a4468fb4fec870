package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/config"
	"hrportal/internal/platform/crypto"
	"hrportal/internal/platform/db"
	"hrportal/internal/platform/email"
	"hrportal/internal/platform/jobs"
	"hrportal/internal/platform/logging"
	"hrportal/internal/platform/metrics"
	audithandler "hrportal/internal/transport/http/handlers/audit"
	authhandler "hrportal/internal/transport/http/handlers/auth"
	portalhandler "hrportal/internal/transport/http/handlers/portal"
	"hrportal/internal/transport/http/middleware"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditTrail records security events and serves them back.
type AuditTrail interface {
	authhandler.Auditor
	audithandler.Reader
}

// Deps is everything the router needs. Registry may be nil when metrics are
// disabled; Audit may be nil to run without an audit trail.
type Deps struct {
	Config   config.Config
	Service  *auth.Service
	DB       Pinger
	Audit    AuditTrail
	// Idempotency may be nil; keyed retries then run again.
	Idempotency middleware.IdempotencyStore
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		observer middleware.StatusObserver
		recorder middleware.Recorder
		logins   authhandler.Recorder
	)
	if deps.Metrics != nil {
		observer, recorder, logins = deps.Metrics, deps.Metrics, deps.Metrics
	}

	router := chi.NewRouter()
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger, observer))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && deps.Registry != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))
	}

	authHandler := authhandler.NewHandler(deps.Service, logins)
	authHandler.Idempotency = deps.Idempotency
	portalHandler := portalhandler.NewHandler(deps.Service, recorder)
	var auditHandler *audithandler.Handler
	if deps.Audit != nil {
		authHandler.Audit = deps.Audit
		auditHandler = audithandler.NewHandler(deps.Audit, recorder)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

		authHandler.RegisterPublicRoutes(r, middleware.CredentialRateLimit(cfg.LoginRateLimitPerMinute, time.Minute))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Service, recorder))
			authHandler.RegisterRoutes(r)
			portalHandler.RegisterRoutes(r)
			if auditHandler != nil {
				auditHandler.RegisterRoutes(r)
			}
		})
	})

	return router
}

// Run loads configuration from the environment and serves until SIGINT or
// SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.SetupDefault(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	if err := access.ValidateMenu(access.Menu(), access.Routes()); err != nil {
		return fmt.Errorf("navigation tables: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; tokens are signed with an empty key (development only)")
	}

	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return err
	}
	if !sealer.Configured() {
		logger.Warn("DATA_ENCRYPTION_KEY is empty; MFA secrets are stored unsealed")
	}

	service := auth.NewService(auth.NewStore(pool), email.New(cfg, logger), auth.ServiceConfig{
		Secret:       cfg.JWTSecret,
		TokenTTL:     cfg.TokenTTL,
		ResetBaseURL: cfg.ResetBaseURL,
		Sealer:       sealer,
	})

	jobs.New(jobs.NewStore(pool), cfg.SessionPurgeInterval, cfg.SessionRetention).Start(ctx)

	deps := Deps{
		Config:      cfg,
		Service:     service,
		DB:          pool,
		Audit:       audit.New(pool),
		Idempotency: middleware.NewIdempotencyStore(pool),
		Logger:      logger,
	}
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		deps.Registry = registry
		deps.Metrics = metrics.New(registry)
	}

	return serve(ctx, cfg.Addr, NewRouter(deps), pool, logger)
}

func serve(ctx context.Context, addr string, handler http.Handler, pool *pgxpool.Pool, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hrportal server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down", "activeConnections", pool.Stat().AcquiredConns())
	return srv.Shutdown(shutdownCtx)
}
