// Package main is the entrypoint for the AutoML Pro API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/automlpro/internal/api"
	"github.com/kiranshivaraju/automlpro/internal/api/handler"
	mw "github.com/kiranshivaraju/automlpro/internal/api/middleware"
	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/internal/auth"
	"github.com/kiranshivaraju/automlpro/internal/cache"
	"github.com/kiranshivaraju/automlpro/internal/config"
	"github.com/kiranshivaraju/automlpro/internal/email"
	"github.com/kiranshivaraju/automlpro/internal/jobs"
	"github.com/kiranshivaraju/automlpro/internal/observability"
	"github.com/kiranshivaraju/automlpro/internal/realtime"
	"github.com/kiranshivaraju/automlpro/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; invalid config fails fast
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "realtime_source", cfg.Realtime.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Telemetry. Instruments created below register against these providers.
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer shutdownWithTimeout("metrics", shutdownMetrics)

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer shutdownWithTimeout("tracer", shutdownTracer)
		slog.Info("tracing enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	// 3. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 4. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 5. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 6. Start the change feed
	var source realtime.Source
	switch cfg.Realtime.Source {
	case config.RealtimeSourceRedis:
		source = realtime.NewRedisSource(redisCache.Client(), cfg.Realtime.Channel)
	default:
		source = realtime.NewPostgresSource(pool, cfg.Realtime.Channel)
	}
	hub := realtime.NewHub(source,
		realtime.WithBufferSize(cfg.Realtime.BufferSize),
		realtime.WithRetryInterval(cfg.Realtime.RetryInterval),
	)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()
	slog.Info("realtime hub started", "source", cfg.Realtime.Source, "channel", cfg.Realtime.Channel)

	// 7. Create services
	pgStore := store.NewPostgresStore(pool)
	jobSvc := jobs.NewService(pgStore, redisCache, hub,
		jobs.WithResultCacheTTL(cfg.Redis.ResultCacheTTL),
	)

	templates, err := email.NewTemplates(cfg.Email.SiteURL)
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	brevo := email.NewBrevoClient(cfg.Email.APIKey,
		email.Identity{Name: cfg.Email.SenderName, Email: cfg.Email.SenderEmail},
		cfg.Email.Timeout,
		email.WithAPIURL(cfg.Email.APIURL),
		email.WithRetry(cfg.Email.MaxRetries, cfg.Email.BaseDelay),
	)
	notifier := email.NewNotifier(brevo, templates, cfg.Email.AdminEmail,
		email.WithBetweenDelay(cfg.Email.BetweenEmails),
	)
	if cfg.Email.AdminEmail == "" {
		slog.Warn("ADMIN_EMAIL not set, admin registration alerts are disabled")
	}

	authSvc := auth.NewService(pgStore, notifier, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	defer authSvc.Wait()

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:            mw.NewAuth(authSvc),
		RateLimit:       mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute, "token", mw.ByToken),
		PublicRateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.PublicPerMinute, "ip", mw.ByForwardedClientIP(cfg.RateLimit.TrustedProxies)),

		HealthHandler:  healthHandler(pgStore, redisCache, hub),
		MetricsHandler: metricsHandler,

		SignUpHandler:  handler.NewSignUpHandler(authSvc),
		SignInHandler:  handler.NewSignInHandler(authSvc),
		MeHandler:      handler.NewMeHandler(authSvc),
		SignOutHandler: handler.NewSignOutHandler(authSvc),

		RegistrationEmailHandler: handler.NewRegistrationEmailHandler(notifier),

		CreateJobHandler:     handler.NewCreateJobHandler(jobSvc),
		ListJobsHandler:      handler.NewListJobsHandler(jobSvc),
		GetJobHandler:        handler.NewGetJobHandler(jobSvc),
		GetJobResultHandler:  handler.NewGetJobResultHandler(jobSvc),
		JobEventsHandler:     handler.NewJobEventsHandler(jobSvc, handler.DefaultHeartbeat),
		JobListEventsHandler: handler.NewJobListEventsHandler(jobSvc, handler.DefaultHeartbeat),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		// Request contexts derive from ctx so open event streams end on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-hubDone

	slog.Info("server stopped gracefully")
	return nil
}

func shutdownWithTimeout(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("telemetry shutdown failed", "component", name, "error", err)
	}
}

// feedStatus reports whether the change feed is currently connected.
type feedStatus interface {
	Connected() bool
}

// healthHandler checks database, cache and change feed connectivity.
func healthHandler(s store.Store, c cache.Cache, feed feedStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"realtime": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if !feed.Connected() {
			checks["realtime"] = "degraded"
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
