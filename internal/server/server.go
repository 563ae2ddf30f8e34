// Package server wires the idea API together: storage, services, handlers,
// middleware and routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go: config.Load → telemetry.Setup → server.New → Start
//	server.New: sqlite.DB → IdeaService/UserService → handlers → routes
//
// This is the composition root; no other package constructs its own
// dependencies.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/config"
	"github.com/krzysztofKolodziej/idea-match/internal/handler"
	"github.com/krzysztofKolodziej/idea-match/internal/metrics"
	"github.com/krzysztofKolodziej/idea-match/internal/middleware"
	sqliteRepo "github.com/krzysztofKolodziej/idea-match/internal/repository/sqlite"
	"github.com/krzysztofKolodziej/idea-match/internal/service"
)

// rateLimitWindow is the fixed window used by the Redis rate limiter.
const rateLimitWindow = time.Minute

// Server owns the HTTP router and every long-lived resource behind it. The
// database and the optional Redis client are closed by Close (Start calls it
// on the way out).
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	redis    *redis.Client // nil without REDIS_ADDR
	registry *prometheus.Registry
}

// New opens the database, connects to Redis when configured and builds the
// router.
//
// An unreachable Redis is not fatal: the server logs a warning and keeps the
// token blacklist and rate limiter in memory.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it does not read like the
// driver package.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}

	if cfg.Redis.Addr != "" {
		s.redis = connectRedis(cfg.Redis, logger)
	}

	if err := s.setupRoutes(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func connectRedis(cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory blacklist and rate limiter",
			slog.String("addr", cfg.Addr),
			slog.String("error", err.Error()),
		)
		_ = client.Close()
		return nil
	}

	logger.Info("connected to redis", slog.String("addr", cfg.Addr))
	return client
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                   → database health
//	GET    /metrics                   → Prometheus exposition
//	GET    /api/ideas                 → paged, filtered, sorted summaries
//	GET    /api/ideas/{id}            → idea details
//	POST   /api/register              → create account (rate limited)
//	POST   /api/login                 → issue token (rate limited)
//	POST   /api/logout                → revoke token             [auth]
//	GET    /api/account/me            → caller's account         [auth]
//	POST   /api/account/idea          → add idea                 [auth]
//	PATCH  /api/account/idea/{id}     → update own idea          [auth]
//	DELETE /api/account/idea/{id}     → delete own idea          [auth]
//	GET    /auth/github/login         → GitHub redirect          [if configured]
//	GET    /auth/github/callback      → GitHub sign-in           [if configured]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it, RealIP before anything that
// keys on the client address, Recoverer innermost of the global set so a
// panic is still logged and counted as a 500. On rate-limited routes
// OptionalAuth precedes the limiter, which keys on the user id when present.
func (s *Server) setupRoutes() error {
	metrics.RegisterCollectors(s.registry)
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(middleware.TraceRoute)
	s.router.Use(chimiddleware.Recoverer)

	// === Auth ===
	tokens, err := auth.NewTokenService(s.config.JWT.Secret, s.config.JWT.TTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var blacklist auth.Blacklist = auth.NewMemoryBlacklist()
	if s.redis != nil {
		blacklist = auth.NewRedisBlacklist(s.redis)
	}
	authn := auth.NewAuthenticator(tokens, blacklist, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHub.Enabled() {
		github = auth.NewGitHubProvider(
			s.config.GitHub.ClientID,
			s.config.GitHub.ClientSecret,
			s.config.GitHub.CallbackURL,
		)
	}

	// === Services and handlers ===
	// s.db implements both repository.IdeaRepository and
	// repository.UserRepository; services only see the interfaces.
	ideaService := service.NewIdeaService(s.db, s.logger)
	userService := service.NewUserService(s.db, tokens, auth.NewPasswordService(), blacklist, s.logger)

	ideaHandler := handler.NewIdeaHandler(ideaService, s.logger)
	authHandler := handler.NewAuthHandler(userService, github, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	limit := middleware.RedisRateLimit(
		s.redis,
		s.config.RateLimit.RPS,
		s.config.RateLimit.Burst,
		rateLimitWindow,
		s.logger,
	)

	// === Routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/ideas", ideaHandler.HandleList)
		r.Get("/ideas/{id}", ideaHandler.HandleGet)

		// OptionalAuth runs first so signed-in callers are limited per user
		// rather than per IP.
		r.With(authn.OptionalAuth, limit).Post("/register", authHandler.HandleRegister)
		r.With(authn.OptionalAuth, limit).Post("/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)

			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/account/me", authHandler.HandleMe)
			r.Post("/account/idea", ideaHandler.HandleAdd)
			r.Patch("/account/idea/{id}", ideaHandler.HandleUpdate)
			r.Delete("/account/idea/{id}", ideaHandler.HandleDelete)
		})
	})

	if github != nil {
		s.router.Route("/auth/github", func(r chi.Router) {
			r.Use(authn.OptionalAuth, limit)
			r.Get("/login", authHandler.HandleGitHubLogin)
			r.Get("/callback", authHandler.HandleGitHubCallback)
		})
		s.logger.Info("GitHub sign-in enabled", slog.String("callback", s.config.GitHub.CallbackURL))
	}

	return nil
}

// Handler returns the router wrapped in OpenTelemetry instrumentation. With
// no tracer provider installed the wrapper records nothing.
//
// Spans start out named by method only; TraceRoute appends the matched route
// pattern, so raw paths with IDs never become span names.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "idea-match",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method
		}),
	)
}

// Close releases the database and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database and Redis
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("redis", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
