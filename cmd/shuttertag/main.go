package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shuttertag/shuttertag/pkg/api"
	"github.com/shuttertag/shuttertag/pkg/auth"
	"github.com/shuttertag/shuttertag/pkg/config"
	"github.com/shuttertag/shuttertag/pkg/middleware"
	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/rbac"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := rbac.ValidateImplications(); err != nil {
		logger.WithError(err).Error("Permission implication table failed validation")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}

	if err := rbac.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	verifier, err := buildVerifier(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to configure token verifier")
		os.Exit(1)
	}

	resolver := rbac.NewResolver(db, cfg.Cache.TTL, metrics)
	invalidator := buildInvalidator(ctx, cfg, resolver, logger)

	users := auth.NewStore(db)
	tenantStore := tenants.NewStore(db)
	authenticator := middleware.NewAuthenticator(verifier, users, tenantStore, invalidator, metrics, logger)

	server := api.NewServer(users, tenantStore, resolver, invalidator, authenticator, logger, metrics)

	// Track connection pool pressure for dashboards
	go pollDBStats(ctx, db, metrics)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg, metrics, logger)

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown was not clean")
	}
	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}
}

func buildVerifier(ctx context.Context, cfg *config.Config, logger *observability.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWKSURL != "" {
		logger.WithField("jwks_url", cfg.Auth.JWKSURL).Info("Verifying tokens against JWKS endpoint")
		return auth.NewJWKSVerifier(ctx, cfg.Auth.JWKSURL, cfg.Auth.IssuerURL, cfg.Auth.Audience)
	}
	logger.Warn("Verifying tokens with a shared HS256 secret; use JWKS in production")
	return auth.NewHS256Verifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
}

func buildInvalidator(ctx context.Context, cfg *config.Config, resolver *rbac.Resolver, logger *observability.Logger) rbac.Invalidator {
	if cfg.Cache.RedisAddr == "" {
		return rbac.LocalInvalidator{Cache: resolver.Cache()}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	bus := rbac.NewBus(client, resolver.Cache(), logger)
	go func() {
		if err := bus.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Cache invalidation listener stopped")
		}
	}()
	logger.WithField("redis_addr", cfg.Cache.RedisAddr).Info("Broadcasting cache invalidations over Redis")
	return bus
}

func startHealthServer(cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) *http.Server {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}

	muxer := http.NewServeMux()
	muxer.Handle("/metrics", metrics.Handler())
	muxer.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: muxer,
	}
	go func() {
		logger.WithField("addr", srv.Addr).Info("Health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warn("Health server failed")
		}
	}()
	return srv
}

func pollDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
