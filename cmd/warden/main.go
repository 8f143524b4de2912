package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/password"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting warden")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("warden exited with error")
		os.Exit(1)
	}
	logger.Info("warden stopped")
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := rbac.Migrate(ctx, db); err != nil {
		return err
	}
	if err := token.Migrate(ctx, db); err != nil {
		return err
	}

	var (
		cacheClient *cache.Client
		roles       rbac.RoleStore = rbac.NewPostgresRoleStore(db)
		users       rbac.UserStore = rbac.NewPostgresUserStore(db)
	)
	if cfg.Cache.Enabled {
		cacheClient, err = cache.New(cfg.Cache.Redis, logger)
		if err != nil {
			return err
		}
		defer cacheClient.Close()

		ttls := rbac.DefaultTTLs()
		roles = rbac.NewCachedRoleStore(roles, cacheClient, ttls, logger, metrics)
		users = rbac.NewCachedUserStore(users, cacheClient, ttls, logger, metrics)
	} else {
		logger.Warn("redis cache disabled, all reads go to postgres")
	}

	registry := authz.NewRegistry(rbac.Permissions(), token.Permissions())
	evaluator := authz.NewEvaluator(rbac.NewRoleSource(roles), logger, metrics)

	tokens, err := token.NewService(token.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, token.NewPostgresStore(db), users, logger, metrics)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Deps{
		Roles:     roles,
		Users:     users,
		Tokens:    tokens,
		Hasher:    password.NewHasher(cfg.Auth.BcryptCost),
		Registry:  registry,
		Evaluator: evaluator,
		Logger:    logger,
		Metrics:   metrics,
	})

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Auth.CleanupSchedule, func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		purged, err := tokens.CleanupExpired(cleanupCtx)
		if err != nil {
			logger.WithError(err).Error("expired token cleanup failed")
			return
		}
		logger.WithField("purged", purged).Info("expired token cleanup complete")
	}); err != nil {
		return err
	}
	if metrics != nil {
		if _, err := scheduler.AddFunc("@every 30s", func() {
			metrics.UpdateDBStats(db.Stats())
		}); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux(db, cacheClient, metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown error")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown error")
		}
		return nil
	})

	return g.Wait()
}

// healthMux serves k8s probes and prometheus metrics on the side port.
func healthMux(db *sql.DB, cacheClient *cache.Client, metrics *observability.Metrics) http.Handler {
	var rdb *redis.Client
	if cacheClient != nil {
		rdb = cacheClient.Redis()
	}
	checker := observability.NewHealthChecker(db, rdb)

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
