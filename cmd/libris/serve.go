package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/libris/libris/internal/app"
	"github.com/libris/libris/internal/auth"
	"github.com/libris/libris/internal/books"
	"github.com/libris/libris/internal/observability"
	"github.com/libris/libris/internal/platform/cache"
	"github.com/libris/libris/internal/platform/db"
	"github.com/libris/libris/internal/rbac"
	"github.com/libris/libris/internal/shared"
	"github.com/libris/libris/internal/tags"
	"github.com/libris/libris/jobs"
)

func runServe(cmd *cobra.Command) error {
	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	resolver := rbac.NewResolver(rbacRepo, rbac.NewPermissionCache(cfg.RBACCacheTTL, nil, metrics))
	broadcaster := rbac.NewBroadcaster(redisClient, cfg.RBACInvalidationChannel, logger)
	if err := broadcaster.Listen(ctx, resolver); err != nil {
		logger.Error("rbac invalidation listener", slog.Any("error", err))
		return err
	}
	rbacService := rbac.NewService(rbacRepo, resolver, broadcaster, logger).WithAuditor(shared.NewAuditLogger(pool))
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}

	tokens := auth.NewTokenService([]byte(cfg.TokenSecret), nil)
	authService := auth.NewService(auth.NewRepository(pool), tokens, auth.ServiceConfig{
		RequireSession: cfg.RequireSession,
		Failures:       metrics,
	})
	authHandler := auth.NewHandler(logger, authService, resolver, app.LoginLimiter(app.LoginAttemptsPerMinute))

	tagRepo := tags.NewRepository(pool)
	gate := tags.NewGate(resolver, tagRepo)
	booksService := books.NewService(books.NewRepository(pool), tagRepo, gate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer inspector.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    authHandler,
		AuthMiddleware: auth.Middleware{Service: authService, Logger: logger},
		RBACMiddleware: rbacMiddleware,
		RBACHandler:    rbac.NewHandler(logger, rbacService, rbacMiddleware),
		BooksHandler:   books.NewHandler(logger, booksService, rbacMiddleware),
		TagsHandler:    tags.NewHandler(logger, tagRepo, gate, rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
