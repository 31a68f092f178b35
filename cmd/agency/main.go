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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/agency-erp/internal/app"
	"github.com/odyssey-erp/agency-erp/internal/observability"
	"github.com/odyssey-erp/agency-erp/internal/orders"
	"github.com/odyssey-erp/agency-erp/internal/platform/cache"
	"github.com/odyssey-erp/agency-erp/internal/platform/db"
	"github.com/odyssey-erp/agency-erp/internal/shared"
	"github.com/odyssey-erp/agency-erp/internal/views"
	"github.com/odyssey-erp/agency-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping api startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	viewCache := views.NewCache(redisClient, cfg.ViewCacheTTL)
	if err := viewCache.Listen(ctx, func(path string, version int64) {
		logger.Debug("view invalidated", slog.String("path", path), slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe view bumps", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()

	orderService := orders.NewService(
		orders.NewRepository(pool),
		cfg.Order,
		shared.NewAuditLogger(pool),
		shared.NewIdempotencyStore(pool),
		views.NewRedisInvalidator(redisClient),
		logger,
	)
	orderService.SetMetrics(metrics)
	orderHandler := orders.NewHandler(logger, orderService, viewCache)

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		OrderHandler: orderHandler,
		JobHandler:   jobs.NewHandler(inspector, logger),
		Metrics:      metrics,
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
	}
}
