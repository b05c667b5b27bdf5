package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/balances"
	"github.com/meridian-erp/meridian-erp/internal/conversion"
	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/counterparties"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/payments"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stockledger"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool, logger)
	sequences := sequence.NewService(pool)

	balanceCache := balances.NewCache(redisClient, cfg.BalanceCacheTTL)
	if err := balanceCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("balance cache listener", slog.Any("error", err))
	}

	documentRepo := documents.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	movementRepo := stockledger.NewRepository(pool)
	productRepo := products.NewRepository(pool)
	counterpartyRepo := counterparties.NewRepository(pool)

	stockService := stockledger.NewService(logger, movementRepo, productRepo, documentRepo, metrics)
	documentService := documents.NewService(logger, documentRepo, stockService, auditLogger, sequences, balanceCache)
	paymentService := payments.NewService(logger, paymentRepo, documentRepo, auditLogger, sequences, balanceCache)
	balanceService := balances.NewService(logger, documentRepo, paymentRepo, counterpartyRepo, balanceCache)
	conversionService := conversion.NewService(logger, documentRepo, paymentService, stockService, auditLogger, sequences, balanceCache)

	documentHandler := documents.NewHandler(logger, documentService)
	paymentHandler := payments.NewHandler(logger, paymentService)
	balanceHandler := balances.NewHandler(logger, balanceService)
	conversionHandler := conversion.NewHandler(logger, conversionService)
	stockHandler := stockledger.NewHandler(logger, movementRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterConfig{
		Middleware: app.MiddlewareConfig{
			Logger:  logger,
			Config:  cfg,
			Metrics: metrics,
		},
		Documents:  documentHandler,
		Payments:   paymentHandler,
		Balances:   balanceHandler,
		Conversion: conversionHandler,
		Stock:      stockHandler,
		Jobs:       jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
