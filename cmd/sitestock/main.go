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
	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/app"
	"github.com/sitestock/sitestock/internal/billing"
	"github.com/sitestock/sitestock/internal/catalog"
	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/dispatch"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/notify"
	"github.com/sitestock/sitestock/internal/observability"
	"github.com/sitestock/sitestock/internal/platform/cache"
	"github.com/sitestock/sitestock/internal/platform/db"
	"github.com/sitestock/sitestock/internal/requests"
	"github.com/sitestock/sitestock/internal/shared"
)

// catalogAdapter narrows the catalog service to the master-data slice the
// request lifecycle needs.
type catalogAdapter struct {
	svc *catalog.Service
}

func (a catalogAdapter) Get(ctx context.Context, materialID string) (requests.Material, error) {
	m, err := a.svc.Get(ctx, materialID)
	if err != nil {
		return requests.Material{}, err
	}
	return requests.Material{ID: m.ID, Name: m.Name, Unit: m.Unit}, nil
}

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

	redisClient := cache.NewClient(cfg.RedisAddr)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	notifyRepo := notify.NewRepository(pool)
	dispatcher := notify.NewOutboxDispatcher(notifyRepo, asynqClient, logger)

	directoryService := directory.NewService(directory.NewRepository(pool))
	catalogService := catalog.NewService(catalog.NewRepository(pool), redisClient, logger, cfg.BalanceCacheTTL)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), redisClient, logger, cfg.BalanceCacheTTL)
	billingService := billing.NewService(billing.NewRepository(pool), auditLogger, logger)

	requestsService := requests.NewService(requests.NewRepository(pool), directoryService,
		catalogAdapter{svc: catalogService}, dispatcher, auditLogger, logger)

	dispatchService := dispatch.NewService(
		dispatch.NewRepository(pool),
		requestsService,
		catalogService,
		directoryService,
		ledgerService,
		billingService,
		dispatcher,
		auditLogger,
		logger,
		dispatch.Config{
			SupplierState:  cfg.SupplierState,
			DefaultGSTRate: decimal.NewFromFloat(cfg.DefaultGSTRate),
		},
	)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Pool:            pool,
		RequestsHandler: requests.NewHandler(logger, requestsService, metrics),
		DispatchHandler: dispatch.NewHandler(logger, dispatchService, metrics),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService),
		BillingHandler:  billing.NewHandler(logger, billingService),
		CatalogHandler:  catalog.NewHandler(logger, catalogService),
		Metrics:         metrics,
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
