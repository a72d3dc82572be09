package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sitestock/sitestock/internal/app"
	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/notify"
	"github.com/sitestock/sitestock/internal/platform/cache"
	"github.com/sitestock/sitestock/internal/platform/db"
	"github.com/sitestock/sitestock/internal/shared"
	"github.com/sitestock/sitestock/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
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

	notifyRepo := notify.NewRepository(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	dispatcher := notify.NewOutboxDispatcher(notifyRepo, asynqClient, logger)

	directoryService := directory.NewService(directory.NewRepository(pool))
	ledgerService := ledger.NewService(ledger.NewRepository(pool), redisClient, logger, cfg.BalanceCacheTTL)

	deliverJob := jobs.NewNotifyDeliverJob(notifyRepo, idempotencyStore, logger)
	sweepJob := jobs.NewOutboxSweepJob(notifyRepo, asynqClient, logger, cfg.OutboxSweepAge)
	anomalyJob := jobs.NewStockAnomalyScanJob(ledgerService, directoryService, dispatcher, logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: notify.TaskTypeDeliver, Handler: deliverJob.Handle},
			{Type: jobs.TaskOutboxSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskStockAnomalyScan, Handler: anomalyJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "* * * * *", Task: jobs.NewOutboxSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "0 * * * *", Task: jobs.NewStockAnomalyScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
