package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/relaytrack/relaytrack/internal/app"
	"github.com/relaytrack/relaytrack/internal/catalog"
	"github.com/relaytrack/relaytrack/internal/fieldapi"
	"github.com/relaytrack/relaytrack/internal/ingest"
	"github.com/relaytrack/relaytrack/internal/platform/db"
	"github.com/relaytrack/relaytrack/internal/reports"
	"github.com/relaytrack/relaytrack/internal/shipments"
	"github.com/relaytrack/relaytrack/internal/users"
	"github.com/relaytrack/relaytrack/jobs"
)

type catalogSource struct {
	service *catalog.Service
}

func (c catalogSource) ItemSnapshot(ctx context.Context, id int64) (shipments.CatalogItemSnapshot, error) {
	item, err := c.service.GetItem(ctx, id)
	if err != nil {
		return shipments.CatalogItemSnapshot{}, err
	}
	return shipments.CatalogItemSnapshot{
		ID:             item.ID,
		Description:    item.Description,
		Unit:           item.Unit,
		PriceUSD:       item.PriceUSD,
		PriceLocal:     item.PriceLocal,
		ItemCategoryID: item.ItemCategoryID,
		DonorID:        item.DonorID,
		DonorT1ID:      item.DonorT1ID,
		SupplierID:     item.SupplierID,
		Weight:         item.Weight,
	}, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(reportsRepo, logger)

	shipmentsRepo := shipments.NewRepository(pool)
	shipmentsService := shipments.NewService(shipmentsRepo, reportsService, catalogSource{service: catalogService}, cfg.PackageCodePrefix, logger)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)

	fieldClient := fieldapi.NewClient(cfg.FieldAPIBaseURL, cfg.FieldAPIToken)
	formCache := fieldapi.NewFormCache(redisClient, fieldClient, cfg.FormCacheTTL)

	submissionStore := ingest.NewSubmissionStore(pool)
	checkpointStore := ingest.NewCheckpointStore(pool)
	pipeline := ingest.NewPipeline(fieldClient, formCache, submissionStore, checkpointStore, shipmentsService, usersService, logger)

	scanJob := jobs.NewScanPollJob(pipeline, cfg.PackageFormID, logger, nil)
	deviceJob := jobs.NewDevicePollJob(pipeline, cfg.DeviceFormID, logger, nil)
	deleteJob := jobs.NewShipmentDeleteJob(shipmentsService, logger, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskScanPoll, Handler: scanJob.Handle},
			{Type: jobs.TaskDevicePoll, Handler: deviceJob.Handle},
			{Type: jobs.TaskShipmentDelete, Handler: deleteJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ScanPollSpec, Task: jobs.NewScanPollTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.DevicePollSpec, Task: jobs.NewDevicePollTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
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
