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
	"github.com/redis/go-redis/v9"

	"github.com/relaytrack/relaytrack/internal/app"
	"github.com/relaytrack/relaytrack/internal/catalog"
	"github.com/relaytrack/relaytrack/internal/observability"
	"github.com/relaytrack/relaytrack/internal/platform/db"
	"github.com/relaytrack/relaytrack/internal/reports"
	"github.com/relaytrack/relaytrack/internal/shipments"
	"github.com/relaytrack/relaytrack/internal/users"
	"github.com/relaytrack/relaytrack/jobs"
)

// catalogSource adapts the catalog service to the snapshot lookup the
// shipments service copies item data from.
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	reportsRepo := reports.NewRepository(dbpool)
	reportsService := reports.NewService(reportsRepo, logger)
	reportsHandler := reports.NewHandler(logger, reportsService)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	shipmentsRepo := shipments.NewRepository(dbpool)
	shipmentsService := shipments.NewService(shipmentsRepo, reportsService, catalogSource{service: catalogService}, cfg.PackageCodePrefix, logger)
	shipmentsHandler := shipments.NewHandler(logger, shipmentsService, jobsClient)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		ShipmentsHandler: shipmentsHandler,
		ReportsHandler:   reportsHandler,
		UsersHandler:     usersHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
