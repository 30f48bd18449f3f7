package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slabworks/slabsync-backend/internal/aggregation"
	"github.com/slabworks/slabsync-backend/internal/drain"
	"github.com/slabworks/slabsync-backend/internal/inventory"
	"github.com/slabworks/slabsync-backend/internal/syncqueue"
	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db"
	"github.com/slabworks/slabsync-backend/pkg/instance"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
	"github.com/slabworks/slabsync-backend/pkg/marketplace/ebay"
	"github.com/slabworks/slabsync-backend/pkg/marketplace/square"
	"github.com/slabworks/slabsync-backend/pkg/metrics"
	"github.com/slabworks/slabsync-backend/pkg/migrate"
	"github.com/slabworks/slabsync-backend/pkg/redis"
)

const restartDelay = 5 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)

	clients, err := buildMarketplaceClients(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build marketplace clients", err)
		os.Exit(1)
	}

	recordRepo := inventory.NewRepository(dbClient.DB())
	aggregateRepo := aggregation.NewRepository(dbClient.DB())
	aggregateService := aggregation.NewService(aggregateRepo, recordRepo, logg)

	queueService, err := syncqueue.NewService(syncqueue.ServiceParams{
		Config:      cfg.Queue,
		Logger:      logg,
		DB:          dbClient,
		Jobs:        syncqueue.NewRepository(dbClient.DB()),
		DeadLetters: syncqueue.NewDLQRepository(dbClient.DB()),
		Records:     recordRepo,
		Metrics:     syncMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync queue service", err)
		os.Exit(1)
	}

	executor := drain.NewExecutor(recordRepo, aggregateService, clients, syncMetrics, logg)
	drainLock, err := drain.NewRedisLock(redisClient, redisClient.LockKey("drain"), cfg.Drain.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create drain lock", err)
		os.Exit(1)
	}
	drainController, err := drain.NewController(cfg.Drain, queueService, executor, drainLock, syncMetrics, logg, instance.GetID())
	if err != nil {
		logg.Error(context.Background(), "failed to create drain controller", err)
		os.Exit(1)
	}

	autoDrainer, err := drain.NewAutoDrainer(drainController, redisClient, logg, cfg.Drain.AutoInterval)
	if err != nil {
		logg.Error(context.Background(), "failed to create auto drainer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting sync worker")

	// Supervise the drain loop: anything short of a shutdown signal gets
	// logged and the loop restarted after a pause.
	for {
		err := autoDrainer.Run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			break
		}
		logg.Error(ctx, "auto drainer exited, restarting", err)
		select {
		case <-ctx.Done():
		case <-time.After(restartDelay):
			continue
		}
		break
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}

// buildMarketplaceClients registers a client per configured marketplace.
// Platforms without credentials stay out of the registry so their jobs
// dead-letter with a clear error instead of panicking mid-drain.
func buildMarketplaceClients(ctx context.Context, cfg *config.Config, logg *logger.Logger) (marketplace.Registry, error) {
	clients := marketplace.Registry{}

	if cfg.Square.AccessToken != "" {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		clients[squareClient.Marketplace()] = squareClient
	} else {
		logg.Warn(ctx, "square access token not configured, square sync disabled")
	}

	if cfg.Ebay.AccessToken != "" {
		ebayClient, err := ebay.NewClient(cfg.Ebay)
		if err != nil {
			return nil, err
		}
		clients[ebayClient.Marketplace()] = ebayClient
	} else {
		logg.Warn(ctx, "ebay access token not configured, ebay sync disabled")
	}

	return clients, nil
}
