package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slabworks/slabsync-backend/api/routes"
	"github.com/slabworks/slabsync-backend/internal/aggregation"
	"github.com/slabworks/slabsync-backend/internal/drain"
	"github.com/slabworks/slabsync-backend/internal/duplicates"
	"github.com/slabworks/slabsync-backend/internal/inventory"
	"github.com/slabworks/slabsync-backend/internal/reconcile"
	"github.com/slabworks/slabsync-backend/internal/rules"
	"github.com/slabworks/slabsync-backend/internal/syncqueue"
	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db"
	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/instance"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
	"github.com/slabworks/slabsync-backend/pkg/marketplace/ebay"
	"github.com/slabworks/slabsync-backend/pkg/marketplace/square"
	"github.com/slabworks/slabsync-backend/pkg/metrics"
	"github.com/slabworks/slabsync-backend/pkg/migrate"
	"github.com/slabworks/slabsync-backend/pkg/redis"
)

// ruleEvaluator adapts the rule service to the inventory service's hook.
type ruleEvaluator struct {
	rules rules.Service
}

func (e ruleEvaluator) Evaluate(ctx context.Context, record models.InventoryRecord) (inventory.Evaluation, error) {
	decision, err := e.rules.Evaluate(ctx, record)
	if err != nil {
		return inventory.Evaluation{}, err
	}
	return inventory.Evaluation{
		Eligible:  decision.Included,
		AutoQueue: decision.AutoQueue,
		RuleID:    decision.RuleID,
	}, nil
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	promRegistry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(promRegistry)

	clients, err := buildMarketplaceClients(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build marketplace clients", err)
		os.Exit(1)
	}

	recordRepo := inventory.NewRepository(dbClient.DB())
	aggregateRepo := aggregation.NewRepository(dbClient.DB())
	jobRepo := syncqueue.NewRepository(dbClient.DB())
	deadLetterRepo := syncqueue.NewDLQRepository(dbClient.DB())
	outcomeRepo := reconcile.NewRepository(dbClient.DB())
	ruleRepo := rules.NewRepository(dbClient.DB())

	aggregateService := aggregation.NewService(aggregateRepo, recordRepo, logg)

	queueService, err := syncqueue.NewService(syncqueue.ServiceParams{
		Config:      cfg.Queue,
		Logger:      logg,
		DB:          dbClient,
		Jobs:        jobRepo,
		DeadLetters: deadLetterRepo,
		Records:     recordRepo,
		Metrics:     syncMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync queue service", err)
		os.Exit(1)
	}

	ruleService, err := rules.NewService(ruleRepo, recordRepo, queueService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create rule service", err)
		os.Exit(1)
	}

	recordService := inventory.NewService(recordRepo, ruleEvaluator{rules: ruleService}, queueService, aggregateService, logg)

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

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Config:     cfg.Reconcile,
		Logger:     logg,
		Records:    recordRepo,
		Outcomes:   outcomeRepo,
		Aggregates: aggregateService,
		Clients:    clients,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}

	duplicateService, err := duplicates.NewService(recordRepo, aggregateService, clients, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create duplicate service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Registry:   promRegistry,
			Inventory:  recordService,
			Queue:      queueService,
			Drain:      drainController,
			Aggregates: aggregateService,
			Reconcile:  reconcileService,
			Duplicates: duplicateService,
			Rules:      ruleService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildMarketplaceClients registers a client per configured marketplace. A
// platform without credentials is simply absent from the registry; operations
// targeting it fail with a validation error instead of a broken client.
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
