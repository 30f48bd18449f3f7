package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slabworks/slabsync-backend/api/controllers"
	"github.com/slabworks/slabsync-backend/api/middleware"
	"github.com/slabworks/slabsync-backend/internal/aggregation"
	"github.com/slabworks/slabsync-backend/internal/drain"
	"github.com/slabworks/slabsync-backend/internal/duplicates"
	"github.com/slabworks/slabsync-backend/internal/inventory"
	"github.com/slabworks/slabsync-backend/internal/reconcile"
	"github.com/slabworks/slabsync-backend/internal/rules"
	"github.com/slabworks/slabsync-backend/internal/syncqueue"
	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type redisStore interface {
	Ping(ctx context.Context) error
	SetToggle(ctx context.Context, name string, enabled bool) error
	GetToggle(ctx context.Context, name string) (bool, error)
}

// Deps carries everything the router mounts.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redisStore
	Registry   *prometheus.Registry
	Inventory  inventory.Service
	Queue      *syncqueue.Service
	Drain      *drain.Controller
	Aggregates aggregation.Service
	Reconcile  reconcile.Service
	Duplicates duplicates.Service
	Rules      rules.Service
}

// NewRouter mounts the operator console API.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/records", func(r chi.Router) {
			r.Get("/", controllers.RecordList(deps.Inventory, logg))
			r.Post("/", controllers.RecordCreate(deps.Inventory, logg))
			r.Get("/{recordId}", controllers.RecordGet(deps.Inventory, logg))
			r.Patch("/{recordId}", controllers.RecordUpdate(deps.Inventory, logg))
			r.Delete("/{recordId}", controllers.RecordDelete(deps.Inventory, logg))
		})

		r.Route("/sync", func(r chi.Router) {
			r.Route("/queue", func(r chi.Router) {
				r.Get("/stats", controllers.QueueStats(deps.Queue, logg))
				r.Route("/jobs", func(r chi.Router) {
					r.Get("/", controllers.QueueJobList(deps.Queue, logg))
					r.Post("/", controllers.QueueEnqueue(deps.Queue, logg))
					r.Get("/{jobId}", controllers.QueueJobGet(deps.Queue, logg))
					r.Post("/{jobId}/cancel", controllers.QueueJobCancel(deps.Queue, logg))
				})
				r.Route("/dead-letters", func(r chi.Router) {
					r.Get("/", controllers.DeadLetterList(deps.Queue, logg))
					r.Post("/{entryId}/retry", controllers.DeadLetterRetry(deps.Queue, logg))
					r.Post("/{entryId}/dismiss", controllers.DeadLetterDismiss(deps.Queue, logg))
				})
			})
			r.Post("/drain/step", controllers.DrainStep(deps.Drain, logg))
			r.Post("/drain", controllers.DrainRun(deps.Drain, logg))
			r.Get("/auto-drain", controllers.AutoDrainGet(deps.Redis, logg))
			r.Put("/auto-drain", controllers.AutoDrainSet(deps.Redis, logg))
		})

		r.Route("/aggregates", func(r chi.Router) {
			r.Get("/", controllers.AggregateList(deps.Aggregates, logg))
			r.Get("/sku", controllers.AggregateGet(deps.Aggregates, logg))
			r.Post("/recalculate", controllers.AggregateRecalculate(deps.Aggregates, logg))
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Post("/runs", controllers.ReconcileRun(deps.Reconcile, logg))
			r.Get("/runs/{runId}", controllers.ReconcileRunOutcomes(deps.Reconcile, logg))
		})

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", controllers.DuplicateScan(deps.Duplicates, logg))
			r.Post("/resolve", controllers.DuplicateResolveAll(deps.Duplicates, logg))
			r.Post("/{certNumber}/resolve", controllers.DuplicateResolveGroup(deps.Duplicates, logg))
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", controllers.RuleList(deps.Rules, logg))
			r.Post("/", controllers.RuleCreate(deps.Rules, logg))
			r.Get("/{ruleId}", controllers.RuleGet(deps.Rules, logg))
			r.Patch("/{ruleId}", controllers.RuleUpdate(deps.Rules, logg))
			r.Delete("/{ruleId}", controllers.RuleDelete(deps.Rules, logg))
			r.Post("/preview", controllers.RulePreview(deps.Rules, logg))
			r.Post("/apply", controllers.RuleApply(deps.Rules, logg))
		})
	})

	return r
}
