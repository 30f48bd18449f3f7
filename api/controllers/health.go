package controllers

import (
	"context"
	"net/http"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SlabSync-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the durable dependencies. A failing dependency is reported
// but still returns 200; the body tells the operator what is degraded.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SlabSync-Env", cfg.App.Env)

		checks := map[string]string{}
		status := "ready"

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				checks["db"] = err.Error()
				status = "degraded"
				logg.Error(r.Context(), "db ping failed", err)
			} else {
				checks["db"] = "ok"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				checks["redis"] = err.Error()
				status = "degraded"
				logg.Error(r.Context(), "redis ping failed", err)
			} else {
				checks["redis"] = "ok"
			}
		}

		responses.WriteSuccess(w, map[string]any{"status": status, "checks": checks})
	}
}
