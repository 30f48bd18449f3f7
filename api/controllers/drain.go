package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/api/validators"
	"github.com/slabworks/slabsync-backend/internal/drain"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type drainRequest struct {
	BatchSize       int    `json:"batch_size,omitempty" validate:"omitempty,min=1"`
	Concurrency     int    `json:"concurrency,omitempty" validate:"omitempty,min=1,max=32"`
	MaxIterations   int    `json:"max_iterations,omitempty" validate:"omitempty,min=1"`
	BreakerFailures int    `json:"breaker_failures,omitempty" validate:"omitempty,min=1"`
	DelayMS         int    `json:"delay_ms,omitempty" validate:"omitempty,min=0"`
	Turbo           bool   `json:"turbo,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=600"`
	Reason          string `json:"reason,omitempty"`
}

type autoDrainRequest struct {
	Enabled bool `json:"enabled"`
}

type toggleStore interface {
	SetToggle(ctx context.Context, name string, enabled bool) error
	GetToggle(ctx context.Context, name string) (bool, error)
}

// DrainStep claims and executes exactly one job.
func DrainStep(controller *drain.Controller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := controller.Step(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if job == nil {
			responses.WriteSuccess(w, map[string]any{"status": "idle"})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "processed", "job": job})
	}
}

// DrainRun runs a full drain with per-invocation options. A drain already in
// flight elsewhere returns a conflict, not an error result.
func DrainRun(controller *drain.Controller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload drainRequest
		if r.Body != nil && r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		ctx := r.Context()
		if payload.TimeoutSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(payload.TimeoutSeconds)*time.Second)
			defer cancel()
		}

		result, err := controller.Drain(ctx, drain.Options{
			BatchSize:       payload.BatchSize,
			Concurrency:     payload.Concurrency,
			MaxIterations:   payload.MaxIterations,
			BreakerFailures: payload.BreakerFailures,
			Delay:           time.Duration(payload.DelayMS) * time.Millisecond,
			Turbo:           payload.Turbo,
		})
		if err != nil {
			if errors.Is(err, drain.ErrDrainBusy) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "a drain is already running"))
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				responses.WriteSuccess(w, result)
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AutoDrainGet reports the background drainer toggle.
func AutoDrainGet(toggles toggleStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabled, err := toggles.GetToggle(r.Context(), drain.AutoDrainToggle)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read auto-drain toggle"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"enabled": enabled})
	}
}

// AutoDrainSet flips the background drainer toggle. The worker picks the new
// value up on its next tick.
func AutoDrainSet(toggles toggleStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload autoDrainRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := toggles.SetToggle(r.Context(), drain.AutoDrainToggle, payload.Enabled); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write auto-drain toggle"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"enabled": payload.Enabled})
	}
}
