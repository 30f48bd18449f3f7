package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/api/validators"
	"github.com/slabworks/slabsync-backend/internal/reconcile"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type reconcileRunRequest struct {
	Marketplace string   `json:"marketplace" validate:"required"`
	RecordIDs   []string `json:"record_ids,omitempty"`
	Location    string   `json:"location,omitempty"`
	DryRun      bool     `json:"dry_run"`
}

// ReconcileRun executes a reconciliation pass against marketplace truth.
func ReconcileRun(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload reconcileRunRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		marketplace, err := enums.ParseMarketplace(payload.Marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace"))
			return
		}

		recordIDs := make([]uuid.UUID, 0, len(payload.RecordIDs))
		for _, raw := range payload.RecordIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id"))
				return
			}
			recordIDs = append(recordIDs, id)
		}

		summary, err := svc.Run(r.Context(), reconcile.Input{
			Marketplace: marketplace,
			RecordIDs:   recordIDs,
			Location:    payload.Location,
			DryRun:      payload.DryRun,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// ReconcileRunOutcomes returns the audit rows for one run.
func ReconcileRunOutcomes(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := pathUUID(r, "runId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcomes, err := svc.Outcomes(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"run_id": runID, "outcomes": outcomes})
	}
}
