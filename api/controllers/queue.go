package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/api/validators"
	"github.com/slabworks/slabsync-backend/internal/syncqueue"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

const maxJobListLimit = 200

type enqueueJobRequest struct {
	RecordID    string `json:"record_id" validate:"required"`
	Marketplace string `json:"marketplace" validate:"required"`
	Action      string `json:"action" validate:"required"`
}

type dismissDeadLetterRequest struct {
	Note string `json:"note,omitempty"`
}

// QueueStats reports job counts by status plus the unresolved dead-letter
// depth.
func QueueStats(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// QueueEnqueue adds a sync job, coalescing with any live job for the record.
func QueueEnqueue(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload enqueueJobRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recordID, err := uuid.Parse(payload.RecordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id"))
			return
		}
		marketplace, err := enums.ParseMarketplace(payload.Marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace"))
			return
		}
		action, err := enums.ParseSyncAction(payload.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		job, err := svc.Enqueue(r.Context(), recordID, marketplace, action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, job)
	}
}

// QueueJobList lists jobs, optionally filtered by status.
func QueueJobList(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status enums.SyncJobStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseSyncJobStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = parsed
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxJobListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		jobs, err := svc.ListJobs(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"jobs": jobs})
	}
}

// QueueJobGet loads one job.
func QueueJobGet(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, job)
	}
}

// QueueJobCancel cancels a queued or processing job.
func QueueJobCancel(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Cancel(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// DeadLetterList returns archived job failures, unresolved first by default.
func DeadLetterList(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unresolvedOnly := r.URL.Query().Get("include_resolved") != "true"
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxJobListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListDeadLetters(r.Context(), unresolvedOnly, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"dead_letters": entries})
	}
}

// DeadLetterRetry re-enqueues the archived job and resolves the entry.
func DeadLetterRetry(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		job, err := svc.RetryDeadLetter(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, job)
	}
}

// DeadLetterDismiss resolves the entry without retrying.
func DeadLetterDismiss(svc *syncqueue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		note := "dismissed by operator"
		if r.Body != nil && r.ContentLength > 0 {
			var payload dismissDeadLetterRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if strings.TrimSpace(payload.Note) != "" {
				note = strings.TrimSpace(payload.Note)
			}
		}

		if err := svc.DismissDeadLetter(r.Context(), id, note); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "dismissed"})
	}
}
