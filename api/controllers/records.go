package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/api/validators"
	"github.com/slabworks/slabsync-backend/internal/inventory"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/pagination"
)

type createRecordRequest struct {
	CertNumber  *string `json:"cert_number,omitempty"`
	SKU         string  `json:"sku" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	Category    string  `json:"category,omitempty"`
	Brand       string  `json:"brand,omitempty"`
	Grade       *string `json:"grade,omitempty"`
	Graded      bool    `json:"graded"`
	Price       string  `json:"price,omitempty"`
	Quantity    int     `json:"quantity" validate:"min=0"`
	Location    string  `json:"location" validate:"required"`
	Marketplace string  `json:"marketplace" validate:"required"`
}

type updateRecordRequest struct {
	Title    *string `json:"title,omitempty"`
	Category *string `json:"category,omitempty"`
	Brand    *string `json:"brand,omitempty"`
	Grade    *string `json:"grade,omitempty"`
	Price    *string `json:"price,omitempty"`
	Quantity *int    `json:"quantity,omitempty" validate:"omitempty,min=0"`
	Location *string `json:"location,omitempty"`
}

type deleteRecordRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RecordCreate handles inventory record intake.
func RecordCreate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createRecordRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		marketplace, err := enums.ParseMarketplace(payload.Marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace"))
			return
		}
		price, err := parsePrice(payload.Price)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.CreateRecord(r.Context(), inventory.CreateRecordInput{
			CertNumber:  payload.CertNumber,
			SKU:         payload.SKU,
			Title:       payload.Title,
			Category:    payload.Category,
			Brand:       payload.Brand,
			Grade:       payload.Grade,
			Graded:      payload.Graded,
			Price:       price,
			Quantity:    payload.Quantity,
			Location:    payload.Location,
			Marketplace: marketplace,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

// RecordUpdate applies a partial update to one record.
func RecordUpdate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateRecordRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := inventory.UpdateRecordInput{
			Title:    payload.Title,
			Category: payload.Category,
			Brand:    payload.Brand,
			Grade:    payload.Grade,
			Quantity: payload.Quantity,
			Location: payload.Location,
		}
		if payload.Price != nil {
			price, err := parsePrice(*payload.Price)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Price = &price
		}

		record, err := svc.UpdateRecord(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// RecordDelete soft deletes a record, queueing remote cleanup when it is
// still listed.
func RecordDelete(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := "removed by operator"
		if r.Body != nil && r.ContentLength > 0 {
			var payload deleteRecordRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if strings.TrimSpace(payload.Reason) != "" {
				reason = strings.TrimSpace(payload.Reason)
			}
		}

		if err := svc.DeleteRecord(r.Context(), id, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// RecordGet loads one record.
func RecordGet(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetRecord(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// RecordList returns a filtered, cursor-paged record listing.
func RecordList(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		filter := inventory.ListFilter{
			SKU:         strings.TrimSpace(query.Get("sku")),
			Location:    strings.TrimSpace(query.Get("location")),
			FlaggedOnly: query.Get("flagged") == "true",
			IncludeSold: query.Get("include_sold") == "true",
		}
		if raw := strings.TrimSpace(query.Get("marketplace")); raw != "" {
			marketplace, err := enums.ParseMarketplace(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace"))
				return
			}
			filter.Marketplace = marketplace
		}
		if raw := strings.TrimSpace(query.Get("sync_status")); raw != "" {
			status, err := enums.ParseRecordSyncStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sync status"))
				return
			}
			filter.SyncStatus = status
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListRecords(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: query.Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"records":     rows,
			"next_cursor": next,
		})
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id")
	}
	return id, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	return price, nil
}
