package controllers

import (
	"net/http"
	"strings"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/api/validators"
	"github.com/slabworks/slabsync-backend/internal/aggregation"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type recalculateRequest struct {
	Marketplace string `json:"marketplace" validate:"required"`
	SKU         string `json:"sku,omitempty"`
}

// AggregateList returns per-SKU aggregates, optionally only the out-of-sync
// ones.
func AggregateList(svc aggregation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), marketplace, r.URL.Query().Get("needs_sync") == "true")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"aggregates": rows})
	}
}

// AggregateGet loads one SKU's aggregate.
func AggregateGet(svc aggregation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sku := strings.TrimSpace(r.URL.Query().Get("sku"))
		if sku == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sku is required"))
			return
		}
		aggregate, err := svc.Get(r.Context(), sku, marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, aggregate)
	}
}

// AggregateRecalculate rebuilds one SKU's aggregate, or every SKU's when none
// is given.
func AggregateRecalculate(svc aggregation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload recalculateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		marketplace, err := enums.ParseMarketplace(payload.Marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace"))
			return
		}

		if sku := strings.TrimSpace(payload.SKU); sku != "" {
			aggregate, err := svc.RecalculateSKU(r.Context(), sku, marketplace)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, aggregate)
			return
		}

		result, err := svc.RecalculateAll(r.Context(), marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func queryMarketplace(r *http.Request) (enums.Marketplace, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("marketplace"))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "marketplace is required")
	}
	marketplace, err := enums.ParseMarketplace(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid marketplace")
	}
	return marketplace, nil
}
