package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/internal/duplicates"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

// DuplicateScan lists cert numbers held by more than one live record.
func DuplicateScan(svc duplicates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groups, err := svc.Scan(r.Context(), marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"groups": groups})
	}
}

// DuplicateResolveAll resolves every duplicate group independently.
func DuplicateResolveAll(svc duplicates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ResolveAll(r.Context(), marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DuplicateResolveGroup resolves one cert number's group.
func DuplicateResolveGroup(svc duplicates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cert := strings.TrimSpace(chi.URLParam(r, "certNumber"))
		if cert == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cert number is required"))
			return
		}
		outcome, err := svc.ResolveGroup(r.Context(), cert, marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
