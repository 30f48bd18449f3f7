package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/slabworks/slabsync-backend/api/responses"
	"github.com/slabworks/slabsync-backend/api/validators"
	"github.com/slabworks/slabsync-backend/internal/rules"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type createRuleRequest struct {
	Name          string   `json:"name" validate:"required"`
	Type          string   `json:"type" validate:"required"`
	Categories    []string `json:"categories,omitempty"`
	BrandKeywords []string `json:"brand_keywords,omitempty"`
	MinPrice      *string  `json:"min_price,omitempty"`
	MaxPrice      *string  `json:"max_price,omitempty"`
	GradedOnly    bool     `json:"graded_only"`
	Priority      int      `json:"priority"`
	Active        bool     `json:"active"`
	AutoQueue     bool     `json:"auto_queue"`
}

type updateRuleRequest struct {
	Name          *string  `json:"name,omitempty"`
	Type          *string  `json:"type,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	BrandKeywords []string `json:"brand_keywords,omitempty"`
	MinPrice      *string  `json:"min_price,omitempty"`
	MaxPrice      *string  `json:"max_price,omitempty"`
	GradedOnly    *bool    `json:"graded_only,omitempty"`
	Priority      *int     `json:"priority,omitempty"`
	Active        *bool    `json:"active,omitempty"`
	AutoQueue     *bool    `json:"auto_queue,omitempty"`
}

// RuleCreate adds a sync rule.
func RuleCreate(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createRuleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ruleType, err := enums.ParseRuleType(strings.TrimSpace(payload.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rule type"))
			return
		}
		minPrice, err := parseOptionalPrice(payload.MinPrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		maxPrice, err := parseOptionalPrice(payload.MaxPrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.CreateRule(r.Context(), rules.CreateRuleInput{
			Name:          payload.Name,
			Type:          ruleType,
			Categories:    payload.Categories,
			BrandKeywords: payload.BrandKeywords,
			MinPrice:      minPrice,
			MaxPrice:      maxPrice,
			GradedOnly:    payload.GradedOnly,
			Priority:      payload.Priority,
			Active:        payload.Active,
			AutoQueue:     payload.AutoQueue,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rule)
	}
}

// RuleUpdate applies a partial update to one rule.
func RuleUpdate(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateRuleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := rules.UpdateRuleInput{
			Name:          payload.Name,
			Categories:    payload.Categories,
			BrandKeywords: payload.BrandKeywords,
			GradedOnly:    payload.GradedOnly,
			Priority:      payload.Priority,
			Active:        payload.Active,
			AutoQueue:     payload.AutoQueue,
		}
		if payload.Type != nil {
			ruleType, err := enums.ParseRuleType(strings.TrimSpace(*payload.Type))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rule type"))
				return
			}
			input.Type = &ruleType
		}
		if input.MinPrice, err = parseOptionalPrice(payload.MinPrice); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.MaxPrice, err = parseOptionalPrice(payload.MaxPrice); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.UpdateRule(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// RuleDelete removes a rule.
func RuleDelete(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteRule(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// RuleGet loads one rule.
func RuleGet(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.GetRule(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// RuleList returns every rule in evaluation order.
func RuleList(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListRules(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"rules": list})
	}
}

// RulePreview counts what Apply would do without writing.
func RulePreview(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Preview(r.Context(), marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RuleApply flags and clears records per the active rule set.
func RuleApply(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplace, err := queryMarketplace(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Apply(r.Context(), marketplace)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseOptionalPrice(raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	return &price, nil
}
