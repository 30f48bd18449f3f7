package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	dbtypes "github.com/slabworks/slabsync-backend/pkg/db/types"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

type ruleStore interface {
	Create(ctx context.Context, rule *models.SyncRule) (*models.SyncRule, error)
	Update(ctx context.Context, rule *models.SyncRule) (*models.SyncRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SyncRule, error)
	List(ctx context.Context) ([]models.SyncRule, error)
	ListActive(ctx context.Context) ([]models.SyncRule, error)
}

type recordSource interface {
	ListEvaluable(ctx context.Context, mk enums.Marketplace) ([]models.InventoryRecord, error)
	SetSyncFlagged(ctx context.Context, id uuid.UUID, flagged bool) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, recordID uuid.UUID, mk enums.Marketplace, action enums.SyncAction) (*models.SyncJob, error)
}

// CreateRuleInput holds the validated payload to create a rule.
type CreateRuleInput struct {
	Name          string
	Type          enums.RuleType
	Categories    []string
	BrandKeywords []string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	GradedOnly    bool
	Priority      int
	Active        bool
	AutoQueue     bool
}

// UpdateRuleInput holds optional mutation values for a rule.
type UpdateRuleInput struct {
	Name          *string
	Type          *enums.RuleType
	Categories    []string
	BrandKeywords []string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	GradedOnly    *bool
	Priority      *int
	Active        *bool
	AutoQueue     *bool
}

// PreviewResult counts what Apply would do without writing.
type PreviewResult struct {
	Evaluated  int `json:"evaluated"`
	Included   int `json:"included"`
	Excluded   int `json:"excluded"`
	AutoQueued int `json:"auto_queued"`
}

// ApplyResult reports a rule application pass.
type ApplyResult struct {
	Evaluated  int `json:"evaluated"`
	Flagged    int `json:"flagged"`
	Cleared    int `json:"cleared"`
	Unchanged  int `json:"unchanged"`
	AutoQueued int `json:"auto_queued"`
	Failed     int `json:"failed"`
}

// Service manages sync rules and applies them to inventory records.
type Service interface {
	CreateRule(ctx context.Context, input CreateRuleInput) (*models.SyncRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, input UpdateRuleInput) (*models.SyncRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	GetRule(ctx context.Context, id uuid.UUID) (*models.SyncRule, error)
	ListRules(ctx context.Context) ([]models.SyncRule, error)
	Evaluate(ctx context.Context, record models.InventoryRecord) (Decision, error)
	Preview(ctx context.Context, mk enums.Marketplace) (*PreviewResult, error)
	Apply(ctx context.Context, mk enums.Marketplace) (*ApplyResult, error)
}

type service struct {
	repo    ruleStore
	records recordSource
	queue   enqueuer
	logger  *logger.Logger
}

// NewService wires the rule service. The record source and queue are only
// needed for Preview/Apply; Evaluate works without them.
func NewService(repo ruleStore, records recordSource, queue enqueuer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("rule repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		repo:    repo,
		records: records,
		queue:   queue,
		logger:  logg,
	}, nil
}

func (s *service) CreateRule(ctx context.Context, input CreateRuleInput) (*models.SyncRule, error) {
	if err := validateRule(input.Name, input.Type, input.MinPrice, input.MaxPrice); err != nil {
		return nil, err
	}

	rule := &models.SyncRule{
		Name:          strings.TrimSpace(input.Name),
		Type:          input.Type,
		Categories:    dbtypes.StringList(normalizeList(input.Categories)),
		BrandKeywords: dbtypes.StringList(normalizeList(input.BrandKeywords)),
		MinPrice:      input.MinPrice,
		MaxPrice:      input.MaxPrice,
		GradedOnly:    input.GradedOnly,
		Priority:      input.Priority,
		Active:        input.Active,
		AutoQueue:     input.AutoQueue,
	}
	created, err := s.repo.Create(ctx, rule)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create sync rule")
	}
	return created, nil
}

func (s *service) UpdateRule(ctx context.Context, id uuid.UUID, input UpdateRuleInput) (*models.SyncRule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "sync rule not found")
	}

	if input.Name != nil {
		rule.Name = strings.TrimSpace(*input.Name)
	}
	if input.Type != nil {
		rule.Type = *input.Type
	}
	if input.Categories != nil {
		rule.Categories = dbtypes.StringList(normalizeList(input.Categories))
	}
	if input.BrandKeywords != nil {
		rule.BrandKeywords = dbtypes.StringList(normalizeList(input.BrandKeywords))
	}
	if input.MinPrice != nil {
		rule.MinPrice = input.MinPrice
	}
	if input.MaxPrice != nil {
		rule.MaxPrice = input.MaxPrice
	}
	if input.GradedOnly != nil {
		rule.GradedOnly = *input.GradedOnly
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.Active != nil {
		rule.Active = *input.Active
	}
	if input.AutoQueue != nil {
		rule.AutoQueue = *input.AutoQueue
	}

	if err := validateRule(rule.Name, rule.Type, rule.MinPrice, rule.MaxPrice); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, rule)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update sync rule")
	}
	return updated, nil
}

func (s *service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "sync rule not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete sync rule")
	}
	return nil
}

func (s *service) GetRule(ctx context.Context, id uuid.UUID) (*models.SyncRule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "sync rule not found")
	}
	return rule, nil
}

func (s *service) ListRules(ctx context.Context) ([]models.SyncRule, error) {
	return s.repo.List(ctx)
}

func (s *service) Evaluate(ctx context.Context, record models.InventoryRecord) (Decision, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active rules")
	}
	return Decide(active, record), nil
}

func (s *service) Preview(ctx context.Context, mk enums.Marketplace) (*PreviewResult, error) {
	rules, records, err := s.load(ctx, mk)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{}
	for _, record := range records {
		result.Evaluated++
		decision := Decide(rules, record)
		if decision.Included {
			result.Included++
			if decision.AutoQueue {
				result.AutoQueued++
			}
		} else {
			result.Excluded++
		}
	}
	return result, nil
}

func (s *service) Apply(ctx context.Context, mk enums.Marketplace) (*ApplyResult, error) {
	rules, records, err := s.load(ctx, mk)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	var errs []error
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Evaluated++
		decision := Decide(rules, record)

		if decision.Included != record.SyncFlagged {
			if err := s.records.SetSyncFlagged(ctx, record.ID, decision.Included); err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("record %s: %w", record.ID, err))
				continue
			}
			if decision.Included {
				result.Flagged++
			} else {
				result.Cleared++
			}
		} else {
			result.Unchanged++
		}

		if decision.Included && decision.AutoQueue && s.queue != nil {
			if _, err := s.queue.Enqueue(ctx, record.ID, mk, enums.SyncActionPush); err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("record %s: %w", record.ID, err))
				continue
			}
			result.AutoQueued++
		}
	}

	if len(errs) > 0 {
		s.logger.Error(s.logger.WithMarketplace(ctx, mk.String()), "rule application finished with failures", multierr.Combine(errs...))
	}
	return result, nil
}

func (s *service) load(ctx context.Context, mk enums.Marketplace) ([]models.SyncRule, []models.InventoryRecord, error) {
	if !mk.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace is required")
	}
	if s.records == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "record source not configured")
	}
	rules, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active rules")
	}
	records, err := s.records.ListEvaluable(ctx, mk)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load records")
	}
	return rules, records, nil
}

func validateRule(name string, ruleType enums.RuleType, minPrice, maxPrice *decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "rule name is required")
	}
	if !ruleType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "rule type must be include or exclude")
	}
	if minPrice != nil && minPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "min price cannot be negative")
	}
	if maxPrice != nil && maxPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "max price cannot be negative")
	}
	if minPrice != nil && maxPrice != nil && minPrice.GreaterThan(*maxPrice) {
		return pkgerrors.New(pkgerrors.CodeValidation, "min price cannot exceed max price")
	}
	return nil
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
