package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/pagination"
)

// Evaluation is the rule engine's verdict for one record.
type Evaluation struct {
	Eligible  bool
	AutoQueue bool
	RuleID    *uuid.UUID
}

// Evaluator decides marketplace eligibility for a record.
type Evaluator interface {
	Evaluate(ctx context.Context, record models.InventoryRecord) (Evaluation, error)
}

// Enqueuer adds a sync job for a record, coalescing with any live job.
type Enqueuer interface {
	Enqueue(ctx context.Context, recordID uuid.UUID, marketplace enums.Marketplace, action enums.SyncAction) (*models.SyncJob, error)
}

// Recalculator refreshes the per-SKU aggregate after a record mutation.
type Recalculator interface {
	RecalculateSKU(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error)
}

// Service exposes inventory record management.
type Service interface {
	CreateRecord(ctx context.Context, input CreateRecordInput) (*models.InventoryRecord, error)
	UpdateRecord(ctx context.Context, id uuid.UUID, input UpdateRecordInput) (*models.InventoryRecord, error)
	DeleteRecord(ctx context.Context, id uuid.UUID, reason string) error
	GetRecord(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error)
	ListRecords(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.InventoryRecord, string, error)
}

// CreateRecordInput holds the validated payload to create a record.
type CreateRecordInput struct {
	CertNumber  *string
	SKU         string
	Title       string
	Category    string
	Brand       string
	Grade       *string
	Graded      bool
	Price       decimal.Decimal
	Quantity    int
	Location    string
	Marketplace enums.Marketplace
}

// UpdateRecordInput holds optional mutation values for a record.
type UpdateRecordInput struct {
	Title    *string
	Category *string
	Brand    *string
	Grade    *string
	Price    *decimal.Decimal
	Quantity *int
	Location *string
}

type service struct {
	repo      *Repository
	rules     Evaluator
	queue     Enqueuer
	aggregate Recalculator
	logger    *logger.Logger
}

// NewService wires the inventory service with its collaborators. The rule,
// queue, and aggregate hooks are optional; a nil hook skips that side effect.
func NewService(repo *Repository, rules Evaluator, queue Enqueuer, aggregate Recalculator, logg *logger.Logger) Service {
	return &service{
		repo:      repo,
		rules:     rules,
		queue:     queue,
		aggregate: aggregate,
		logger:    logg,
	}
}

func (s *service) CreateRecord(ctx context.Context, input CreateRecordInput) (*models.InventoryRecord, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	record := &models.InventoryRecord{
		CertNumber:  normalizeOptional(input.CertNumber),
		SKU:         strings.TrimSpace(input.SKU),
		Title:       strings.TrimSpace(input.Title),
		Category:    strings.TrimSpace(input.Category),
		Brand:       strings.TrimSpace(input.Brand),
		Grade:       normalizeOptional(input.Grade),
		Graded:      input.Graded,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Location:    strings.TrimSpace(input.Location),
		Marketplace: input.Marketplace,
		SyncStatus:  enums.RecordSyncUnsynced,
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create inventory record")
	}

	s.afterMutation(ctx, created)
	return created, nil
}

func (s *service) UpdateRecord(ctx context.Context, id uuid.UUID, input UpdateRecordInput) (*models.InventoryRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "inventory record not found")
	}

	if input.Title != nil {
		record.Title = strings.TrimSpace(*input.Title)
	}
	if input.Category != nil {
		record.Category = strings.TrimSpace(*input.Category)
	}
	if input.Brand != nil {
		record.Brand = strings.TrimSpace(*input.Brand)
	}
	if input.Grade != nil {
		record.Grade = normalizeOptional(input.Grade)
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
		}
		record.Price = *input.Price
	}
	if input.Quantity != nil {
		if *input.Quantity < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
		}
		record.Quantity = *input.Quantity
	}
	if input.Location != nil {
		if strings.TrimSpace(*input.Location) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "location cannot be empty")
		}
		record.Location = strings.TrimSpace(*input.Location)
	}

	updated, err := s.repo.Update(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update inventory record")
	}

	s.afterMutation(ctx, updated)
	return updated, nil
}

func (s *service) DeleteRecord(ctx context.Context, id uuid.UUID, reason string) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "inventory record not found")
	}

	if err := s.repo.SoftDelete(ctx, id, strings.TrimSpace(reason)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete inventory record")
	}

	// A deleted record that is still listed needs its remote side cleaned up.
	if record.Linked() && s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, record.ID, record.Marketplace, enums.SyncActionRemove); err != nil {
			s.logError(ctx, record, "enqueue removal after delete", err)
		}
	}
	s.recalculate(ctx, record.SKU, record.Marketplace)
	return nil
}

func (s *service) GetRecord(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "inventory record not found")
	}
	return record, nil
}

func (s *service) ListRecords(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.InventoryRecord, string, error) {
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory records")
	}
	return rows, next, nil
}

// afterMutation re-evaluates rules, refreshes the aggregate, and queues a push
// when the matching rule asks for one. Hook failures are logged, not returned:
// the record mutation already committed.
func (s *service) afterMutation(ctx context.Context, record *models.InventoryRecord) {
	if s.rules != nil {
		verdict, err := s.rules.Evaluate(ctx, *record)
		if err != nil {
			s.logError(ctx, record, "evaluate sync rules", err)
		} else {
			if verdict.Eligible != record.SyncFlagged {
				if err := s.repo.SetSyncFlagged(ctx, record.ID, verdict.Eligible); err != nil {
					s.logError(ctx, record, "update sync flag", err)
				} else {
					record.SyncFlagged = verdict.Eligible
				}
			}
			if verdict.Eligible && verdict.AutoQueue && s.queue != nil {
				if _, err := s.queue.Enqueue(ctx, record.ID, record.Marketplace, enums.SyncActionPush); err != nil {
					s.logError(ctx, record, "auto-queue sync job", err)
				}
			}
		}
	}
	s.recalculate(ctx, record.SKU, record.Marketplace)
}

func (s *service) recalculate(ctx context.Context, sku string, marketplace enums.Marketplace) {
	if s.aggregate == nil {
		return
	}
	if _, err := s.aggregate.RecalculateSKU(ctx, sku, marketplace); err != nil && s.logger != nil {
		ctx = s.logger.WithSKU(ctx, sku)
		s.logger.Error(ctx, "recalculate aggregate", err)
	}
}

func (s *service) logError(ctx context.Context, record *models.InventoryRecord, msg string, err error) {
	if s.logger == nil {
		return
	}
	ctx = s.logger.WithFields(ctx, map[string]any{
		"record_id": record.ID.String(),
		"sku":       record.SKU,
	})
	s.logger.Error(ctx, msg, err)
}

func validateCreate(input CreateRecordInput) error {
	if strings.TrimSpace(input.SKU) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if strings.TrimSpace(input.Location) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "location is required")
	}
	if !input.Marketplace.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "marketplace is invalid")
	}
	if input.Quantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if input.Graded && deref(input.CertNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "graded records require a cert number")
	}
	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
