package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
)

const (
	defaultBatchSize   = 25
	defaultDetailLimit = 20
)

type recordStore interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryRecord, error)
	ListLinked(ctx context.Context, mk enums.Marketplace, location string) ([]models.InventoryRecord, error)
	CorrectQuantity(ctx context.Context, id uuid.UUID, quantity int, sold bool, soldAt *time.Time) error
	ClearListingRefs(ctx context.Context, id uuid.UUID) error
}

type outcomeStore interface {
	Insert(ctx context.Context, outcome *models.ReconciliationOutcome) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationOutcome, error)
}

type aggregateRecalculator interface {
	RecalculateSKU(ctx context.Context, sku string, mk enums.Marketplace) (*models.InventoryAggregate, error)
}

// Input scopes one reconciliation run. Marketplace is required; RecordIDs and
// Location narrow the candidate set. DryRun classifies without touching
// records.
type Input struct {
	Marketplace enums.Marketplace `json:"marketplace"`
	RecordIDs   []uuid.UUID       `json:"record_ids,omitempty"`
	Location    string            `json:"location,omitempty"`
	DryRun      bool              `json:"dry_run"`
}

// Summary reports one run. Outcomes carries the first DetailLimit audit rows
// in processing order; the full set is durable and served by Outcomes(runID).
// Unchanged counts records already in agreement.
type Summary struct {
	RunID     uuid.UUID                      `json:"run_id"`
	DryRun    bool                           `json:"dry_run"`
	Processed int                            `json:"processed"`
	Confirmed int                            `json:"confirmed"`
	Corrected int                            `json:"corrected"`
	Cleared   int                            `json:"cleared"`
	Unchanged int                            `json:"unchanged"`
	Errors    int                            `json:"errors"`
	Outcomes  []models.ReconciliationOutcome `json:"outcomes"`
}

// Service compares local records against marketplace truth and corrects the
// local side. The marketplace is authoritative; reconciliation never mutates
// remote listings.
type Service interface {
	Run(ctx context.Context, input Input) (*Summary, error)
	Outcomes(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationOutcome, error)
}

// ServiceParams holds the collaborators for NewService.
type ServiceParams struct {
	Config     config.ReconcileConfig
	Logger     *logger.Logger
	Records    recordStore
	Outcomes   outcomeStore
	Aggregates aggregateRecalculator
	Clients    marketplace.Registry
}

type service struct {
	cfg        config.ReconcileConfig
	logger     *logger.Logger
	records    recordStore
	outcomes   outcomeStore
	aggregates aggregateRecalculator
	clients    marketplace.Registry
}

// NewService wires the reconciliation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Records == nil {
		return nil, errors.New("record store is required")
	}
	if params.Outcomes == nil {
		return nil, errors.New("outcome store is required")
	}
	if params.Clients == nil {
		return nil, errors.New("marketplace registry is required")
	}
	cfg := params.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.DetailLimit <= 0 {
		cfg.DetailLimit = defaultDetailLimit
	}
	return &service{
		cfg:        cfg,
		logger:     params.Logger,
		records:    params.Records,
		outcomes:   params.Outcomes,
		aggregates: params.Aggregates,
		clients:    params.Clients,
	}, nil
}

func (s *service) Run(ctx context.Context, input Input) (*Summary, error) {
	if !input.Marketplace.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace is required")
	}
	client := s.clients.For(input.Marketplace)
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no client configured for marketplace %s", input.Marketplace))
	}

	records, err := s.candidates(ctx, input)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:  uuid.New(),
		DryRun: input.DryRun,
	}
	ctx = s.logger.WithMarketplace(ctx, input.Marketplace.String())
	ctx = s.logger.WithField(ctx, "run_id", summary.RunID.String())

	changedSKUs := map[string]bool{}
	for start := 0; start < len(records); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		end := start + s.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		verdicts := s.classifyBatch(ctx, client, batch)

		for i, record := range batch {
			summary.Processed++

			verdict := verdicts[i]
			if verdict == nil {
				summary.Unchanged++
				continue
			}

			if !input.DryRun {
				if err := s.apply(ctx, record, verdict); err != nil {
					verdict.action = enums.ReconcileError
					verdict.detail = fmt.Sprintf("apply failed: %s", err.Error())
				} else if verdict.action == enums.ReconcileQuantityCorrected || verdict.action == enums.ReconcileClearedRefs {
					changedSKUs[record.SKU] = true
				}
			}

			outcome := models.ReconciliationOutcome{
				RunID:          summary.RunID,
				RecordID:       record.ID,
				Marketplace:    record.Marketplace,
				Action:         verdict.action,
				BeforeQuantity: record.Quantity,
				AfterQuantity:  verdict.afterQuantity,
				BeforeSold:     record.Sold,
				AfterSold:      verdict.afterSold,
				Detail:         verdict.detail,
				DryRun:         input.DryRun,
			}
			if err := s.outcomes.Insert(ctx, &outcome); err != nil {
				s.logger.Error(ctx, "persist reconciliation outcome", err)
			}
			if len(summary.Outcomes) < s.cfg.DetailLimit {
				summary.Outcomes = append(summary.Outcomes, outcome)
			}

			switch verdict.action {
			case enums.ReconcileConfirmedSold:
				summary.Confirmed++
			case enums.ReconcileQuantityCorrected:
				summary.Corrected++
			case enums.ReconcileClearedRefs:
				summary.Cleared++
			case enums.ReconcileError:
				summary.Errors++
			}
		}
	}

	if !input.DryRun && s.aggregates != nil {
		for sku := range changedSKUs {
			if _, err := s.aggregates.RecalculateSKU(ctx, sku, input.Marketplace); err != nil {
				s.logger.Error(s.logger.WithSKU(ctx, sku), "recalculate aggregate after reconcile", err)
			}
		}
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"processed": summary.Processed,
		"confirmed": summary.Confirmed,
		"corrected": summary.Corrected,
		"cleared":   summary.Cleared,
		"unchanged": summary.Unchanged,
		"errors":    summary.Errors,
		"dry_run":   summary.DryRun,
	}), "reconciliation run complete")
	return summary, nil
}

func (s *service) Outcomes(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationOutcome, error) {
	return s.outcomes.ListByRun(ctx, runID)
}

func (s *service) candidates(ctx context.Context, input Input) ([]models.InventoryRecord, error) {
	if len(input.RecordIDs) == 0 {
		return s.records.ListLinked(ctx, input.Marketplace, input.Location)
	}

	rows, err := s.records.FindByIDs(ctx, input.RecordIDs)
	if err != nil {
		return nil, err
	}
	filtered := make([]models.InventoryRecord, 0, len(rows))
	for _, row := range rows {
		if row.Marketplace != input.Marketplace {
			continue
		}
		if input.Location != "" && row.Location != input.Location {
			continue
		}
		if !row.Linked() {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered, nil
}

// verdict is one record's classification plus the local state it implies.
// A nil verdict means local and remote already agree.
type verdict struct {
	action        enums.ReconcileAction
	afterQuantity int
	afterSold     bool
	afterSoldAt   *time.Time
	clearRefs     bool
	detail        string
}

// classifyBatch fetches listing states for one batch in parallel; the batch
// size caps how many marketplace reads are in flight at once.
func (s *service) classifyBatch(ctx context.Context, client marketplace.Client, batch []models.InventoryRecord) []*verdict {
	verdicts := make([]*verdict, len(batch))
	if len(batch) == 1 {
		verdicts[0] = s.classify(ctx, client, batch[0])
		return verdicts
	}

	var wg sync.WaitGroup
	for i, record := range batch {
		wg.Add(1)
		go func(i int, record models.InventoryRecord) {
			defer wg.Done()
			verdicts[i] = s.classify(ctx, client, record)
		}(i, record)
	}
	wg.Wait()
	return verdicts
}

func (s *service) classify(ctx context.Context, client marketplace.Client, record models.InventoryRecord) *verdict {
	state, err := client.FetchListingState(ctx, listingRef(record))
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return &verdict{
				action:        enums.ReconcileClearedRefs,
				afterQuantity: record.Quantity,
				afterSold:     record.Sold,
				clearRefs:     true,
				detail:        "listing no longer exists on the marketplace",
			}
		}
		return &verdict{
			action:        enums.ReconcileError,
			afterQuantity: record.Quantity,
			afterSold:     record.Sold,
			detail:        err.Error(),
		}
	}

	switch {
	case record.Sold && (!state.Active || state.Quantity == 0):
		return &verdict{
			action:        enums.ReconcileConfirmedSold,
			afterQuantity: record.Quantity,
			afterSold:     true,
			detail:        "marketplace confirms the sale",
		}
	case record.Sold && state.Active && state.Quantity > 0:
		// Listing is live with stock; the local sale was premature or reversed.
		return &verdict{
			action:        enums.ReconcileQuantityCorrected,
			afterQuantity: state.Quantity,
			afterSold:     false,
			detail:        fmt.Sprintf("listing active with quantity %d; sold flag cleared", state.Quantity),
		}
	case !record.Sold && !state.Active:
		return &verdict{
			action:        enums.ReconcileQuantityCorrected,
			afterQuantity: 0,
			afterSold:     true,
			afterSoldAt:   state.SoldAt,
			detail:        "listing inactive on the marketplace; marked sold",
		}
	case !record.Sold && state.Quantity != record.Quantity:
		return &verdict{
			action:        enums.ReconcileQuantityCorrected,
			afterQuantity: state.Quantity,
			afterSold:     false,
			detail:        fmt.Sprintf("quantity corrected from %d to %d", record.Quantity, state.Quantity),
		}
	default:
		return nil
	}
}

func (s *service) apply(ctx context.Context, record models.InventoryRecord, v *verdict) error {
	switch v.action {
	case enums.ReconcileClearedRefs:
		return s.records.ClearListingRefs(ctx, record.ID)
	case enums.ReconcileQuantityCorrected:
		return s.records.CorrectQuantity(ctx, record.ID, v.afterQuantity, v.afterSold, v.afterSoldAt)
	default:
		return nil
	}
}

func listingRef(record models.InventoryRecord) marketplace.ListingRef {
	return marketplace.ListingRef{
		ProductRef: deref(record.ProductRef),
		ListingRef: deref(record.ListingRef),
		VariantRef: deref(record.VariantRef),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
