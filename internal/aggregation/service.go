package aggregation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	dbtypes "github.com/slabworks/slabsync-backend/pkg/db/types"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
)

// maxRecalcErrorDetails bounds how many per-SKU failures a bulk result keeps.
const maxRecalcErrorDetails = 20

// RecordSource supplies the live records that feed aggregate totals.
type RecordSource interface {
	ListBySKU(ctx context.Context, sku string, marketplace enums.Marketplace) ([]models.InventoryRecord, error)
	DistinctSKUs(ctx context.Context, marketplace enums.Marketplace) ([]string, error)
}

// RecalculateResult summarizes a full recalculation pass. Errors holds the
// first few per-SKU failures for reporting.
type RecalculateResult struct {
	Processed int      `json:"processed"`
	Flagged   int      `json:"flagged"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Service exposes the aggregation engine.
type Service interface {
	RecalculateSKU(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error)
	RecalculateAll(ctx context.Context, marketplace enums.Marketplace) (*RecalculateResult, error)
	Preview(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error)
	MarkSynced(ctx context.Context, sku string, marketplace enums.Marketplace, pushedQuantity int) error
	Get(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error)
	List(ctx context.Context, marketplace enums.Marketplace, needsSyncOnly bool) ([]models.InventoryAggregate, error)
}

type service struct {
	repo    *Repository
	records RecordSource
	logger  *logger.Logger
}

// NewService wires the aggregation service.
func NewService(repo *Repository, records RecordSource, logg *logger.Logger) Service {
	return &service{repo: repo, records: records, logger: logg}
}

// RecalculateSKU rebuilds the aggregate from live records. The marketplace's
// last-known quantity is preserved; needs_sync flips on when totals diverge.
func (s *service) RecalculateSKU(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error) {
	aggregate, err := s.compute(ctx, sku, marketplace)
	if err != nil {
		return nil, err
	}

	if aggregate.TotalQuantity == 0 && len(aggregate.LocationQuantities) == 0 && aggregate.MarketplaceQuantity == 0 {
		// Nothing on hand and nothing listed: drop the row instead of keeping
		// a zero aggregate around forever.
		if err := s.repo.Delete(ctx, sku, marketplace); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete empty aggregate")
		}
		return aggregate, nil
	}

	saved, err := s.repo.Upsert(ctx, aggregate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert aggregate")
	}
	return saved, nil
}

// RecalculateAll rebuilds every SKU's aggregate for the marketplace. A SKU
// that fails is counted and skipped; the pass always finishes.
func (s *service) RecalculateAll(ctx context.Context, marketplace enums.Marketplace) (*RecalculateResult, error) {
	skus, err := s.records.DistinctSKUs(ctx, marketplace)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list skus")
	}

	result := &RecalculateResult{}
	for _, sku := range skus {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		aggregate, err := s.RecalculateSKU(ctx, sku, marketplace)
		if err != nil {
			result.Failed++
			if len(result.Errors) < maxRecalcErrorDetails {
				result.Errors = append(result.Errors, sku+": "+err.Error())
			}
			if s.logger != nil {
				s.logger.Error(s.logger.WithSKU(ctx, sku), "recalculate aggregate", err)
			}
			continue
		}
		result.Processed++
		if aggregate.NeedsSync {
			result.Flagged++
		}
	}
	return result, nil
}

// Preview computes the aggregate without persisting it.
func (s *service) Preview(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error) {
	return s.compute(ctx, sku, marketplace)
}

// MarkSynced records the quantity the marketplace just accepted.
func (s *service) MarkSynced(ctx context.Context, sku string, marketplace enums.Marketplace, pushedQuantity int) error {
	aggregate, err := s.repo.Get(ctx, sku, marketplace)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "aggregate not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load aggregate")
	}

	now := time.Now().UTC()
	aggregate.MarketplaceQuantity = pushedQuantity
	aggregate.NeedsSync = aggregate.TotalQuantity != pushedQuantity
	aggregate.LastSynced = &now
	aggregate.UpdatedAt = now

	if _, err := s.repo.Upsert(ctx, aggregate); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark aggregate synced")
	}
	return nil
}

func (s *service) Get(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error) {
	aggregate, err := s.repo.Get(ctx, sku, marketplace)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "aggregate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load aggregate")
	}
	return aggregate, nil
}

func (s *service) List(ctx context.Context, marketplace enums.Marketplace, needsSyncOnly bool) ([]models.InventoryAggregate, error) {
	rows, err := s.repo.List(ctx, marketplace, needsSyncOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list aggregates")
	}
	return rows, nil
}

func (s *service) compute(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error) {
	records, err := s.records.ListBySKU(ctx, sku, marketplace)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list records for sku")
	}

	aggregate := buildAggregate(sku, marketplace, records)

	existing, err := s.repo.Get(ctx, sku, marketplace)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing aggregate")
	}
	if existing != nil {
		aggregate.MarketplaceQuantity = existing.MarketplaceQuantity
		aggregate.LastSynced = existing.LastSynced
	}
	aggregate.NeedsSync = aggregate.TotalQuantity != aggregate.MarketplaceQuantity
	return aggregate, nil
}

// buildAggregate sums record quantities per location. Every non-deleted
// record counts, whether or not it is flagged for sync or marked sold; rule
// eligibility gates what gets enqueued, not what exists on hand.
func buildAggregate(sku string, marketplace enums.Marketplace, records []models.InventoryRecord) *models.InventoryAggregate {
	aggregate := &models.InventoryAggregate{
		SKU:                sku,
		Marketplace:        marketplace,
		LocationQuantities: dbtypes.QuantityMap{},
		UpdatedAt:          time.Now().UTC(),
	}

	for _, record := range records {
		if record.Deleted() {
			continue
		}
		if record.Quantity <= 0 {
			continue
		}
		aggregate.TotalQuantity += record.Quantity
		aggregate.LocationQuantities[record.Location] += record.Quantity
	}
	return aggregate
}
