package drain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
	"github.com/slabworks/slabsync-backend/pkg/metrics"
)

type recordStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error)
	SetSyncStatus(ctx context.Context, id uuid.UUID, status enums.RecordSyncStatus) error
	ClearListingRefs(ctx context.Context, id uuid.UUID) error
}

type aggregateService interface {
	Preview(ctx context.Context, sku string, mk enums.Marketplace) (*models.InventoryAggregate, error)
	MarkSynced(ctx context.Context, sku string, mk enums.Marketplace, pushedQuantity int) error
	RecalculateSKU(ctx context.Context, sku string, mk enums.Marketplace) (*models.InventoryAggregate, error)
}

// Executor runs one claimed job against the record's marketplace.
type Executor struct {
	records    recordStore
	aggregates aggregateService
	clients    marketplace.Registry
	metrics    *metrics.SyncMetrics
	logger     *logger.Logger
}

// NewExecutor wires the job executor.
func NewExecutor(records recordStore, aggregates aggregateService, clients marketplace.Registry, m *metrics.SyncMetrics, logg *logger.Logger) *Executor {
	return &Executor{
		records:    records,
		aggregates: aggregates,
		clients:    clients,
		metrics:    m,
		logger:     logg,
	}
}

// Execute performs the job's marketplace mutation and updates the record's
// sync state. Errors carry the pkg/errors taxonomy so the queue can classify
// them for retry.
func (e *Executor) Execute(ctx context.Context, job *models.SyncJob) error {
	start := time.Now()
	err := e.execute(ctx, job)
	e.metrics.ObserveJobDuration(job.Marketplace.String(), job.Action.String(), time.Since(start))

	if err != nil {
		if statusErr := e.records.SetSyncStatus(ctx, job.RecordID, enums.RecordSyncError); statusErr != nil {
			e.logger.Error(e.logger.WithJobID(ctx, job.ID.String()), "update record sync status", statusErr)
		}
	}
	return err
}

func (e *Executor) execute(ctx context.Context, job *models.SyncJob) error {
	record, err := e.records.FindByID(ctx, job.RecordID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "record no longer exists")
	}

	client := e.clients.For(job.Marketplace)
	if client == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no client configured for marketplace %s", job.Marketplace))
	}

	ref := listingRef(record)
	if ref.Empty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "record has no marketplace linkage")
	}

	switch job.Action {
	case enums.SyncActionPush:
		return e.push(ctx, client, record, ref)
	case enums.SyncActionZero:
		return e.zero(ctx, client, record, ref)
	case enums.SyncActionRemove:
		return e.remove(ctx, client, record, ref)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown sync action %s", job.Action))
	}
}

// push sends the SKU's aggregate total so the marketplace always sees the
// cross-location quantity, not one record's share.
func (e *Executor) push(ctx context.Context, client marketplace.Client, record *models.InventoryRecord, ref marketplace.ListingRef) error {
	aggregate, err := e.aggregates.Preview(ctx, record.SKU, record.Marketplace)
	if err != nil {
		return err
	}
	quantity := aggregate.TotalQuantity

	if _, err := client.PushInventoryUpdate(ctx, ref, quantity); err != nil {
		return err
	}
	if err := e.aggregates.MarkSynced(ctx, record.SKU, record.Marketplace, quantity); err != nil {
		return err
	}
	return e.records.SetSyncStatus(ctx, record.ID, enums.RecordSyncSynced)
}

func (e *Executor) zero(ctx context.Context, client marketplace.Client, record *models.InventoryRecord, ref marketplace.ListingRef) error {
	if err := client.ZeroInventory(ctx, ref); err != nil {
		return err
	}
	if err := e.aggregates.MarkSynced(ctx, record.SKU, record.Marketplace, 0); err != nil {
		return err
	}
	return e.records.SetSyncStatus(ctx, record.ID, enums.RecordSyncSynced)
}

func (e *Executor) remove(ctx context.Context, client marketplace.Client, record *models.InventoryRecord, ref marketplace.ListingRef) error {
	if err := client.RemoveListing(ctx, ref); err != nil {
		return err
	}
	if err := e.records.ClearListingRefs(ctx, record.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear listing refs")
	}
	if _, err := e.aggregates.RecalculateSKU(ctx, record.SKU, record.Marketplace); err != nil {
		return err
	}
	return nil
}

func listingRef(record *models.InventoryRecord) marketplace.ListingRef {
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
