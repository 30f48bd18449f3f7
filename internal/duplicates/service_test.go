package duplicates

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
)

type stubRecords struct {
	byCert  map[string][]models.InventoryRecord
	deleted map[uuid.UUID]string
}

func (s *stubRecords) DuplicateCertNumbers(ctx context.Context, mk enums.Marketplace) ([]string, error) {
	var certs []string
	for cert, rows := range s.byCert {
		if len(rows) > 1 {
			certs = append(certs, cert)
		}
	}
	return certs, nil
}

func (s *stubRecords) ListByCertNumber(ctx context.Context, certNumber string, mk enums.Marketplace) ([]models.InventoryRecord, error) {
	return s.byCert[certNumber], nil
}

func (s *stubRecords) SoftDelete(ctx context.Context, id uuid.UUID, reason string) error {
	if s.deleted == nil {
		s.deleted = map[uuid.UUID]string{}
	}
	s.deleted[id] = reason
	return nil
}

type stubRecalculator struct {
	skus []string
}

func (s *stubRecalculator) RecalculateSKU(ctx context.Context, sku string, mk enums.Marketplace) (*models.InventoryAggregate, error) {
	if s != nil {
		s.skus = append(s.skus, sku)
	}
	return &models.InventoryAggregate{SKU: sku, Marketplace: mk}, nil
}

type removeClient struct {
	mk        enums.Marketplace
	removed   []string
	removeErr error
}

func (c *removeClient) Marketplace() enums.Marketplace { return c.mk }

func (c *removeClient) PushInventoryUpdate(ctx context.Context, ref marketplace.ListingRef, quantity int) (*marketplace.PushResult, error) {
	return &marketplace.PushResult{}, nil
}

func (c *removeClient) ZeroInventory(ctx context.Context, ref marketplace.ListingRef) error {
	return nil
}

func (c *removeClient) RemoveListing(ctx context.Context, ref marketplace.ListingRef) error {
	if c.removeErr != nil {
		return c.removeErr
	}
	c.removed = append(c.removed, ref.ProductRef)
	return nil
}

func (c *removeClient) FetchListingState(ctx context.Context, ref marketplace.ListingRef) (*marketplace.ListingState, error) {
	return &marketplace.ListingState{}, nil
}

func certRecord(cert string, age time.Duration, ref string) models.InventoryRecord {
	record := models.InventoryRecord{
		ID:          uuid.New(),
		CertNumber:  &cert,
		SKU:         "sku-" + cert,
		Marketplace: enums.MarketplaceEbay,
		CreatedAt:   time.Now().Add(-age),
	}
	if ref != "" {
		record.ProductRef = &ref
	}
	return record
}

func newTestService(t *testing.T, records *stubRecords, aggregates *stubRecalculator, client *removeClient) Service {
	t.Helper()
	registry := marketplace.Registry{}
	if client != nil {
		registry[client.mk] = client
	}
	svc, err := NewService(records, aggregates, registry, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestScanReturnsOnlyRealGroups(t *testing.T) {
	records := &stubRecords{byCert: map[string][]models.InventoryRecord{
		"PSA-1": {certRecord("PSA-1", 2*time.Hour, ""), certRecord("PSA-1", time.Hour, "")},
	}}
	svc := newTestService(t, records, nil, &removeClient{mk: enums.MarketplaceEbay})

	groups, err := svc.Scan(context.Background(), enums.MarketplaceEbay)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(groups) != 1 || groups[0].CertNumber != "PSA-1" || len(groups[0].Records) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestResolveGroupKeepsEarliest(t *testing.T) {
	oldest := certRecord("PSA-1", 3*time.Hour, "")
	middle := certRecord("PSA-1", 2*time.Hour, "")
	newest := certRecord("PSA-1", time.Hour, "")
	records := &stubRecords{byCert: map[string][]models.InventoryRecord{
		"PSA-1": {oldest, middle, newest},
	}}
	svc := newTestService(t, records, nil, &removeClient{mk: enums.MarketplaceEbay})

	outcome, err := svc.ResolveGroup(context.Background(), "PSA-1", enums.MarketplaceEbay)
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if outcome.KeptID != oldest.ID {
		t.Fatalf("expected earliest record kept, got %s", outcome.KeptID)
	}
	if len(outcome.RemovedIDs) != 2 {
		t.Fatalf("expected 2 removals, got %d", len(outcome.RemovedIDs))
	}
	want := "duplicate of " + oldest.ID.String()
	for _, id := range outcome.RemovedIDs {
		if records.deleted[id] != want {
			t.Fatalf("expected reason %q, got %q", want, records.deleted[id])
		}
	}
	if _, gone := records.deleted[oldest.ID]; gone {
		t.Fatal("keeper must not be deleted")
	}
}

func TestResolveGroupRemovesLinkedListings(t *testing.T) {
	keeper := certRecord("PSA-1", 2*time.Hour, "offer-keep")
	extra := certRecord("PSA-1", time.Hour, "offer-extra")
	records := &stubRecords{byCert: map[string][]models.InventoryRecord{
		"PSA-1": {keeper, extra},
	}}
	aggregates := &stubRecalculator{}
	client := &removeClient{mk: enums.MarketplaceEbay}
	svc := newTestService(t, records, aggregates, client)

	outcome, err := svc.ResolveGroup(context.Background(), "PSA-1", enums.MarketplaceEbay)
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if outcome.RemoteFailures != 0 {
		t.Fatalf("unexpected remote failures: %d", outcome.RemoteFailures)
	}
	if len(client.removed) != 1 || client.removed[0] != "offer-extra" {
		t.Fatalf("expected only the removed record's listing withdrawn, got %v", client.removed)
	}
	if len(aggregates.skus) != 1 {
		t.Fatalf("expected aggregate recalculated, got %v", aggregates.skus)
	}
}

func TestResolveGroupRemoteFailureDoesNotBlockDelete(t *testing.T) {
	keeper := certRecord("PSA-1", 2*time.Hour, "")
	extra := certRecord("PSA-1", time.Hour, "offer-extra")
	records := &stubRecords{byCert: map[string][]models.InventoryRecord{
		"PSA-1": {keeper, extra},
	}}
	client := &removeClient{
		mk:        enums.MarketplaceEbay,
		removeErr: pkgerrors.New(pkgerrors.CodeDependency, "marketplace down"),
	}
	svc := newTestService(t, records, nil, client)

	outcome, err := svc.ResolveGroup(context.Background(), "PSA-1", enums.MarketplaceEbay)
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if outcome.RemoteFailures != 1 {
		t.Fatalf("expected one remote failure, got %d", outcome.RemoteFailures)
	}
	if _, deleted := records.deleted[extra.ID]; !deleted {
		t.Fatal("local delete must proceed despite remote failure")
	}
}

func TestResolveGroupWithoutDuplicatesIsNotFound(t *testing.T) {
	records := &stubRecords{byCert: map[string][]models.InventoryRecord{
		"PSA-1": {certRecord("PSA-1", time.Hour, "")},
	}}
	svc := newTestService(t, records, nil, &removeClient{mk: enums.MarketplaceEbay})

	_, err := svc.ResolveGroup(context.Background(), "PSA-1", enums.MarketplaceEbay)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveAllIsolatesGroupFailures(t *testing.T) {
	records := &stubRecords{byCert: map[string][]models.InventoryRecord{
		"PSA-1": {certRecord("PSA-1", 2*time.Hour, ""), certRecord("PSA-1", time.Hour, "")},
		"PSA-2": {certRecord("PSA-2", 2*time.Hour, ""), certRecord("PSA-2", time.Hour, "")},
	}}
	svc := newTestService(t, records, nil, &removeClient{mk: enums.MarketplaceEbay})

	result, err := svc.ResolveAll(context.Background(), enums.MarketplaceEbay)
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if result.Groups != 2 || result.Resolved != 2 || result.Removed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
