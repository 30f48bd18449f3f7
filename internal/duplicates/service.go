package duplicates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
)

type recordStore interface {
	DuplicateCertNumbers(ctx context.Context, mk enums.Marketplace) ([]string, error)
	ListByCertNumber(ctx context.Context, certNumber string, mk enums.Marketplace) ([]models.InventoryRecord, error)
	SoftDelete(ctx context.Context, id uuid.UUID, reason string) error
}

type aggregateRecalculator interface {
	RecalculateSKU(ctx context.Context, sku string, mk enums.Marketplace) (*models.InventoryAggregate, error)
}

// Group is one cert number held by more than one live record, oldest first.
type Group struct {
	CertNumber string                   `json:"cert_number"`
	Records    []models.InventoryRecord `json:"records"`
}

// GroupOutcome reports one resolved group. Remote removal failures are counted
// but never undo the local soft delete.
type GroupOutcome struct {
	CertNumber     string      `json:"cert_number"`
	KeptID         uuid.UUID   `json:"kept_id"`
	RemovedIDs     []uuid.UUID `json:"removed_ids"`
	RemoteFailures int         `json:"remote_failures"`
}

// Result summarizes a ResolveAll pass.
type Result struct {
	Groups         int            `json:"groups"`
	Resolved       int            `json:"resolved"`
	Removed        int            `json:"removed"`
	RemoteFailures int            `json:"remote_failures"`
	Failed         int            `json:"failed"`
	Outcomes       []GroupOutcome `json:"outcomes"`
}

// Service finds and repairs records sharing a cert number on one marketplace.
// The earliest-created record wins; later intakes of the same physical item
// are soft deleted with a reason pointing at the keeper.
type Service interface {
	Scan(ctx context.Context, mk enums.Marketplace) ([]Group, error)
	ResolveGroup(ctx context.Context, certNumber string, mk enums.Marketplace) (*GroupOutcome, error)
	ResolveAll(ctx context.Context, mk enums.Marketplace) (*Result, error)
}

type service struct {
	logger     *logger.Logger
	records    recordStore
	aggregates aggregateRecalculator
	clients    marketplace.Registry
}

// NewService wires the duplicate resolver.
func NewService(records recordStore, aggregates aggregateRecalculator, clients marketplace.Registry, logg *logger.Logger) (Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		logger:     logg,
		records:    records,
		aggregates: aggregates,
		clients:    clients,
	}, nil
}

func (s *service) Scan(ctx context.Context, mk enums.Marketplace) ([]Group, error) {
	if !mk.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace is required")
	}

	certs, err := s.records.DuplicateCertNumbers(ctx, mk)
	if err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(certs))
	for _, cert := range certs {
		rows, err := s.records.ListByCertNumber(ctx, cert, mk)
		if err != nil {
			return nil, err
		}
		if len(rows) < 2 {
			continue
		}
		groups = append(groups, Group{CertNumber: cert, Records: rows})
	}
	return groups, nil
}

func (s *service) ResolveGroup(ctx context.Context, certNumber string, mk enums.Marketplace) (*GroupOutcome, error) {
	if certNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cert number is required")
	}
	if !mk.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "marketplace is required")
	}

	rows, err := s.records.ListByCertNumber(ctx, certNumber, mk)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no duplicate group for cert %s", certNumber))
	}

	keep := rows[0]
	outcome := &GroupOutcome{CertNumber: certNumber, KeptID: keep.ID}
	ctx = s.logger.WithFields(ctx, map[string]any{
		"cert_number": certNumber,
		"kept_id":     keep.ID.String(),
	})

	skus := map[string]bool{}
	for _, extra := range rows[1:] {
		reason := fmt.Sprintf("duplicate of %s", keep.ID)
		if err := s.records.SoftDelete(ctx, extra.ID, reason); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete duplicate")
		}
		outcome.RemovedIDs = append(outcome.RemovedIDs, extra.ID)
		skus[extra.SKU] = true

		if !extra.Linked() {
			continue
		}
		if err := s.removeListing(ctx, extra); err != nil {
			outcome.RemoteFailures++
			s.logger.Error(s.logger.WithField(ctx, "record_id", extra.ID.String()), "remove duplicate listing", err)
		}
	}

	if s.aggregates != nil {
		for sku := range skus {
			if _, err := s.aggregates.RecalculateSKU(ctx, sku, mk); err != nil {
				s.logger.Error(s.logger.WithSKU(ctx, sku), "recalculate aggregate after duplicate resolve", err)
			}
		}
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"removed":         len(outcome.RemovedIDs),
		"remote_failures": outcome.RemoteFailures,
	}), "duplicate group resolved")
	return outcome, nil
}

func (s *service) ResolveAll(ctx context.Context, mk enums.Marketplace) (*Result, error) {
	groups, err := s.Scan(ctx, mk)
	if err != nil {
		return nil, err
	}

	result := &Result{Groups: len(groups)}
	var errs []error
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := s.ResolveGroup(ctx, group.CertNumber, mk)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("cert %s: %w", group.CertNumber, err))
			continue
		}
		result.Resolved++
		result.Removed += len(outcome.RemovedIDs)
		result.RemoteFailures += outcome.RemoteFailures
		result.Outcomes = append(result.Outcomes, *outcome)
	}

	if len(errs) > 0 {
		s.logger.Error(ctx, "duplicate resolve pass finished with failures", multierr.Combine(errs...))
	}
	return result, nil
}

func (s *service) removeListing(ctx context.Context, record models.InventoryRecord) error {
	client := s.clients.For(record.Marketplace)
	if client == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no client configured for marketplace %s", record.Marketplace))
	}
	return client.RemoveListing(ctx, marketplace.ListingRef{
		ProductRef: deref(record.ProductRef),
		ListingRef: deref(record.ListingRef),
		VariantRef: deref(record.VariantRef),
	})
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
