// Package marketplace defines the boundary to the external listing platforms.
// Every call is fallible and rate limited; implementations map their platform
// errors onto the pkg/errors taxonomy so callers can classify retries.
package marketplace

import (
	"context"
	"time"

	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// ListingRef identifies a listing on one marketplace. Which fields are set
// depends on the platform: Square uses catalog object ids, eBay uses offer and
// listing ids.
type ListingRef struct {
	ProductRef string
	ListingRef string
	VariantRef string
}

// Empty reports whether the ref carries no usable identifier.
func (r ListingRef) Empty() bool {
	return r.ProductRef == "" && r.ListingRef == "" && r.VariantRef == ""
}

// PushResult reports the outcome of an inventory push. RemoteID is set when
// the platform minted or re-keyed an identifier during the call.
type PushResult struct {
	RemoteID string
}

// ListingState is the platform's authoritative view of one listing.
type ListingState struct {
	Quantity int
	Active   bool
	SoldAt   *time.Time
}

// Client is the per-marketplace boundary. Mutations must be idempotent:
// quantities are absolute and removal of an already-missing listing succeeds.
type Client interface {
	Marketplace() enums.Marketplace

	PushInventoryUpdate(ctx context.Context, ref ListingRef, quantity int) (*PushResult, error)
	ZeroInventory(ctx context.Context, ref ListingRef) error
	RemoveListing(ctx context.Context, ref ListingRef) error
	FetchListingState(ctx context.Context, ref ListingRef) (*ListingState, error)
}

// Registry resolves the client for a marketplace.
type Registry map[enums.Marketplace]Client

// For returns the client registered for the marketplace, or nil.
func (r Registry) For(m enums.Marketplace) Client {
	if r == nil {
		return nil
	}
	return r[m]
}
