// Package square adapts the Square Catalog/Inventory APIs to the marketplace
// boundary. Square is the in-store + online channel; listings are catalog
// objects and quantities are physical counts at the configured location.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqcatalog "github.com/square/square-go-sdk/catalog"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/logger"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client exposes the Square inventory primitives with centralized auth,
// logging, idempotency, and error mapping.
type Client struct {
	sdk         *sqclient.Client
	accessToken string
	environment string
	locationID  string
	baseURL     string
	logger      *logger.Logger
}

var _ marketplace.Client = (*Client)(nil)

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	baseURL := baseURLs[env]
	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:         sdk,
		accessToken: accessToken,
		environment: env,
		locationID:  locationID,
		baseURL:     baseURL,
		logger:      logg,
	}

	logg.Info(ctx, "square client initialized")
	return c, nil
}

// Marketplace identifies the channel this client serves.
func (c *Client) Marketplace() enums.Marketplace {
	return enums.MarketplaceSquare
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "ss"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// PushInventoryUpdate sets the absolute in-stock count for the listing's
// catalog object. Absolute physical counts keep the call safe to repeat.
func (c *Client) PushInventoryUpdate(ctx context.Context, ref marketplace.ListingRef, quantity int) (*marketplace.PushResult, error) {
	objectID, err := c.catalogObjectID(ref)
	if err != nil {
		return nil, err
	}
	if quantity < 0 {
		quantity = 0
	}

	c.log(ctx, "request", "push_inventory", map[string]any{
		"catalog_object_id": objectID,
		"quantity":          quantity,
	})

	req := &sq.BatchChangeInventoryRequest{
		IdempotencyKey: c.NewIdempotencyKey("inventory.push"),
		Changes: []*sq.InventoryChange{
			{
				Type: sq.InventoryChangeTypePhysicalCount.Ptr(),
				PhysicalCount: &sq.InventoryPhysicalCount{
					CatalogObjectID: sq.String(objectID),
					LocationID:      sq.String(c.locationID),
					State:           sq.InventoryStateInStock.Ptr(),
					Quantity:        sq.String(strconv.Itoa(quantity)),
					OccurredAt:      sq.String(time.Now().UTC().Format(time.RFC3339)),
				},
			},
		},
	}

	if _, err := c.sdk.Inventory.BatchCreateChanges(ctx, req); err != nil {
		c.log(ctx, "error", "push_inventory", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "push inventory")
	}

	c.log(ctx, "response", "push_inventory", map[string]any{"catalog_object_id": objectID})
	return &marketplace.PushResult{RemoteID: objectID}, nil
}

// ZeroInventory sets the listing's in-stock count to zero.
func (c *Client) ZeroInventory(ctx context.Context, ref marketplace.ListingRef) error {
	_, err := c.PushInventoryUpdate(ctx, ref, 0)
	return err
}

// RemoveListing deletes the catalog object. A listing that is already gone
// counts as removed.
func (c *Client) RemoveListing(ctx context.Context, ref marketplace.ListingRef) error {
	objectID, err := c.catalogObjectID(ref)
	if err != nil {
		return err
	}

	c.log(ctx, "request", "remove_listing", map[string]any{"catalog_object_id": objectID})

	if _, err := c.sdk.Catalog.Object.Delete(ctx, &sqcatalog.DeleteObjectRequest{ObjectID: objectID}); err != nil {
		mapped := c.mapSquareError(err, "remove listing")
		if typed := pkgerrors.As(mapped); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			c.log(ctx, "response", "remove_listing", map[string]any{"catalog_object_id": objectID, "already_removed": true})
			return nil
		}
		c.log(ctx, "error", "remove_listing", map[string]any{"error": err.Error()})
		return mapped
	}

	c.log(ctx, "response", "remove_listing", map[string]any{"catalog_object_id": objectID})
	return nil
}

// catalogObjectIsDeleted reads the is_deleted flag from whichever variant of
// the CatalogObject union is populated. The SDK getters are nil-receiver safe,
// so unset variants simply contribute nothing.
func catalogObjectIsDeleted(obj *sq.CatalogObject) *bool {
	if obj == nil {
		return nil
	}
	for _, v := range []interface{ GetIsDeleted() *bool }{
		obj.Item, obj.Image, obj.Category, obj.ItemVariation, obj.Tax,
		obj.Discount, obj.ModifierList, obj.Modifier, obj.PricingRule,
		obj.ProductSet, obj.TimePeriod, obj.MeasurementUnit,
		obj.SubscriptionPlanVariation, obj.ItemOption, obj.ItemOptionVal,
		obj.CustomAttributeDefinition, obj.QuickAmountsSettings,
		obj.SubscriptionPlan, obj.AvailabilityPeriod,
	} {
		if deleted := v.GetIsDeleted(); deleted != nil {
			return deleted
		}
	}
	return nil
}

// FetchListingState returns the authoritative quantity and liveness for the
// listing. A missing catalog object maps to CodeNotFound so reconciliation can
// clear stale references.
func (c *Client) FetchListingState(ctx context.Context, ref marketplace.ListingRef) (*marketplace.ListingState, error) {
	objectID, err := c.catalogObjectID(ref)
	if err != nil {
		return nil, err
	}

	c.log(ctx, "request", "fetch_listing_state", map[string]any{"catalog_object_id": objectID})

	objResp, err := c.sdk.Catalog.Object.Get(ctx, &sqcatalog.GetObjectRequest{ObjectID: objectID})
	if err != nil {
		mapped := c.mapSquareError(err, "fetch listing state")
		c.log(ctx, "error", "fetch_listing_state", map[string]any{"error": err.Error()})
		return nil, mapped
	}

	active := true
	if obj := objResp.GetObject(); obj != nil {
		if deleted := catalogObjectIsDeleted(obj); deleted != nil && *deleted {
			active = false
		}
	}

	countResp, err := c.sdk.Inventory.BatchGetCounts(ctx, &sq.BatchGetInventoryCountsRequest{
		CatalogObjectIDs: []string{objectID},
		LocationIDs:      []string{c.locationID},
	})
	if err != nil {
		mapped := c.mapSquareError(err, "fetch inventory counts")
		c.log(ctx, "error", "fetch_listing_state", map[string]any{"error": err.Error()})
		return nil, mapped
	}

	quantity := 0
	for _, count := range countResp.Counts {
		if count == nil {
			continue
		}
		if state := count.GetState(); state != nil && *state != sq.InventoryStateInStock {
			continue
		}
		if raw := count.GetQuantity(); raw != nil {
			if parsed, parseErr := strconv.Atoi(strings.TrimSpace(*raw)); parseErr == nil {
				quantity += parsed
			}
		}
	}

	c.log(ctx, "response", "fetch_listing_state", map[string]any{
		"catalog_object_id": objectID,
		"quantity":          quantity,
		"active":            active,
	})
	return &marketplace.ListingState{Quantity: quantity, Active: active}, nil
}

func (c *Client) catalogObjectID(ref marketplace.ListingRef) (string, error) {
	if id := strings.TrimSpace(ref.VariantRef); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(ref.ProductRef); id != "" {
		return id, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "square listing ref requires a catalog object id")
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.StatusCode)
		for _, sqErr := range c.extractSquareErrors(apiErr) {
			if sqErr == nil {
				continue
			}
			if sqErr.Category == sq.ErrorCategoryAuthenticationError {
				code = pkgerrors.CodeUnauthorized
				break
			}
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
}

func (c *Client) extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(env string) (string, error) {
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
