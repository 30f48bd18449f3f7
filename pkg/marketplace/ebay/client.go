// Package ebay adapts the eBay Sell Inventory API to the marketplace
// boundary. Listings are offers; quantity updates go through the bulk
// price/quantity endpoint so the call stays idempotent.
package ebay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slabworks/slabsync-backend/pkg/config"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
)

const (
	defaultBaseURL              = "https://api.ebay.com/sell/inventory/v1"
	defaultTimeout              = 15 * time.Second
	responseBodyReadLimit int64 = 2048

	offerStatusPublished = "PUBLISHED"
)

var errAccessTokenRequired = errors.New("ebay access token is required")

// Client wraps the eBay Sell Inventory endpoints used for quantity sync.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

var _ marketplace.Client = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Sell Inventory base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the eBay client from configuration.
func NewClient(cfg config.EbayConfig, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		accessToken: token,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
	if trimmed := strings.TrimSpace(cfg.BaseURL); trimmed != "" {
		client.baseURL = trimmed
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// Marketplace identifies the channel this client serves.
func (c *Client) Marketplace() enums.Marketplace {
	return enums.MarketplaceEbay
}

type bulkQuantityRequest struct {
	Requests []bulkQuantityEntry `json:"requests"`
}

type bulkQuantityEntry struct {
	Offers []offerQuantity `json:"offers"`
}

type offerQuantity struct {
	OfferID           string `json:"offerId"`
	AvailableQuantity int    `json:"availableQuantity"`
}

type bulkQuantityResponse struct {
	Responses []struct {
		OfferID    string `json:"offerId"`
		StatusCode int    `json:"statusCode"`
	} `json:"responses"`
}

type offerResponse struct {
	OfferID           string `json:"offerId"`
	AvailableQuantity int    `json:"availableQuantity"`
	Status            string `json:"status"`
	Listing           struct {
		ListingID string `json:"listingId"`
	} `json:"listing"`
}

// PushInventoryUpdate sets the offer's absolute available quantity.
func (c *Client) PushInventoryUpdate(ctx context.Context, ref marketplace.ListingRef, quantity int) (*marketplace.PushResult, error) {
	offerID, err := c.offerID(ref)
	if err != nil {
		return nil, err
	}
	if quantity < 0 {
		quantity = 0
	}

	payload := bulkQuantityRequest{
		Requests: []bulkQuantityEntry{
			{Offers: []offerQuantity{{OfferID: offerID, AvailableQuantity: quantity}}},
		},
	}

	var apiResp bulkQuantityResponse
	if err := c.do(ctx, http.MethodPost, "bulk_update_price_quantity", payload, &apiResp); err != nil {
		return nil, err
	}

	for _, entry := range apiResp.Responses {
		if entry.OfferID != offerID {
			continue
		}
		if entry.StatusCode >= http.StatusBadRequest {
			return nil, pkgerrors.Wrap(
				domainCodeForStatus(entry.StatusCode),
				fmt.Errorf("offer %s returned status %d", offerID, entry.StatusCode),
				"ebay quantity update failed",
			)
		}
	}

	return &marketplace.PushResult{RemoteID: offerID}, nil
}

// ZeroInventory sets the offer's available quantity to zero.
func (c *Client) ZeroInventory(ctx context.Context, ref marketplace.ListingRef) error {
	_, err := c.PushInventoryUpdate(ctx, ref, 0)
	return err
}

// RemoveListing withdraws the offer. An offer that is already gone counts as
// removed.
func (c *Client) RemoveListing(ctx context.Context, ref marketplace.ListingRef) error {
	offerID, err := c.offerID(ref)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("offer/%s/withdraw", url.PathEscape(offerID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return nil
		}
		return err
	}
	return nil
}

// FetchListingState returns the offer's authoritative quantity and liveness.
// A missing offer maps to CodeNotFound so reconciliation can clear stale
// references.
func (c *Client) FetchListingState(ctx context.Context, ref marketplace.ListingRef) (*marketplace.ListingState, error) {
	offerID, err := c.offerID(ref)
	if err != nil {
		return nil, err
	}

	var apiResp offerResponse
	path := fmt.Sprintf("offer/%s", url.PathEscape(offerID))
	if err := c.do(ctx, http.MethodGet, path, nil, &apiResp); err != nil {
		return nil, err
	}

	return &marketplace.ListingState{
		Quantity: apiResp.AvailableQuantity,
		Active:   apiResp.Status == offerStatusPublished,
	}, nil
}

func (c *Client) offerID(ref marketplace.ListingRef) (string, error) {
	if id := strings.TrimSpace(ref.ListingRef); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(ref.ProductRef); id != "" {
		return id, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "ebay listing ref requires an offer id")
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "ebay client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal ebay request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build ebay request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute ebay request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(
			domainCodeForStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"ebay request failed",
		)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode ebay response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
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
