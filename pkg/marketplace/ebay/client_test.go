package ebay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slabworks/slabsync-backend/pkg/config"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
	"github.com/slabworks/slabsync-backend/pkg/marketplace"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.EbayConfig{
		AccessToken: "test-token",
		BaseURL:     server.URL,
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client, server
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(config.EbayConfig{}); err == nil {
		t.Fatal("expected error for missing access token")
	}
}

func TestPushInventoryUpdateSendsAbsoluteQuantity(t *testing.T) {
	var captured bulkQuantityRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bulk_update_price_quantity" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(bulkQuantityResponse{})
	}))

	result, err := client.PushInventoryUpdate(context.Background(), marketplace.ListingRef{ListingRef: "offer-1"}, 4)
	if err != nil {
		t.Fatalf("PushInventoryUpdate returned error: %v", err)
	}
	if result.RemoteID != "offer-1" {
		t.Fatalf("expected remote id offer-1, got %s", result.RemoteID)
	}
	if len(captured.Requests) != 1 || len(captured.Requests[0].Offers) != 1 {
		t.Fatalf("unexpected request shape: %+v", captured)
	}
	offer := captured.Requests[0].Offers[0]
	if offer.OfferID != "offer-1" || offer.AvailableQuantity != 4 {
		t.Fatalf("unexpected offer payload: %+v", offer)
	}
}

func TestPushInventoryUpdateClampsNegativeQuantity(t *testing.T) {
	var captured bulkQuantityRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(bulkQuantityResponse{})
	}))

	if _, err := client.PushInventoryUpdate(context.Background(), marketplace.ListingRef{ListingRef: "offer-1"}, -3); err != nil {
		t.Fatalf("PushInventoryUpdate returned error: %v", err)
	}
	if got := captured.Requests[0].Offers[0].AvailableQuantity; got != 0 {
		t.Fatalf("expected quantity clamped to 0, got %d", got)
	}
}

func TestPushInventoryUpdateSurfacesPerOfferFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := bulkQuantityResponse{}
		resp.Responses = append(resp.Responses, struct {
			OfferID    string `json:"offerId"`
			StatusCode int    `json:"statusCode"`
		}{OfferID: "offer-1", StatusCode: http.StatusNotFound})
		_ = json.NewEncoder(w).Encode(resp)
	}))

	_, err := client.PushInventoryUpdate(context.Background(), marketplace.ListingRef{ListingRef: "offer-1"}, 2)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestRemoveListingTreatsMissingOfferAsRemoved(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.RemoveListing(context.Background(), marketplace.ListingRef{ListingRef: "gone"}); err != nil {
		t.Fatalf("expected missing offer to count as removed, got %v", err)
	}
}

func TestRemoveListingPropagatesOtherErrors(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := client.RemoveListing(context.Background(), marketplace.ListingRef{ListingRef: "offer-1"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeRateLimit {
		t.Fatalf("expected CodeRateLimit, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("expected rate limit error to be retryable")
	}
}

func TestFetchListingState(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/offer/offer-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(offerResponse{
			OfferID:           "offer-9",
			AvailableQuantity: 7,
			Status:            offerStatusPublished,
		})
	}))

	state, err := client.FetchListingState(context.Background(), marketplace.ListingRef{ListingRef: "offer-9"})
	if err != nil {
		t.Fatalf("FetchListingState returned error: %v", err)
	}
	if state.Quantity != 7 || !state.Active {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestFetchListingStateInactiveWhenUnpublished(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(offerResponse{OfferID: "offer-2", AvailableQuantity: 1, Status: "ENDED"})
	}))

	state, err := client.FetchListingState(context.Background(), marketplace.ListingRef{ListingRef: "offer-2"})
	if err != nil {
		t.Fatalf("FetchListingState returned error: %v", err)
	}
	if state.Active {
		t.Fatal("expected unpublished offer to be inactive")
	}
}

func TestOfferIDRequired(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))

	_, err := client.PushInventoryUpdate(context.Background(), marketplace.ListingRef{}, 1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected CodeValidation, got %v", err)
	}
}
