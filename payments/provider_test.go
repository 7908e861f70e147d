package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPCheckoutProvider_CreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createSessionResponse{
			SessionID: "cs_123",
			URL:       "https://checkout.example/cs_123",
			ExpiresAt: time.Unix(1700000000, 0).UTC(),
		})
	}))
	defer srv.Close()

	p := NewHTTPCheckoutProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	session, err := p.CreateSession(context.Background(), CheckoutRequest{
		ClientReferenceID: "pi_abc",
		AmountMinorUnits:  1000,
		Currency:          "USD",
		ProductName:       "Travel Insurance",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.SessionID)
	assert.Equal(t, "https://checkout.example/cs_123", session.URL)
}

func TestHTTPCheckoutProvider_CreateSession_PropagatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewHTTPCheckoutProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	_, err := p.CreateSession(context.Background(), CheckoutRequest{ClientReferenceID: "pi_abc", AmountMinorUnits: 1000, Currency: "USD"})
	require.Error(t, err)
}

func TestHTTPIssuanceClient_Issue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/purchase", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(purchaseResponseBody{
			PolicyNumber:       "POL-1",
			ExternalPurchaseID: "ext-1",
		})
	}))
	defer srv.Close()

	c := NewHTTPIssuanceClient(ProviderConfig{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	policy, err := c.Issue(context.Background(), IssuanceRequest{
		PaymentIntentID: "pi_abc",
		SelectedOfferID: "offer_1",
		ProductCode:     "TRAVEL_BASIC",
	})
	require.NoError(t, err)
	assert.Equal(t, "POL-1", policy.PolicyNumber)
	assert.Equal(t, "ext-1", policy.ExternalPurchaseID)
}

func TestOrEmptyJSON(t *testing.T) {
	assert.Equal(t, "null", orEmptyJSON(""))
	assert.Equal(t, `{"a":1}`, orEmptyJSON(`{"a":1}`))
}
