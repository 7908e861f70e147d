package quotation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetQuotation_RoundTripRequiresReturnDate(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"}, zap.NewNop())
	_, err := c.GetQuotation(context.Background(), PricingRequest{TripType: TripTypeRound, DepartureDate: "2026-08-01"})
	require.Error(t, err)
}

func TestGetQuotation_SuccessfulRoundTrip(t *testing.T) {
	var captured pricingWireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/travel/front/pricing", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)

		json.NewEncoder(w).Encode(PricingResponse{
			QuoteID:      "Q1",
			LanguageCode: "en",
			OfferCategories: []OfferCategory{
				{CategoryName: "Travel Insurance", Offers: []Offer{
					{OfferID: "O1", ProductCode: "travel-basic", UnitPrice: 42.5, Currency: "SGD"},
				}},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	resp, err := c.GetQuotation(context.Background(), PricingRequest{
		TripType: TripTypeRound, DepartureDate: "2026-08-01", ReturnDate: "2026-08-10",
		DepartureCountry: "SG", ArrivalCountry: "JP",
		AdultsCount: 2, ChildrenCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Q1", resp.QuoteID)
	require.Len(t, resp.OfferCategories, 1)
	assert.Len(t, resp.OfferCategories[0].Offers, 1)

	assert.Equal(t, DefaultMarket, captured.Market)
	assert.Equal(t, DefaultLanguageCode, captured.LanguageCode)
	assert.Equal(t, DefaultChannel, captured.Channel)
	assert.Equal(t, DefaultDeviceType, captured.DeviceType)
	assert.Equal(t, TripTypeRound, captured.Context.TripType)
	assert.Equal(t, "2026-08-10", captured.Context.ReturnDate)
	assert.Equal(t, "SG", captured.Context.DepartureCountry)
	assert.Equal(t, "JP", captured.Context.ArrivalCountry)
	assert.Equal(t, 2, captured.Context.AdultsCount)
	assert.Equal(t, 1, captured.Context.ChildrenCount)
}

func TestGetQuotation_SingleTripOmitsReturnDate(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(PricingResponse{QuoteID: "Q2"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.GetQuotation(context.Background(), PricingRequest{
		TripType: TripTypeSingle, DepartureDate: "2026-08-01",
		DepartureCountry: "SG", ArrivalCountry: "TH", AdultsCount: 1,
	})
	require.NoError(t, err)

	ctx, ok := raw["context"].(map[string]any)
	require.True(t, ok)
	_, hasReturnDate := ctx["returnDate"]
	assert.False(t, hasReturnDate)
}

func TestGetQuotation_AppliesCallerOverridesOverDefaults(t *testing.T) {
	var captured pricingWireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(PricingResponse{QuoteID: "Q3"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.GetQuotation(context.Background(), PricingRequest{
		TripType: TripTypeSingle, DepartureDate: "2026-08-01",
		DepartureCountry: "SG", ArrivalCountry: "TH", AdultsCount: 1,
		Market: "MY", LanguageCode: "ms", Channel: "mobile-app", DeviceType: "MOBILE",
	})
	require.NoError(t, err)

	assert.Equal(t, "MY", captured.Market)
	assert.Equal(t, "ms", captured.LanguageCode)
	assert.Equal(t, "mobile-app", captured.Channel)
	assert.Equal(t, "MOBILE", captured.DeviceType)
}

func TestGetQuotation_TranslatesHTTPErrorIntoAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid destination"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.GetQuotation(context.Background(), PricingRequest{
		TripType: TripTypeSingle, DepartureDate: "2026-08-01",
		DepartureCountry: "SG", ArrivalCountry: "TH", AdultsCount: 1,
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.BodyFragment, "invalid destination")
}
