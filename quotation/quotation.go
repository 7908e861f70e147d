// Package quotation is a pure typed client for an external
// round-trip/single-trip insurance pricing API. It carries no business
// logic beyond request-shape enforcement and error translation.
package quotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
)

// TripType selects single-trip vs round-trip pricing.
type TripType string

const (
	TripTypeSingle TripType = "ST"
	TripTypeRound  TripType = "RT"
)

// Default market/distribution context applied to a PricingRequest
// whenever the caller leaves the corresponding field blank.
const (
	DefaultMarket       = "SG"
	DefaultLanguageCode = "en"
	DefaultChannel      = "white-label"
	DefaultDeviceType   = "DESKTOP"
)

// PricingRequest is the caller-facing quotation request: trip dates,
// departure/arrival countries, the passenger breakdown, and the
// market/language/channel/device distribution context every quote is
// scoped to. Market, LanguageCode, Channel, and DeviceType each fall back
// to their Default* constant when left blank.
type PricingRequest struct {
	TripType         TripType
	DepartureDate    string
	ReturnDate       string // required when TripType == TripTypeRound
	DepartureCountry string
	ArrivalCountry   string
	AdultsCount      int
	ChildrenCount    int
	Market           string
	LanguageCode     string
	Channel          string
	DeviceType       string
}

// pricingContext is the nested trip-context object the pricing endpoint
// expects inside the request envelope.
type pricingContext struct {
	TripType         TripType `json:"tripType"`
	DepartureDate    string   `json:"departureDate"`
	ReturnDate       string   `json:"returnDate,omitempty"`
	DepartureCountry string   `json:"departureCountry"`
	ArrivalCountry   string   `json:"arrivalCountry"`
	AdultsCount      int      `json:"adultsCount"`
	ChildrenCount    int      `json:"childrenCount"`
}

// pricingWireRequest is the exact JSON body POSTed to the pricing
// endpoint: market/channel/device distribution scoping wrapping the trip
// context.
type pricingWireRequest struct {
	Market       string         `json:"market"`
	LanguageCode string         `json:"languageCode"`
	Channel      string         `json:"channel"`
	DeviceType   string         `json:"deviceType"`
	Context      pricingContext `json:"context"`
}

// PricingResponse is the documented response body for /pricing: a quote
// ID plus the categorized offers returned for it.
type PricingResponse struct {
	QuoteID         string          `json:"id"`
	LanguageCode    string          `json:"languageCode"`
	OfferCategories []OfferCategory `json:"offerCategories"`
}

// OfferCategory groups offers under a single product category.
type OfferCategory struct {
	CategoryName string  `json:"categoryName,omitempty"`
	Offers       []Offer `json:"offers"`
}

// Offer is a single priced insurance option within a category.
type Offer struct {
	OfferID     string  `json:"offerId"`
	ProductCode string  `json:"productCode"`
	ProductType string  `json:"productType,omitempty"`
	UnitPrice   float64 `json:"unitPrice"`
	Currency    string  `json:"currency"`
}

// APIError carries the upstream HTTP status and a truncated body
// fragment when the pricing API returns a non-2xx response.
type APIError struct {
	StatusCode   int
	BodyFragment string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quotation API error: status=%d body=%q", e.StatusCode, e.BodyFragment)
}

// Client is a typed wrapper around the external pricing endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// Config configures the quotation client's base URL and credentials.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New builds a quotation Client. Timeout defaults to the documented 30s.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger.With(zap.String("component", "quotation")),
	}
}

// GetQuotation prices req against the upstream pricing API. When
// req.TripType is round-trip, req.ReturnDate must be set.
func (c *Client) GetQuotation(ctx context.Context, req PricingRequest) (*PricingResponse, error) {
	if req.TripType == TripTypeRound && req.ReturnDate == "" {
		return nil, errs.New(errs.InvalidArgument, "return_date is required when trip_type=RT")
	}

	wire := pricingWireRequest{
		Market:       orDefault(req.Market, DefaultMarket),
		LanguageCode: orDefault(req.LanguageCode, DefaultLanguageCode),
		Channel:      orDefault(req.Channel, DefaultChannel),
		DeviceType:   orDefault(req.DeviceType, DefaultDeviceType),
		Context: pricingContext{
			TripType:         req.TripType,
			DepartureDate:    req.DepartureDate,
			DepartureCountry: req.DepartureCountry,
			ArrivalCountry:   req.ArrivalCountry,
			AdultsCount:      req.AdultsCount,
			ChildrenCount:    req.ChildrenCount,
		},
	}
	if req.TripType == TripTypeRound {
		wire.Context.ReturnDate = req.ReturnDate
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "marshal pricing request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/travel/front/pricing", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "build pricing request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "call pricing API")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fragment := string(respBody)
		if len(fragment) > 500 {
			fragment = fragment[:500]
		}
		c.logger.Warn("pricing API returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("departure_country", req.DepartureCountry),
			zap.String("arrival_country", req.ArrivalCountry),
		)
		return nil, errs.Wrap(errs.Runtime, &APIError{StatusCode: resp.StatusCode, BodyFragment: fragment}, "pricing API returned an error")
	}

	var pricing PricingResponse
	if err := json.Unmarshal(respBody, &pricing); err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "decode pricing response")
	}

	return &pricing, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
