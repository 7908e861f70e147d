package payments

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
	"github.com/travelguard/insurance-core/llm/circuitbreaker"
)

// HTTPCheckoutProvider is a typed HTTP client for an external hosted
// checkout API (Stripe Checkout-style), satisfying CheckoutProvider. A
// circuit breaker guards both calls so a sustained provider outage fails
// fast instead of blocking every purchase attempt behind a full timeout.
type HTTPCheckoutProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

// ProviderConfig configures an HTTP-backed checkout or issuance client.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPCheckoutProvider builds an HTTPCheckoutProvider.
func NewHTTPCheckoutProvider(cfg ProviderConfig, logger *zap.Logger) *HTTPCheckoutProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCheckoutProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		breaker: circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Threshold:    5,
			Timeout:      timeout,
			ResetTimeout: 30 * time.Second,
		}, logger),
		logger: logger.With(zap.String("component", "payments.checkout_provider")),
	}
}

type createSessionBody struct {
	ClientReferenceID string `json:"client_reference_id"`
	AmountMinorUnits   int64  `json:"amount_minor_units"`
	Currency          string `json:"currency"`
	ProductName       string `json:"product_name"`
	CustomerEmail     string `json:"customer_email,omitempty"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateSession implements CheckoutProvider.
func (p *HTTPCheckoutProvider) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body, err := json.Marshal(createSessionBody{
		ClientReferenceID: req.ClientReferenceID,
		AmountMinorUnits:  req.AmountMinorUnits,
		Currency:          req.Currency,
		ProductName:       req.ProductName,
		CustomerEmail:     req.CustomerEmail,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "marshal checkout session request")
	}

	result, err := p.breaker.CallWithResult(ctx, func() (any, error) {
		return p.doJSON(ctx, http.MethodPost, "/v1/checkout/sessions", body)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "create checkout session")
	}

	var resp createSessionResponse
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "parse checkout session response")
	}

	return &CheckoutSession{SessionID: resp.SessionID, URL: resp.URL, ExpiresAt: resp.ExpiresAt}, nil
}

// CancelIntent implements CheckoutProvider.
func (p *HTTPCheckoutProvider) CancelIntent(ctx context.Context, externalPaymentIntent string) error {
	path := fmt.Sprintf("/v1/payment_intents/%s/cancel", externalPaymentIntent)
	_, err := p.breaker.CallWithResult(ctx, func() (any, error) {
		return p.doJSON(ctx, http.MethodPost, path, nil)
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, err, "cancel external payment intent")
	}
	return nil
}

func (p *HTTPCheckoutProvider) doJSON(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("checkout provider returned status %d: %s", resp.StatusCode, truncate(respBody, 500))
	}
	return respBody, nil
}

// HTTPIssuanceClient is a typed HTTP client for the external
// insurance-issuance API's /purchase endpoint, satisfying IssuanceClient.
type HTTPIssuanceClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewHTTPIssuanceClient builds an HTTPIssuanceClient.
func NewHTTPIssuanceClient(cfg ProviderConfig, logger *zap.Logger) *HTTPIssuanceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIssuanceClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		breaker: circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Threshold:    5,
			Timeout:      timeout,
			ResetTimeout: 30 * time.Second,
		}, logger),
		logger: logger.With(zap.String("component", "payments.issuance_client")),
	}
}

type purchaseRequestBody struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	SelectedOfferID string          `json:"selected_offer_id"`
	ProductCode     string          `json:"product_code"`
	InsuredParties  json.RawMessage `json:"insured_parties"`
	MainContact     json.RawMessage `json:"main_contact"`
	PricingResponse json.RawMessage `json:"pricing_response"`
}

type purchaseResponseBody struct {
	PolicyNumber       string `json:"policy_number"`
	ExternalPurchaseID string `json:"external_purchase_id"`
}

// Issue implements IssuanceClient.
func (c *HTTPIssuanceClient) Issue(ctx context.Context, req IssuanceRequest) (*IssuancePolicy, error) {
	body, err := json.Marshal(purchaseRequestBody{
		PaymentIntentID: req.PaymentIntentID,
		SelectedOfferID: req.SelectedOfferID,
		ProductCode:     req.ProductCode,
		InsuredParties:  json.RawMessage(orEmptyJSON(req.InsuredParties)),
		MainContact:     json.RawMessage(orEmptyJSON(req.MainContact)),
		PricingResponse: json.RawMessage(orEmptyJSON(req.PricingResponse)),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "marshal issuance request")
	}

	result, err := c.breaker.CallWithResult(ctx, func() (any, error) {
		return c.doJSON(ctx, body)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "call issuance API")
	}

	var resp purchaseResponseBody
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "parse issuance response")
	}

	return &IssuancePolicy{PolicyNumber: resp.PolicyNumber, ExternalPurchaseID: resp.ExternalPurchaseID}, nil
}

func (c *HTTPIssuanceClient) doJSON(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/purchase", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("issuance API returned status %d: %s", resp.StatusCode, truncate(respBody, 500))
	}
	return respBody, nil
}

func orEmptyJSON(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
