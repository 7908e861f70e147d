// Package httpapi defines the JSON request/response envelope and
// per-endpoint shapes for the HTTP surface.
package httpapi

import "time"

// Response is the canonical response envelope for every endpoint.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the error shape nested in a failed Response.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Action     string `json:"action,omitempty"`
	HTTPStatus int    `json:"-"`
}

// StructuredPolicySearchRequest is the body of
// POST /api/v1/structured-policy-search.
type StructuredPolicySearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// StructuredPolicySearchResponse is its successful result shape.
type StructuredPolicySearchResponse struct {
	Success       bool     `json:"success"`
	Data          []any    `json:"data"`
	TablesSearched []string `json:"tables_searched"`
	TotalResults  int      `json:"total_results"`
	Query         string   `json:"query"`
}

// ConceptSearchRequest is the body of POST /api/v1/concept-search.
type ConceptSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// ConceptSearchResponse is its successful result shape.
type ConceptSearchResponse struct {
	Results []string `json:"results"`
	Count   int      `json:"count"`
	Query   string   `json:"query"`
}

// MemoryAddRequest is the body of POST /api/v1/memory/add.
type MemoryAddRequest struct {
	UserID   string         `json:"user_id"`
	Messages []MemoryMessage `json:"messages"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MemoryMessage is a single turn passed to the memory service.
type MemoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MemorySearchRequest is the body of POST /api/v1/memory/search.
type MemorySearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

// PurchaseInitiateRequest is the body of POST /api/purchase/initiate.
type PurchaseInitiateRequest struct {
	UserID           string `json:"user_id"`
	QuoteID          string `json:"quote_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency,omitempty"`
	ProductName      string `json:"product_name"`
	Email            string `json:"email,omitempty"`

	// SelectedOfferID, when set, records a Selection Record for the quote
	// alongside the payment. ProductCode/InsuredParties/MainContact/
	// PricingResponse are passed through verbatim as opaque JSON.
	SelectedOfferID string `json:"selected_offer_id,omitempty"`
	ProductCode     string `json:"product_code,omitempty"`
	InsuredParties  string `json:"insured_parties,omitempty"`
	MainContact     string `json:"main_contact,omitempty"`
	PricingResponse string `json:"pricing_response,omitempty"`
}

// PurchaseInitiateResponse is its successful result shape.
type PurchaseInitiateResponse struct {
	PaymentIntentID   string    `json:"payment_intent_id"`
	CheckoutURL       string    `json:"checkout_url"`
	ExternalSessionID string    `json:"external_session_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// PurchaseCancelRequest is the body of POST /api/purchase/cancel/{pi}.
type PurchaseCancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ClaimsQARequest is the body of the claims intelligence Q&A endpoint.
type ClaimsQARequest struct {
	Query      string `json:"query"`
	NumInsights int   `json:"sql_num"`
}

// ClaimsQAResponse is its successful result shape.
type ClaimsQAResponse struct {
	Status int    `json:"status"`
	Answer string `json:"answer"`
}
