// Package payments implements the purchase/payment state machine (C9)
// and the webhook receiver (C10): a local payment-record store
// coordinated with an external checkout provider, an insurance-issuance
// API, and an asynchronous webhook stream.
package payments

import "time"

// Status is one of the payment record's lifecycle states. pending is
// the only non-terminal state; all others are sinks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s != StatusPending
}

// Record is the gorm model backing the payment_records table (see
// internal/migration/migrations/*/000001_payments_and_selections.up.sql).
type Record struct {
	PaymentIntentID       string `gorm:"column:payment_intent_id;primaryKey"`
	UserID                string `gorm:"column:user_id"`
	QuoteID               string `gorm:"column:quote_id"`
	AmountMinorUnits      int64  `gorm:"column:amount_minor_units"`
	Currency              string `gorm:"column:currency"`
	ProductName           string `gorm:"column:product_name"`
	PaymentStatus         Status `gorm:"column:payment_status"`
	ExternalSessionID     string `gorm:"column:external_session_id"`
	ExternalPaymentIntent string `gorm:"column:external_payment_intent"`
	FailureReason         string `gorm:"column:failure_reason"`
	CreatedAt             time.Time `gorm:"column:created_at"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`
	WebhookProcessedAt    *time.Time `gorm:"column:webhook_processed_at"`
}

// TableName pins the gorm table name.
func (Record) TableName() string { return "payment_records" }

// Selection is the gorm model backing the selection_records table. It
// links a quote_id to a chosen offer and, once initiated, to a
// payment_intent_id; it holds the raw pricing response needed to
// reconstruct the issuance call.
type Selection struct {
	SelectionID      string `gorm:"column:selection_id;primaryKey"`
	QuoteID          string `gorm:"column:quote_id"`
	PaymentIntentID  string `gorm:"column:payment_intent_id"`
	SelectedOfferID  string `gorm:"column:selected_offer_id"`
	ProductCode      string `gorm:"column:product_code"`
	InsuredParties   string `gorm:"column:insured_parties"` // JSON array
	MainContact      string `gorm:"column:main_contact"`    // JSON object
	PricingResponse  string `gorm:"column:pricing_response"` // JSON object
	SchemaVersion    int    `gorm:"column:schema_version"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName pins the gorm table name.
func (Selection) TableName() string { return "selection_records" }

// Policy is the gorm model backing the policies table: the locally
// generated record of a completed purchase's issuance attempt.
type Policy struct {
	PolicyID           string `gorm:"column:policy_id;primaryKey"`
	PaymentIntentID    string `gorm:"column:payment_intent_id"`
	PolicyNumber       string `gorm:"column:policy_number"`
	ExternalPurchaseID string `gorm:"column:external_purchase_id"`
	IssuanceError      string `gorm:"column:issuance_error"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

// TableName pins the gorm table name.
func (Policy) TableName() string { return "policies" }

// currentSchemaVersion is stamped on every newly written Selection. An
// explicit version lets future issuance code detect and migrate a
// pricing_response payload shape it no longer understands instead of
// silently degrading.
const currentSchemaVersion = 1
