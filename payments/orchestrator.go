package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/errs"
)

// CheckoutSession is what the external checkout provider hands back for a
// newly created session.
type CheckoutSession struct {
	SessionID string
	URL       string
	ExpiresAt time.Time
}

// CheckoutRequest is what the Orchestrator asks the checkout provider to
// create a session for. ClientReferenceID is always set to the local
// payment_intent_id so the webhook stream can correlate back to it.
type CheckoutRequest struct {
	ClientReferenceID string
	AmountMinorUnits  int64
	Currency          string
	ProductName       string
	CustomerEmail     string
}

// CheckoutProvider abstracts the external payment provider's
// checkout-session lifecycle.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CancelIntent(ctx context.Context, externalPaymentIntent string) error
}

// IssuanceRequest carries what the issuance API needs to mint a policy.
type IssuanceRequest struct {
	PaymentIntentID string
	SelectedOfferID string
	ProductCode     string
	InsuredParties  string // JSON, passed through verbatim
	MainContact     string // JSON, passed through verbatim
	PricingResponse string // JSON, passed through verbatim
}

// IssuancePolicy is the external issuance API's successful result.
type IssuancePolicy struct {
	PolicyNumber       string
	ExternalPurchaseID string
}

// IssuanceClient abstracts the external insurance-issuance API's /purchase
// call.
type IssuanceClient interface {
	Issue(ctx context.Context, req IssuanceRequest) (*IssuancePolicy, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	// DefaultCurrency is used when a caller of initiate omits currency.
	DefaultCurrency string
	// CheckoutSessionTTL is advertised to callers as the session's
	// expires_at when the provider does not report one itself.
	CheckoutSessionTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	if c.CheckoutSessionTTL <= 0 {
		c.CheckoutSessionTTL = 24 * time.Hour
	}
	return c
}

// Orchestrator is the C9 purchase/payment state machine: it coordinates
// the local payment_records store with an external checkout provider and
// an external issuance API, enforcing the uniqueness-of-activity
// invariant and the pending -> {completed,failed,expired,cancelled}
// lifecycle.
type Orchestrator struct {
	db       *gorm.DB
	checkout CheckoutProvider
	issuance IssuanceClient
	cfg      Config
	logger   *zap.Logger
}

// New builds an Orchestrator. db must already have the payment_records,
// selection_records, and policies tables migrated.
func New(db *gorm.DB, checkout CheckoutProvider, issuance IssuanceClient, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{db: db, checkout: checkout, issuance: issuance, cfg: cfg.withDefaults(), logger: logger}
}

// InitiateRequest is the input to Initiate.
type InitiateRequest struct {
	UserID           string
	QuoteID          string
	AmountMinorUnits int64
	Currency         string
	ProductName      string
	Email            string
}

// InitiateResult is the documented shape returned by initiate(...).
type InitiateResult struct {
	PaymentIntentID   string
	CheckoutURL       string
	ExternalSessionID string
	AmountMinorUnits  int64
	Currency          string
	ExpiresAt         time.Time
}

// Initiate creates a new pending payment record and an external checkout
// session for it. It enforces the uniqueness-of-activity invariant: at
// most one {pending,completed} record may exist per quote_id. Concurrent
// callers racing on the same quote_id serialize through the database's
// partial unique index; the loser sees a duplicate error naming the
// winner's payment_intent_id.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.QuoteID == "" {
		return nil, errs.New(errs.InvalidArgument, "quote_id is required")
	}
	if req.AmountMinorUnits <= 0 {
		return nil, errs.New(errs.InvalidArgument, "amount_minor_units must be > 0")
	}
	currency := req.Currency
	if currency == "" {
		currency = o.cfg.DefaultCurrency
	}

	paymentIntentID, err := newPaymentIntentID()
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "failed to generate payment_intent_id")
	}

	record := Record{
		PaymentIntentID:  paymentIntentID,
		UserID:           req.UserID,
		QuoteID:          req.QuoteID,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         currency,
		ProductName:      req.ProductName,
		PaymentStatus:    StatusPending,
	}

	if err := o.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := o.activeRecordForQuote(ctx, req.QuoteID)
			if lookupErr != nil || existing == nil {
				return nil, errs.Newf(errs.Duplicate, "an active payment already exists for quote_id %s", req.QuoteID)
			}
			return nil, errs.Newf(errs.Duplicate, "an active payment %s already exists for quote_id %s", existing.PaymentIntentID, req.QuoteID)
		}
		return nil, errs.Wrap(errs.Runtime, err, "failed to create payment record")
	}

	session, err := o.checkout.CreateSession(ctx, CheckoutRequest{
		ClientReferenceID: paymentIntentID,
		AmountMinorUnits:  req.AmountMinorUnits,
		Currency:          currency,
		ProductName:       req.ProductName,
		CustomerEmail:     req.Email,
	})
	if err != nil {
		o.markFailed(ctx, paymentIntentID, "checkout session creation failed: "+err.Error())
		return nil, errs.Wrap(errs.Unavailable, err, "failed to create external checkout session")
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(o.cfg.CheckoutSessionTTL)
	}

	if err := o.db.WithContext(ctx).Model(&Record{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Update("external_session_id", session.SessionID).Error; err != nil {
		o.logger.Warn("failed to stamp external_session_id", zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
	}

	if err := o.db.WithContext(ctx).Model(&Selection{}).
		Where("quote_id = ? AND payment_intent_id = ?", req.QuoteID, "").
		Update("payment_intent_id", paymentIntentID).Error; err != nil {
		o.logger.Warn("failed to link selection record", zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
	}

	return &InitiateResult{
		PaymentIntentID:   paymentIntentID,
		CheckoutURL:       session.URL,
		ExternalSessionID: session.SessionID,
		AmountMinorUnits:  req.AmountMinorUnits,
		Currency:          currency,
		ExpiresAt:         expiresAt,
	}, nil
}

// Status returns the current view of a payment record.
func (o *Orchestrator) Status(ctx context.Context, paymentIntentID string) (*Record, error) {
	return o.findRecord(ctx, paymentIntentID)
}

// SelectionRequest carries the user's choice of offer from a quote,
// recorded before a payment_intent_id exists for it. Initiate links the
// two by quote_id once the payment starts.
type SelectionRequest struct {
	QuoteID         string
	SelectedOfferID string
	ProductCode     string
	InsuredParties  string // JSON array, passed through verbatim
	MainContact     string // JSON object, passed through verbatim
	PricingResponse string // JSON object, passed through verbatim
}

// Select records the Selection Record for a quote_id: the chosen offer,
// insured parties, main contact, and the raw pricing response needed to
// reconstruct the issuance call later. It does not require a
// payment_intent_id — Initiate stamps one on once a payment starts.
func (o *Orchestrator) Select(ctx context.Context, req SelectionRequest) (string, error) {
	if req.QuoteID == "" {
		return "", errs.New(errs.InvalidArgument, "quote_id is required")
	}
	if req.SelectedOfferID == "" {
		return "", errs.New(errs.InvalidArgument, "selected_offer_id is required")
	}

	selection := Selection{
		SelectionID:     uuid.NewString(),
		QuoteID:         req.QuoteID,
		SelectedOfferID: req.SelectedOfferID,
		ProductCode:     req.ProductCode,
		InsuredParties:  req.InsuredParties,
		MainContact:     req.MainContact,
		PricingResponse: req.PricingResponse,
		SchemaVersion:   currentSchemaVersion,
	}
	if err := o.db.WithContext(ctx).Create(&selection).Error; err != nil {
		return "", errs.Wrap(errs.Runtime, err, "failed to persist selection record")
	}
	return selection.SelectionID, nil
}

// CompleteResult is the documented shape returned by complete(...).
type CompleteResult struct {
	PolicyID           string
	PolicyNumber       string
	ExternalPurchaseID string
	IssuanceError      string
}

// Complete must only be called once a payment record has reached
// completed. If a matching Selection carries a pricing response, it
// issues the policy via the issuance API. Issuance failure is
// gracefully degraded: the local policy record is still written, with
// issuance_error recorded, rather than failing the call.
func (o *Orchestrator) Complete(ctx context.Context, paymentIntentID string) (*CompleteResult, error) {
	record, err := o.findRecord(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if record.PaymentStatus != StatusCompleted {
		return nil, errs.Newf(errs.PreconditionFailed, "payment %s is not completed (status=%s)", paymentIntentID, record.PaymentStatus)
	}

	if existing, err := o.existingPolicy(ctx, paymentIntentID); err == nil && existing != nil {
		return &CompleteResult{
			PolicyID:           existing.PolicyID,
			PolicyNumber:       existing.PolicyNumber,
			ExternalPurchaseID: existing.ExternalPurchaseID,
			IssuanceError:      existing.IssuanceError,
		}, nil
	}

	var selection Selection
	hasSelection := true
	if err := o.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&selection).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Wrap(errs.Runtime, err, "failed to look up selection record")
		}
		hasSelection = false
	}

	policyID, err := newPaymentIntentID()
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "failed to generate policy_id")
	}
	policy := Policy{PolicyID: policyID, PaymentIntentID: paymentIntentID}

	if hasSelection && selection.PricingResponse != "" {
		issued, issueErr := o.issuance.Issue(ctx, IssuanceRequest{
			PaymentIntentID: paymentIntentID,
			SelectedOfferID: selection.SelectedOfferID,
			ProductCode:     selection.ProductCode,
			InsuredParties:  selection.InsuredParties,
			MainContact:     selection.MainContact,
			PricingResponse: selection.PricingResponse,
		})
		if issueErr != nil {
			o.logger.Warn("policy issuance failed, degrading gracefully", zap.String("payment_intent_id", paymentIntentID), zap.Error(issueErr))
			policy.IssuanceError = issueErr.Error()
		} else {
			policy.PolicyNumber = issued.PolicyNumber
			policy.ExternalPurchaseID = issued.ExternalPurchaseID
		}
	}

	if err := o.db.WithContext(ctx).Create(&policy).Error; err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "failed to persist policy record")
	}

	return &CompleteResult{
		PolicyID:           policy.PolicyID,
		PolicyNumber:       policy.PolicyNumber,
		ExternalPurchaseID: policy.ExternalPurchaseID,
		IssuanceError:      policy.IssuanceError,
	}, nil
}

// Cancel transitions a non-completed payment to cancelled, attempting a
// best-effort external cancellation first. Cancelling an already
// completed payment is forbidden.
func (o *Orchestrator) Cancel(ctx context.Context, paymentIntentID string, reason string) error {
	record, err := o.findRecord(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if record.PaymentStatus == StatusCompleted {
		return errs.Newf(errs.PreconditionFailed, "payment %s is already completed and cannot be cancelled", paymentIntentID)
	}
	if record.PaymentStatus.terminal() {
		return nil
	}

	if record.ExternalPaymentIntent != "" {
		if err := o.checkout.CancelIntent(ctx, record.ExternalPaymentIntent); err != nil {
			o.logger.Warn("best-effort external cancel failed", zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
		}
	}

	updates := map[string]any{"payment_status": StatusCancelled}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	if err := o.db.WithContext(ctx).Model(&Record{}).
		Where("payment_intent_id = ? AND payment_status = ?", paymentIntentID, StatusPending).
		Updates(updates).Error; err != nil {
		return errs.Wrap(errs.Runtime, err, "failed to cancel payment record")
	}
	return nil
}

// ByUser lists payment records for a user, most recent first.
func (o *Orchestrator) ByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	if err := o.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "failed to list payments for user")
	}
	return records, nil
}

// ByQuote returns the active-or-most-recent payment record for a quote.
func (o *Orchestrator) ByQuote(ctx context.Context, quoteID string) (*Record, error) {
	var record Record
	err := o.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.NotFound, "no payment record found for quote_id %s", quoteID)
		}
		return nil, errs.Wrap(errs.Runtime, err, "failed to look up payment by quote")
	}
	return &record, nil
}

func (o *Orchestrator) findRecord(ctx context.Context, paymentIntentID string) (*Record, error) {
	if paymentIntentID == "" {
		return nil, errs.New(errs.InvalidArgument, "payment_intent_id is required")
	}
	var record Record
	if err := o.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.NotFound, "no payment record found for payment_intent_id %s", paymentIntentID)
		}
		return nil, errs.Wrap(errs.Runtime, err, "failed to look up payment record")
	}
	return &record, nil
}

func (o *Orchestrator) activeRecordForQuote(ctx context.Context, quoteID string) (*Record, error) {
	var record Record
	err := o.db.WithContext(ctx).
		Where("quote_id = ? AND payment_status IN ?", quoteID, []Status{StatusPending, StatusCompleted}).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (o *Orchestrator) existingPolicy(ctx context.Context, paymentIntentID string) (*Policy, error) {
	var policy Policy
	err := o.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&policy).Error
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, paymentIntentID, reason string) {
	if err := o.db.WithContext(ctx).Model(&Record{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Updates(map[string]any{"payment_status": StatusFailed, "failure_reason": reason}).Error; err != nil {
		o.logger.Warn("failed to mark payment record failed", zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
	}
}

// newPaymentIntentID generates a server-side random 128-bit, base-16
// identifier.
func newPaymentIntentID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// isUniqueViolation recognizes a unique-constraint violation across the
// postgres and sqlite drivers this module targets. It mirrors the
// substring-based classification in internal/database/pool.go.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique_constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
