package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/errs"
)

// Environment gates how strictly webhook signatures are enforced: strict
// verification in production, lenient elsewhere to ease local/staging
// testing against providers' test-mode payloads.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Event is the provider's webhook event envelope, decoded just enough to
// dispatch on Type; Data is kept as raw JSON for per-type decoding.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sessionEventData struct {
	SessionID             string `json:"session_id"`
	ClientReferenceID     string `json:"client_reference_id"`
	PaymentIntentExternal string `json:"payment_intent"`
}

type paymentIntentEventData struct {
	PaymentIntentExternal string `json:"payment_intent"`
	FailureReason         string `json:"failure_reason"`
}

const (
	eventSessionCompleted     = "session.completed"
	eventSessionExpired       = "session.expired"
	eventPaymentIntentFailed  = "payment_intent.failed"
)

// Receiver is the C10 webhook receiver: it verifies provider signatures
// and applies idempotent, monotone state transitions to payment records.
type Receiver struct {
	db          *gorm.DB
	webhookSecret string
	env         Environment
	logger      *zap.Logger
}

// ReceiverConfig configures signature verification.
type ReceiverConfig struct {
	WebhookSecret string
	Environment   Environment
}

// NewReceiver builds a Receiver.
func NewReceiver(db *gorm.DB, cfg ReceiverConfig, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvProduction
	}
	return &Receiver{db: db, webhookSecret: cfg.WebhookSecret, env: cfg.Environment, logger: logger}
}

// VerifySignature checks the provider's stripe-signature-style header
// against the raw request body. In production a missing secret or a
// missing/invalid signature is always rejected; in development/staging an
// unset secret or a missing header is tolerated, with a warning logged, to
// ease local testing against unsigned fixtures.
func (r *Receiver) VerifySignature(body []byte, signatureHeader string) error {
	if r.webhookSecret == "" {
		if r.env == EnvProduction {
			return errs.New(errs.Unauthorized, "webhook secret is not configured")
		}
		r.logger.Warn("webhook secret is not configured; accepting unsigned payload", zap.String("environment", string(r.env)))
		return nil
	}
	if signatureHeader == "" {
		if r.env != EnvProduction {
			r.logger.Warn("stripe-signature header missing; accepting unsigned payload", zap.String("environment", string(r.env)))
			return nil
		}
		return errs.New(errs.Unauthorized, "missing stripe-signature header")
	}

	expected := computeSignature(r.webhookSecret, body)
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] != "v1" {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(kv[1])) {
			return nil
		}
	}
	return errs.New(errs.Unauthorized, "webhook signature verification failed")
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Handle dispatches a decoded event to its transition. Unknown event
// types and events referencing unknown local records are logged, not
// returned as errors.
func (r *Receiver) Handle(ctx context.Context, event Event) error {
	switch event.Type {
	case eventSessionCompleted:
		return r.handleSessionCompleted(ctx, event)
	case eventSessionExpired:
		return r.handleSessionExpired(ctx, event)
	case eventPaymentIntentFailed:
		return r.handlePaymentIntentFailed(ctx, event)
	default:
		r.logger.Info("ignoring unhandled webhook event type", zap.String("type", event.Type))
		return nil
	}
}

func (r *Receiver) handleSessionCompleted(ctx context.Context, event Event) error {
	var data sessionEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "malformed session.completed payload")
	}
	if data.ClientReferenceID == "" {
		r.logger.Warn("session.completed missing client_reference_id", zap.String("event_id", event.ID))
		return nil
	}

	record, err := r.findByPaymentIntentID(ctx, data.ClientReferenceID)
	if err != nil {
		r.logger.Warn("session.completed references unknown local record", zap.String("client_reference_id", data.ClientReferenceID))
		return nil
	}

	if record.PaymentStatus == StatusCompleted {
		return nil // idempotent re-delivery: no-op
	}
	if record.PaymentStatus.terminal() {
		r.logger.Warn("session.completed for a record already in a terminal state",
			zap.String("payment_intent_id", record.PaymentIntentID), zap.String("status", string(record.PaymentStatus)))
		return nil
	}

	now := time.Now()
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("payment_intent_id = ? AND payment_status = ?", record.PaymentIntentID, StatusPending).
		Updates(map[string]any{
			"payment_status":           StatusCompleted,
			"external_payment_intent":  data.PaymentIntentExternal,
			"external_session_id":      data.SessionID,
			"webhook_processed_at":     now,
		}).Error
}

func (r *Receiver) handleSessionExpired(ctx context.Context, event Event) error {
	var data sessionEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "malformed session.expired payload")
	}
	if data.ClientReferenceID == "" {
		r.logger.Warn("session.expired missing client_reference_id", zap.String("event_id", event.ID))
		return nil
	}

	record, err := r.findByPaymentIntentID(ctx, data.ClientReferenceID)
	if err != nil {
		r.logger.Warn("session.expired references unknown local record", zap.String("client_reference_id", data.ClientReferenceID))
		return nil
	}
	if record.PaymentStatus.terminal() {
		return nil // idempotent: terminal states are sinks
	}

	now := time.Now()
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("payment_intent_id = ? AND payment_status = ?", record.PaymentIntentID, StatusPending).
		Updates(map[string]any{"payment_status": StatusExpired, "webhook_processed_at": now}).Error
}

// handlePaymentIntentFailed resolves the local record by
// external_payment_intent, a non-unique index: a provider retry can
// reuse the same external intent across more than one local attempt, so
// the straightforward indexed lookup only targets the one still pending.
// When that misses — the record hasn't been stamped with this intent
// yet, or it's no longer pending — it falls back to a broader,
// unfiltered scan over every record sharing the intent and logs that the
// fallback path was taken, since that scan can't lean on the pending-only
// index and costs more to run.
func (r *Receiver) handlePaymentIntentFailed(ctx context.Context, event Event) error {
	var data paymentIntentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "malformed payment_intent.failed payload")
	}
	if data.PaymentIntentExternal == "" {
		r.logger.Warn("payment_intent.failed missing payment_intent", zap.String("event_id", event.ID))
		return nil
	}

	record, err := r.findByExternalPaymentIntent(ctx, data.PaymentIntentExternal)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn("payment_intent.failed references unknown local record",
				zap.String("external_payment_intent", data.PaymentIntentExternal))
			return nil
		}
		return errs.Wrap(errs.Runtime, err, "failed to look up payment record by external_payment_intent")
	}
	if record.PaymentStatus.terminal() {
		return nil
	}

	now := time.Now()
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("payment_intent_id = ? AND payment_status = ?", record.PaymentIntentID, StatusPending).
		Updates(map[string]any{
			"payment_status":       StatusFailed,
			"failure_reason":       data.FailureReason,
			"webhook_processed_at": now,
		}).Error
}

func (r *Receiver) findByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Record, error) {
	var record Record
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// findByExternalPaymentIntent looks up a record by the provider's
// payment intent ID. It first targets the one record still pending
// under that intent, then falls back to the most recent record with any
// status sharing the intent if the narrower query misses.
func (r *Receiver) findByExternalPaymentIntent(ctx context.Context, externalPaymentIntent string) (*Record, error) {
	var record Record
	err := r.db.WithContext(ctx).
		Where("external_payment_intent = ? AND payment_status = ?", externalPaymentIntent, StatusPending).
		First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	r.logger.Warn("falling back to unfiltered scan for external_payment_intent",
		zap.String("external_payment_intent", externalPaymentIntent))

	err = r.db.WithContext(ctx).
		Where("external_payment_intent = ?", externalPaymentIntent).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
