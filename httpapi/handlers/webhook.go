package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/payments"
)

// WebhookHandler serves the C10 asynchronous payment-provider webhook
// stream.
type WebhookHandler struct {
	receiver *payments.Receiver
	logger   *zap.Logger
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(receiver *payments.Receiver, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{receiver: receiver, logger: logger}
}

// HandleStripe serves POST /webhook/stripe: 200 on accept, 400 on
// signature/parse failure.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteErrorMessage(w, errs.InvalidArgument, "failed to read webhook body", h.logger)
		return
	}

	// Signature verification failure is always a 400, not the
	// unauthorized-kind's usual 401 — the caller is the provider's
	// webhook dispatcher, not an end user presenting credentials.
	if err := h.receiver.VerifySignature(body, r.Header.Get("stripe-signature")); err != nil {
		WriteErrorMessage(w, errs.InvalidArgument, err.Error(), h.logger)
		return
	}

	var event payments.Event
	if err := json.Unmarshal(body, &event); err != nil {
		WriteErrorMessage(w, errs.InvalidArgument, "malformed webhook event", h.logger)
		return
	}

	if err := h.receiver.Handle(r.Context(), event); err != nil {
		h.logger.Error("webhook handling failed", zap.String("event_id", event.ID), zap.Error(err))
		WriteErrorMessage(w, errs.InvalidArgument, "failed to process webhook event", h.logger)
		return
	}

	WriteSuccess(w, map[string]bool{"received": true})
}
