package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/httpapi"
	"github.com/travelguard/insurance-core/payments"
)

// PurchaseHandler serves the C9 purchase/payment endpoints.
type PurchaseHandler struct {
	orchestrator *payments.Orchestrator
	logger       *zap.Logger
}

// NewPurchaseHandler builds a PurchaseHandler.
func NewPurchaseHandler(orchestrator *payments.Orchestrator, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{orchestrator: orchestrator, logger: logger}
}

// HandleInitiate serves POST /api/purchase/initiate.
func (h *PurchaseHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.PurchaseInitiateRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	if req.SelectedOfferID != "" {
		if _, err := h.orchestrator.Select(r.Context(), payments.SelectionRequest{
			QuoteID:         req.QuoteID,
			SelectedOfferID: req.SelectedOfferID,
			ProductCode:     req.ProductCode,
			InsuredParties:  req.InsuredParties,
			MainContact:     req.MainContact,
			PricingResponse: req.PricingResponse,
		}); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
	}

	result, err := h.orchestrator.Initiate(r.Context(), payments.InitiateRequest{
		UserID:           req.UserID,
		QuoteID:          req.QuoteID,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
		ProductName:      req.ProductName,
		Email:            req.Email,
	})
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, httpapi.PurchaseInitiateResponse{
		PaymentIntentID:   result.PaymentIntentID,
		CheckoutURL:       result.CheckoutURL,
		ExternalSessionID: result.ExternalSessionID,
		Amount:            result.AmountMinorUnits,
		Currency:          result.Currency,
		ExpiresAt:         result.ExpiresAt,
	})
}

// HandleStatus serves GET /api/purchase/payment/{pi}.
func (h *PurchaseHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	record, err := h.orchestrator.Status(r.Context(), r.PathValue("pi"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, record)
}

// HandleComplete serves POST /api/purchase/complete/{pi}.
func (h *PurchaseHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	result, err := h.orchestrator.Complete(r.Context(), r.PathValue("pi"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleCancel serves POST /api/purchase/cancel/{pi}.
func (h *PurchaseHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.PurchaseCancelRequest
	// A cancel request may have an empty body; only attempt to decode
	// when the client declared a non-empty body.
	if r.ContentLength > 0 {
		if DecodeJSONBody(w, r, &req, h.logger) != nil {
			return
		}
	}

	if err := h.orchestrator.Cancel(r.Context(), r.PathValue("pi"), req.Reason); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]bool{"ok": true})
}

// HandleByUser serves GET /api/purchase/user/{u}/payments.
func (h *PurchaseHandler) HandleByUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	records, err := h.orchestrator.ByUser(r.Context(), r.PathValue("u"), limit)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, records)
}
