package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/claims"
	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/httpapi"
)

// ClaimsHandler serves the claims intelligence Q&A endpoint.
type ClaimsHandler struct {
	orchestrator *claims.Orchestrator
	logger       *zap.Logger
}

// NewClaimsHandler builds a ClaimsHandler.
func NewClaimsHandler(orchestrator *claims.Orchestrator, logger *zap.Logger) *ClaimsHandler {
	return &ClaimsHandler{orchestrator: orchestrator, logger: logger}
}

// HandleInsights serves POST /api/v1/claims/insights.
func (h *ClaimsHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.ClaimsQARequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	status, answer := h.orchestrator.Answer(r.Context(), req.Query, req.NumInsights)

	WriteSuccess(w, httpapi.ClaimsQAResponse{
		Status: status,
		Answer: answer,
	})
}
