package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/httpapi"
	"github.com/travelguard/insurance-core/memory"
)

// MemoryHandler serves the C11 memory-service endpoints.
type MemoryHandler struct {
	memory *memory.Service
	logger *zap.Logger
}

// NewMemoryHandler builds a MemoryHandler.
func NewMemoryHandler(svc *memory.Service, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{memory: svc, logger: logger}
}

// HandleAdd serves POST /api/v1/memory/add.
func (h *MemoryHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.MemoryAddRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	messages := make([]memory.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, memory.Message{Role: m.Role, Content: m.Content})
	}

	results, err := h.memory.Add(r.Context(), req.UserID, messages, req.Metadata)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"results": results})
}

// HandleSearch serves POST /api/v1/memory/search.
func (h *MemoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.MemorySearchRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	results, err := h.memory.Search(r.Context(), req.UserID, req.Query, req.Limit)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, results)
}

// HandleAll serves GET /api/v1/memory/{user_id}.
func (h *MemoryHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	userID := r.PathValue("user_id")
	results, err := h.memory.All(r.Context(), userID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, results)
}

// HandleDelete serves DELETE /api/v1/memory/{memory_id}.
func (h *MemoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	memoryID := r.PathValue("memory_id")
	if err := h.memory.Delete(r.Context(), memoryID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]bool{"ok": true})
}
