package toolsurface

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes a Surface over HTTP: a JSON-RPC 2.0 endpoint for
// tools/list and tools/call, and a WebSocket endpoint streaming
// tool-call lifecycle notifications.
type Handler struct {
	surface *Surface
	hub     *Hub
	logger  *zap.Logger
}

// NewHandler builds a Handler over the given Surface. hub may be nil,
// in which case the notification endpoint responds 404 and
// Surface.CallTool's publish calls are no-ops.
func NewHandler(surface *Surface, hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{surface: surface, hub: hub, logger: logger}
}

// ServeHTTP routes the tool surface's two endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/tools/rpc":
		h.handleRPC(w, r)
	case "/tools/notifications":
		h.handleNotifications(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.writeResponse(w, errorResponse(nil, ErrCodeParseError, "parse error"))
		return
	}

	h.writeResponse(w, h.dispatch(r, &msg))
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.hub.ServeWS(w, r); err != nil {
		h.logger.Debug("notification websocket closed", zap.Error(err))
	}
}

func (h *Handler) dispatch(r *http.Request, msg *Message) *Message {
	switch msg.Method {
	case "tools/list":
		return resultResponse(msg.ID, map[string]any{"tools": h.surface.ListTools()})

	case "tools/call":
		name, _ := msg.Params["name"].(string)
		if name == "" {
			return errorResponse(msg.ID, ErrCodeInvalidParams, "params.name is required")
		}
		args, _ := msg.Params["arguments"].(map[string]any)

		result, err := h.surface.CallTool(r.Context(), name, args, msg.ID)
		if err != nil {
			return errorResponse(msg.ID, ErrCodeInternalError, err.Error())
		}
		return resultResponse(msg.ID, result)

	default:
		return errorResponse(msg.ID, ErrCodeMethodNotFound, "unknown method "+msg.Method)
	}
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *Message) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to encode tool surface response", zap.Error(err))
	}
}
