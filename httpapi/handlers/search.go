package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/graphsearch"
	"github.com/travelguard/insurance-core/httpapi"
	"github.com/travelguard/insurance-core/routing"
)

// SearchHandler serves the structured policy search and concept search
// endpoints.
type SearchHandler struct {
	router *routing.Engine
	graph  *graphsearch.Client
	logger *zap.Logger
}

// NewSearchHandler builds a SearchHandler.
func NewSearchHandler(router *routing.Engine, graph *graphsearch.Client, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{router: router, graph: graph, logger: logger}
}

// HandleStructuredPolicySearch serves POST /api/v1/structured-policy-search.
func (h *SearchHandler) HandleStructuredPolicySearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.StructuredPolicySearchRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	status, rows, tablesSearched, err := h.router.Route(r.Context(), req.Query, req.TopK)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	data := make([]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, row)
	}

	WriteSuccess(w, httpapi.StructuredPolicySearchResponse{
		Success:        status == routing.StatusSuccess,
		Data:           data,
		TablesSearched: tablesSearched,
		TotalResults:   len(data),
		Query:          req.Query,
	})
}

// HandleConceptSearch serves POST /api/v1/concept-search.
func (h *SearchHandler) HandleConceptSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, errs.InvalidArgument, "method not allowed", h.logger)
		return
	}

	var req httpapi.ConceptSearchRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	results, err := h.graph.SearchConcepts(r.Context(), req.Query, req.TopK)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, httpapi.ConceptSearchResponse{
		Results: results,
		Count:   len(results),
		Query:   req.Query,
	})
}
