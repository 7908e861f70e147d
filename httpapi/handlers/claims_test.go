package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/claims"
	"github.com/travelguard/insurance-core/httpapi"
)

func TestHandleInsights_RejectsOutOfRangeInsightCount(t *testing.T) {
	h := NewClaimsHandler(&claims.Orchestrator{}, zap.NewNop())

	body, _ := json.Marshal(httpapi.ClaimsQARequest{Query: "why was my claim denied", NumInsights: 0})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims/insights", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.HandleInsights(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp httpapi.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestHandleInsights_RejectsNonPOST(t *testing.T) {
	h := NewClaimsHandler(&claims.Orchestrator{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims/insights", nil)
	rec := httptest.NewRecorder()

	h.HandleInsights(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
