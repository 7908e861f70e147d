package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/payments"
)

func setupWebhookHandler(t *testing.T, secret string) (*WebhookHandler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&payments.Record{}, &payments.Selection{}, &payments.Policy{}))

	receiver := payments.NewReceiver(db, payments.ReceiverConfig{WebhookSecret: secret, Environment: payments.EnvDevelopment}, zap.NewNop())
	return NewWebhookHandler(receiver, zap.NewNop()), db
}

func TestHandleStripe_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()
	h, _ := setupWebhookHandler(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.HandleStripe(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStripe_AcceptsUnknownEventType(t *testing.T) {
	t.Parallel()
	h, _ := setupWebhookHandler(t, "")

	body, _ := json.Marshal(map[string]any{"id": "evt_1", "type": "charge.refunded", "data": map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleStripe(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStripe_WrongMethodRejected(t *testing.T) {
	t.Parallel()
	h, _ := setupWebhookHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook/stripe", nil)
	rec := httptest.NewRecorder()

	h.HandleStripe(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
