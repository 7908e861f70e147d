package toolsurface

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/payments"
)

type fakeCheckoutProvider struct{}

func (fakeCheckoutProvider) CreateSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	return &payments.CheckoutSession{SessionID: "sess_" + req.ClientReferenceID, URL: "https://checkout.example/" + req.ClientReferenceID}, nil
}

func (fakeCheckoutProvider) CancelIntent(ctx context.Context, externalPaymentIntent string) error {
	return nil
}

type fakeIssuanceClient struct{}

func (fakeIssuanceClient) Issue(ctx context.Context, req payments.IssuanceRequest) (*payments.IssuancePolicy, error) {
	return &payments.IssuancePolicy{}, nil
}

func newTestOrchestrator(t *testing.T) *payments.Orchestrator {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&payments.Record{}, &payments.Selection{}, &payments.Policy{}))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX uq_payment_records_active_quote ON payment_records (quote_id) " +
			"WHERE payment_status IN ('pending','completed')").Error)
	return payments.New(db, fakeCheckoutProvider{}, fakeIssuanceClient{}, payments.Config{}, zap.NewNop())
}

func TestListTools_CoversAllTenTools(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, nil)
	tools := s.ListTools()

	want := []string{
		"search_policy", "search_concepts", "claims_insights", "get_quotation",
		"initiate_purchase", "payment_status", "complete_purchase", "cancel_purchase",
		"memory_add", "memory_search",
	}
	require.Len(t, tools, len(want))
	for i, name := range want {
		assert.Equal(t, name, tools[i].Name)
		assert.NotEmpty(t, tools[i].Description)
		assert.Equal(t, "object", tools[i].InputSchema["type"])
	}
}

func TestCallTool_UnknownToolName(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, nil)
	_, err := s.CallTool(context.Background(), "does_not_exist", nil, "req-1")
	require.Error(t, err)
}

func TestCallTool_MissingRequiredArg(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, nil)
	_, err := s.CallTool(context.Background(), "payment_status", map[string]any{}, nil)
	require.Error(t, err)
}

func TestStringArg(t *testing.T) {
	v, err := stringArg(map[string]any{"q": "hello"}, "q")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = stringArg(map[string]any{}, "q")
	require.Error(t, err)

	_, err = stringArg(map[string]any{"q": ""}, "q")
	require.Error(t, err)
}

func TestIntArgOrDefault(t *testing.T) {
	assert.Equal(t, 5, intArgOrDefault(map[string]any{}, "k", 5))
	assert.Equal(t, 3, intArgOrDefault(map[string]any{"k": float64(3)}, "k", 5))
}

func TestToIntSlice(t *testing.T) {
	ages, err := toIntSlice([]any{float64(25), float64(40)})
	require.NoError(t, err)
	assert.Equal(t, []int{25, 40}, ages)

	_, err = toIntSlice("not-an-array")
	require.Error(t, err)
}

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := NewHub(HubConfig{}, nil)
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.publish(notification{Event: "tool_call_started", Tool: "search_policy"})

	select {
	case n := <-ch:
		assert.Equal(t, "tool_call_started", n.Event)
		assert.Equal(t, "search_policy", n.Tool)
	default:
		t.Fatal("expected a notification to be queued for the subscriber")
	}
}

func TestHub_NilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() {
		h.publish(notification{Event: "tool_call_started", Tool: "search_policy"})
	})
}

func TestCallTool_NilHubDoesNotBlockDispatch(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, nil)
	_, err := s.CallTool(context.Background(), "does_not_exist", nil, nil)
	require.Error(t, err)
}

func TestInitiatePurchase_WithSelectedOfferRecordsSelection(t *testing.T) {
	orch := newTestOrchestrator(t)
	s := New(nil, nil, nil, nil, orch, nil, nil, nil)

	result, err := s.CallTool(context.Background(), "initiate_purchase", map[string]any{
		"quote_id":           "Q1",
		"amount_minor_units":  5000,
		"product_name":        "trip-basic",
		"selected_offer_id":   "offer-1",
		"product_code":        "trip-basic",
		"insured_parties":     `[{"name":"Jane Doe"}]`,
		"main_contact":        `{"email":"jane@example.com"}`,
		"pricing_response":    `{"offer_id":"offer-1","amount_minor_units":5000}`,
	}, "req-1")
	require.NoError(t, err)

	initiated, ok := result.(*payments.InitiateResult)
	require.True(t, ok)
	require.NotEmpty(t, initiated.PaymentIntentID)
}

func TestInitiatePurchase_WithoutSelectedOfferSkipsSelection(t *testing.T) {
	orch := newTestOrchestrator(t)
	s := New(nil, nil, nil, nil, orch, nil, nil, nil)

	_, err := s.CallTool(context.Background(), "initiate_purchase", map[string]any{
		"quote_id":           "Q2",
		"amount_minor_units":  5000,
		"product_name":        "trip-basic",
	}, "req-2")
	require.NoError(t, err)
}
