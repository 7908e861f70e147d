package payments

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}, &Selection{}, &Policy{}))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX uq_payment_records_active_quote ON payment_records (quote_id) " +
			"WHERE payment_status IN ('pending','completed')").Error)
	return db
}

type fakeCheckout struct {
	createErr    error
	cancelCalled bool
	session      *CheckoutSession
}

func (f *fakeCheckout) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.session != nil {
		return f.session, nil
	}
	return &CheckoutSession{SessionID: "sess_" + req.ClientReferenceID, URL: "https://checkout.example/" + req.ClientReferenceID}, nil
}

func (f *fakeCheckout) CancelIntent(ctx context.Context, externalPaymentIntent string) error {
	f.cancelCalled = true
	return nil
}

type fakeIssuance struct {
	result *IssuancePolicy
	err    error
}

func (f *fakeIssuance) Issue(ctx context.Context, req IssuanceRequest) (*IssuancePolicy, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestInitiate_CreatesPendingRecordAndSession(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())

	result, err := orch.Initiate(context.Background(), InitiateRequest{
		UserID: "u1", QuoteID: "Q1", AmountMinorUnits: 5000, Currency: "USD", ProductName: "trip-basic",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.PaymentIntentID)
	require.NotEmpty(t, result.CheckoutURL)

	record, err := orch.Status(context.Background(), result.PaymentIntentID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, record.PaymentStatus)
}

func TestInitiate_DuplicateQuoteRejected(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())
	ctx := context.Background()

	first, err := orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.NoError(t, err)

	_, err = orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.Error(t, err)
	require.Contains(t, err.Error(), first.PaymentIntentID)
}

func TestInitiate_RejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())

	_, err := orch.Initiate(context.Background(), InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 0, ProductName: "p"})
	require.Error(t, err)
}

func TestInitiate_CheckoutFailureMarksFailed(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{createErr: errTestUnavailable}, &fakeIssuance{}, Config{}, zap.NewNop())

	_, err := orch.Initiate(context.Background(), InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.Error(t, err)

	var record Record
	require.NoError(t, db.Where("quote_id = ?", "Q1").First(&record).Error)
	require.Equal(t, StatusFailed, record.PaymentStatus)

	// the quote is now free again for a fresh initiate since failed is terminal
	_, err = orch.Initiate(context.Background(), InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.Error(t, err) // checkout still fails, but no duplicate error this time
	require.NotContains(t, err.Error(), "duplicate")
}

func TestSelect_RequiresQuoteIDAndOffer(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())

	_, err := orch.Select(context.Background(), SelectionRequest{SelectedOfferID: "offer-1"})
	require.Error(t, err)

	_, err = orch.Select(context.Background(), SelectionRequest{QuoteID: "Q1"})
	require.Error(t, err)
}

func TestSelect_ThenInitiateLinksPaymentIntentID(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())
	ctx := context.Background()

	selectionID, err := orch.Select(ctx, SelectionRequest{
		QuoteID:         "Q1",
		SelectedOfferID: "offer-1",
		ProductCode:     "trip-basic",
		InsuredParties:  `[{"name":"Jane Doe"}]`,
		MainContact:     `{"email":"jane@example.com"}`,
		PricingResponse: `{"offer_id":"offer-1","amount_minor_units":5000}`,
	})
	require.NoError(t, err)
	require.NotEmpty(t, selectionID)

	var before Selection
	require.NoError(t, db.Where("selection_id = ?", selectionID).First(&before).Error)
	require.Empty(t, before.PaymentIntentID)

	result, err := orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 5000, ProductName: "trip-basic"})
	require.NoError(t, err)

	var after Selection
	require.NoError(t, db.Where("selection_id = ?", selectionID).First(&after).Error)
	require.Equal(t, result.PaymentIntentID, after.PaymentIntentID)
}

func TestComplete_RequiresCompletedStatus(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())

	res, err := orch.Initiate(context.Background(), InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.NoError(t, err)

	_, err = orch.Complete(context.Background(), res.PaymentIntentID)
	require.Error(t, err)
}

func TestComplete_GracefullyDegradesOnIssuanceFailure(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{err: errTestUnavailable}, Config{}, zap.NewNop())
	ctx := context.Background()

	res, err := orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&Record{}).Where("payment_intent_id = ?", res.PaymentIntentID).
		Update("payment_status", StatusCompleted).Error)
	require.NoError(t, db.Create(&Selection{
		SelectionID: "sel1", QuoteID: "Q1", PaymentIntentID: res.PaymentIntentID,
		SelectedOfferID: "offer1", ProductCode: "trip-basic",
		PricingResponse: `{"quote_id":"Q1"}`, SchemaVersion: currentSchemaVersion,
	}).Error)

	complete, err := orch.Complete(ctx, res.PaymentIntentID)
	require.NoError(t, err)
	require.NotEmpty(t, complete.PolicyID)
	require.NotEmpty(t, complete.IssuanceError)
	require.Empty(t, complete.PolicyNumber)
}

func TestComplete_IsIdempotent(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{result: &IssuancePolicy{PolicyNumber: "POL-1", ExternalPurchaseID: "ext-1"}}, Config{}, zap.NewNop())
	ctx := context.Background()

	res, err := orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&Record{}).Where("payment_intent_id = ?", res.PaymentIntentID).
		Update("payment_status", StatusCompleted).Error)
	require.NoError(t, db.Create(&Selection{
		SelectionID: "sel1", QuoteID: "Q1", PaymentIntentID: res.PaymentIntentID,
		PricingResponse: `{"quote_id":"Q1"}`, SchemaVersion: currentSchemaVersion,
	}).Error)

	first, err := orch.Complete(ctx, res.PaymentIntentID)
	require.NoError(t, err)
	second, err := orch.Complete(ctx, res.PaymentIntentID)
	require.NoError(t, err)
	require.Equal(t, first.PolicyID, second.PolicyID)
}

func TestCancel_ForbiddenWhenCompleted(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())
	ctx := context.Background()

	res, err := orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&Record{}).Where("payment_intent_id = ?", res.PaymentIntentID).
		Update("payment_status", StatusCompleted).Error)

	err = orch.Cancel(ctx, res.PaymentIntentID, "changed my mind")
	require.Error(t, err)
}

func TestCancel_TransitionsPendingToCancelled(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	checkout := &fakeCheckout{}
	orch := New(db, checkout, &fakeIssuance{}, Config{}, zap.NewNop())
	ctx := context.Background()

	res, err := orch.Initiate(ctx, InitiateRequest{QuoteID: "Q1", AmountMinorUnits: 100, ProductName: "p"})
	require.NoError(t, err)

	require.NoError(t, orch.Cancel(ctx, res.PaymentIntentID, "user requested"))

	record, err := orch.Status(ctx, res.PaymentIntentID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, record.PaymentStatus)
}

func TestByUser_OrdersMostRecentFirst(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	orch := New(db, &fakeCheckout{}, &fakeIssuance{}, Config{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, db.Create(&Record{PaymentIntentID: "pi1", UserID: "u1", QuoteID: "Q1", PaymentStatus: StatusCompleted, CreatedAt: time.Now().Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&Record{PaymentIntentID: "pi2", UserID: "u1", QuoteID: "Q2", PaymentStatus: StatusCompleted, CreatedAt: time.Now()}).Error)

	records, err := orch.ByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "pi2", records[0].PaymentIntentID)
}

var errTestUnavailable = &testError{"external provider unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
