package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/ledger"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments/providers"
	"github.com/angelmondragon/farmlink-backend/internal/poller"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

type fakeTracker struct {
	mu        sync.Mutex
	jobs      []poller.Job
	cancelled []uuid.UUID
	trackErr  error
}

func (f *fakeTracker) Track(_ context.Context, job poller.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trackErr != nil {
		return f.trackErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeTracker) Cancel(intentID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, intentID)
	return true
}

type fakeProvider struct {
	method   enums.PaymentMethod
	initiate func(ctx context.Context, req providers.InitiateRequest) (string, error)
	status   func(ctx context.Context, ref string) (providers.Status, error)
	voided   []string
}

func (f *fakeProvider) Method() enums.PaymentMethod { return f.method }

func (f *fakeProvider) Initiate(ctx context.Context, req providers.InitiateRequest) (string, error) {
	if f.initiate != nil {
		return f.initiate(ctx, req)
	}
	return string(f.method) + "-" + req.IntentID.String()[:8], nil
}

func (f *fakeProvider) Status(ctx context.Context, ref string) (providers.Status, error) {
	if f.status != nil {
		return f.status(ctx, ref)
	}
	return providers.StatusPending, nil
}

func (f *fakeProvider) Cancel(_ context.Context, ref string) error {
	f.voided = append(f.voided, ref)
	return nil
}

type fixture struct {
	conn     *gorm.DB
	client   *db.Client
	ledger   ledger.Service
	resolver *Resolver
	tracker  *fakeTracker
	mobile   *fakeProvider
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.FromGorm(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, publisher, nil, nil)
	require.NoError(t, err)
	machine, err := orders.NewMachine(orders.NewRepository(conn), publisher, nil)
	require.NoError(t, err)

	repo := NewRepository(conn)
	resolver, err := NewResolver(ResolverParams{
		Repo:   repo,
		Ledger: ledgerSvc,
		Orders: machine,
		Tx:     client,
		Outbox: publisher,
	})
	require.NoError(t, err)

	mobile := &fakeProvider{method: enums.PaymentMethodMobileMoney}
	registry, err := providers.NewRegistry(mobile)
	require.NoError(t, err)
	tracker := &fakeTracker{}

	svc, err := NewService(Params{
		Config:    Config{MaxRetries: 3},
		Repo:      repo,
		Ledger:    ledgerSvc,
		Providers: registry,
		Tracker:   tracker,
		Resolver:  resolver,
		Tx:        client,
	})
	require.NoError(t, err)

	return &fixture{
		conn:     conn,
		client:   client,
		ledger:   ledgerSvc,
		resolver: resolver,
		tracker:  tracker,
		mobile:   mobile,
		svc:      svc,
	}
}

type seededOrder struct {
	ID      uuid.UUID
	BuyerID uuid.UUID
	Total   int64
}

func (f *fixture) seedOrder(t *testing.T, status enums.OrderStatus, subTotals ...int64) seededOrder {
	t.Helper()
	order := seededOrder{ID: uuid.New(), BuyerID: uuid.New()}
	for _, total := range subTotals {
		order.Total += total
	}
	require.NoError(t, f.conn.Omit("SubOrders").Create(&models.MasterOrder{
		ID:           order.ID,
		BuyerID:      order.BuyerID,
		TrackingID:   "FL-" + order.ID.String()[:8],
		Status:       status,
		Currency:     "KES",
		TotalAmount:  order.Total,
		SellerCount:  len(subTotals),
		IsSplitOrder: len(subTotals) > 1,
	}).Error)
	for i, total := range subTotals {
		require.NoError(t, f.conn.Omit("Items").Create(&models.SubOrder{
			ID:             uuid.New(),
			MasterOrderID:  order.ID,
			SellerID:       uuid.New(),
			TrackingID:     "FL-" + uuid.NewString()[:8],
			Position:       i,
			Status:         status,
			Currency:       "KES",
			SubtotalAmount: total,
			TotalAmount:    total,
		}).Error)
	}
	return order
}

func (o seededOrder) buyer() types.Actor {
	return types.Actor{UserID: o.BuyerID, Role: enums.ActorRoleBuyer}
}

func (o seededOrder) input(method enums.PaymentMethod) CreateIntentInput {
	return CreateIntentInput{
		OrderID: o.ID,
		Actor:   o.buyer(),
		Amount:  money.New(o.Total, "KES"),
		Method:  method,
		Phone:   "+254700000001",
	}
}

func (f *fixture) intent(t *testing.T, id uuid.UUID) *models.PaymentIntent {
	t.Helper()
	intent, err := NewRepository(f.conn).FindByID(context.Background(), id)
	require.NoError(t, err)
	return intent
}

func (f *fixture) orderStatus(t *testing.T, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.MasterOrder
	require.NoError(t, f.conn.Where("id = ?", id).First(&order).Error)
	return order.Status
}

func (f *fixture) reserveStatus(t *testing.T, id uuid.UUID) enums.ReserveStatus {
	t.Helper()
	status, err := f.ledger.Status(context.Background(), nil, id)
	require.NoError(t, err)
	return status
}

func (f *fixture) balance(t *testing.T, account uuid.UUID) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), account, "KES")
	require.NoError(t, err)
	return b.Amount
}

func (f *fixture) topUp(t *testing.T, account uuid.UUID, amount int64) {
	t.Helper()
	_, err := f.ledger.TopUp(context.Background(), ledger.EntryInput{
		AccountID: account,
		Amount:    money.New(amount, "KES"),
		Reference: "topup:" + uuid.NewString(),
	})
	require.NoError(t, err)
}

func (f *fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestCreateMobileMoneyIntentStartsPolling(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending, 30000, 45000)

	var seen providers.InitiateRequest
	f.mobile.initiate = func(_ context.Context, req providers.InitiateRequest) (string, error) {
		seen = req
		return "MM-REF-1", nil
	}

	intent, err := f.svc.CreateIntent(context.Background(), order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusProcessing, intent.Status)
	require.Equal(t, 0, intent.RetryCount)
	require.Equal(t, int64(75000), intent.Amount)

	require.Equal(t, intent.ID, seen.IntentID)
	require.Equal(t, "+254700000001", seen.Phone)
	require.Equal(t, int64(75000), seen.Amount.Amount)

	stored := f.intent(t, intent.ID)
	require.NotNil(t, stored.ProviderReference)
	require.Equal(t, "MM-REF-1", *stored.ProviderReference)

	require.Len(t, f.tracker.jobs, 1)
	job := f.tracker.jobs[0]
	require.Equal(t, intent.ID, job.IntentID)
	require.Equal(t, "MM-REF-1", job.ProviderRef)
	require.False(t, job.CreatedAt.IsZero())

	// No funds move until the provider confirms.
	require.Equal(t, enums.ReserveStatusNone, f.reserveStatus(t, order.ID))
	require.Equal(t, enums.OrderStatusPending, f.orderStatus(t, order.ID))
}

func TestCreateIntentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.seedOrder(t, enums.OrderStatusPending, 50000)
	confirmed := f.seedOrder(t, enums.OrderStatusConfirmed, 50000)

	tests := []struct {
		name   string
		mutate func(in *CreateIntentInput)
		code   pkgerrors.Code
	}{
		{"missing phone", func(in *CreateIntentInput) { in.Phone = "" }, pkgerrors.CodeValidation},
		{"unknown method", func(in *CreateIntentInput) { in.Method = "barter" }, pkgerrors.CodeValidation},
		{"card without source", func(in *CreateIntentInput) { in.Method = enums.PaymentMethodCard }, pkgerrors.CodeValidation},
		{"card not configured", func(in *CreateIntentInput) {
			in.Method = enums.PaymentMethodCard
			in.SourceID = "cnon:card-nonce-ok"
		}, pkgerrors.CodeValidation},
		{"zero amount", func(in *CreateIntentInput) { in.Amount = money.New(0, "KES") }, pkgerrors.CodeValidation},
		{"amount differs from total", func(in *CreateIntentInput) { in.Amount = money.New(49999, "KES") }, pkgerrors.CodeValidation},
		{"currency differs", func(in *CreateIntentInput) { in.Amount = money.New(50000, "UGX") }, pkgerrors.CodeValidation},
		{"seller cannot pay", func(in *CreateIntentInput) { in.Actor.Role = enums.ActorRoleSeller }, pkgerrors.CodeForbidden},
		{"another buyer", func(in *CreateIntentInput) { in.Actor.UserID = uuid.New() }, pkgerrors.CodeNotFound},
		{"unknown order", func(in *CreateIntentInput) { in.OrderID = uuid.New() }, pkgerrors.CodeNotFound},
		{"order already paid", func(in *CreateIntentInput) {
			in.OrderID = confirmed.ID
			in.Actor.UserID = confirmed.BuyerID
		}, pkgerrors.CodeStateConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := pending.input(enums.PaymentMethodMobileMoney)
			tc.mutate(&in)
			_, err := f.svc.CreateIntent(ctx, in)
			require.Error(t, err)
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	var n int64
	require.NoError(t, f.conn.Model(&models.PaymentIntent{}).Count(&n).Error)
	require.Zero(t, n)
	require.Empty(t, f.tracker.jobs)
}

func TestCreateIntentRejectsSecondActiveIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 50000)

	first, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)

	_, err = f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Equal(t, map[string]any{"intent_id": first.ID}, pkgerrors.As(err).Details())
}

func TestMobileMoneyTimeoutThenRetryBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 50000)

	for attempt := 1; attempt <= 3; attempt++ {
		intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
		require.NoError(t, err)
		require.Equal(t, attempt-1, intent.RetryCount)

		require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Failed(enums.FailureProviderTimeout)))

		stored := f.intent(t, intent.ID)
		require.Equal(t, enums.PaymentStatusFailed, stored.Status)
		require.Equal(t, attempt, stored.RetryCount)
		require.NotNil(t, stored.FailureReason)
		require.Equal(t, enums.FailureProviderTimeout, *stored.FailureReason)
		require.NotNil(t, stored.ResolvedAt)
		require.Equal(t, enums.ReserveStatusNone, f.reserveStatus(t, order.ID))
	}

	_, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRetriesExhausted))
	require.Equal(t, int64(3), f.countEvents(t, enums.EventPaymentFailed))
	require.Equal(t, enums.OrderStatusPending, f.orderStatus(t, order.ID))
}

func TestBuyerCancellationsDoNotCountAgainstRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 50000)

	for i := 0; i < 4; i++ {
		intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
		require.NoError(t, err)
		require.Zero(t, intent.RetryCount)

		cancelled, err := f.svc.Cancel(ctx, intent.ID, order.buyer())
		require.NoError(t, err)
		require.Equal(t, enums.FailureUserCancelled, *cancelled.FailureReason)
		require.Zero(t, f.intent(t, intent.ID).RetryCount)
	}

	// A provider failure still uses up an attempt.
	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Failed(enums.FailureProviderDeclined)))
	require.Equal(t, 1, f.intent(t, intent.ID).RetryCount)

	next, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	require.Equal(t, 1, next.RetryCount)
}

func TestResolveSuccessHoldsAndConfirmsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 30000, 45000)

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)

	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Succeeded()))
	require.Equal(t, enums.PaymentStatusSuccess, f.intent(t, intent.ID).Status)
	require.Equal(t, enums.ReserveStatusHeld, f.reserveStatus(t, order.ID))
	require.Equal(t, enums.OrderStatusConfirmed, f.orderStatus(t, order.ID))

	// Later outcomes for the same intent are dropped.
	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Succeeded()))
	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Failed(enums.FailureProviderTimeout)))
	require.Equal(t, enums.PaymentStatusSuccess, f.intent(t, intent.ID).Status)

	var holds int64
	require.NoError(t, f.conn.Model(&models.ReserveEntry{}).Where("order_id = ?", order.ID).Count(&holds).Error)
	require.Equal(t, int64(1), holds)
	require.Equal(t, int64(1), f.countEvents(t, enums.EventPaymentSucceeded))
	require.Zero(t, f.countEvents(t, enums.EventPaymentFailed))
}

func TestWalletIntentDebitsAndHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 50000)
	f.topUp(t, order.BuyerID, 60000)

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodWallet))
	require.NoError(t, err)
	require.Nil(t, intent.ProviderReference)
	require.Equal(t, int64(10000), f.balance(t, order.BuyerID))
	require.Len(t, f.tracker.jobs, 1)
	require.Equal(t, enums.PaymentMethodWallet, f.tracker.jobs[0].Method)

	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Succeeded()))
	require.Equal(t, enums.ReserveStatusHeld, f.reserveStatus(t, order.ID))
	require.Equal(t, enums.OrderStatusConfirmed, f.orderStatus(t, order.ID))
	require.Equal(t, int64(10000), f.balance(t, order.BuyerID))
}

func TestWalletIntentInsufficientBalanceWritesNothing(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending, 50000)
	f.topUp(t, order.BuyerID, 100)

	_, err := f.svc.CreateIntent(context.Background(), order.input(enums.PaymentMethodWallet))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	var n int64
	require.NoError(t, f.conn.Model(&models.PaymentIntent{}).Count(&n).Error)
	require.Zero(t, n)
	require.Equal(t, int64(100), f.balance(t, order.BuyerID))
	require.Empty(t, f.tracker.jobs)
}

func TestCancelWalletIntentReversesDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 50000)
	f.topUp(t, order.BuyerID, 50000)

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodWallet))
	require.NoError(t, err)
	require.Zero(t, f.balance(t, order.BuyerID))

	cancelled, err := f.svc.Cancel(ctx, intent.ID, order.buyer())
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, cancelled.Status)
	require.Equal(t, enums.FailureUserCancelled, *cancelled.FailureReason)
	require.Equal(t, []uuid.UUID{intent.ID}, f.tracker.cancelled)
	require.Equal(t, int64(50000), f.balance(t, order.BuyerID))
	require.Equal(t, enums.ReserveStatusNone, f.reserveStatus(t, order.ID))

	_, err = f.svc.Cancel(ctx, intent.ID, order.buyer())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	stranger := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	_, err = f.svc.Cancel(ctx, intent.ID, stranger)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCashOnDeliveryNeverHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 20000)

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodCashOnDelivery))
	require.NoError(t, err)
	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Succeeded()))

	require.Equal(t, enums.OrderStatusConfirmed, f.orderStatus(t, order.ID))
	require.Equal(t, enums.ReserveStatusNone, f.reserveStatus(t, order.ID))
	require.Zero(t, f.balance(t, order.BuyerID))
}

func TestInitiateFailureFailsIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 20000)
	f.mobile.initiate = func(context.Context, providers.InitiateRequest) (string, error) {
		return "", errors.New("gateway down")
	}

	_, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Empty(t, f.tracker.jobs)

	var intent models.PaymentIntent
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).First(&intent).Error)
	require.Equal(t, enums.PaymentStatusFailed, intent.Status)
	require.Equal(t, enums.FailureProviderError, *intent.FailureReason)
	require.Equal(t, 1, intent.RetryCount)

	// The failed attempt counts against the bound but a retry is allowed.
	f.mobile.initiate = nil
	retry, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	require.Equal(t, 1, retry.RetryCount)
}

func TestCancelForOrderFailsProcessingIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 20000)

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.CancelForOrder(ctx, tx, order.ID)
	}))
	stored := f.intent(t, intent.ID)
	require.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.Equal(t, enums.FailureUserCancelled, *stored.FailureReason)
	require.Equal(t, []string{*stored.ProviderReference}, f.mobile.voided)
	require.Equal(t, []uuid.UUID{intent.ID}, f.tracker.cancelled)

	// Nothing in flight is fine.
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.CancelForOrder(ctx, tx, order.ID)
	}))
}

func TestLatePaymentOnCancelledOrderIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 20000)

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.MasterOrder{}).
		Where("id = ?", order.ID).
		Update("status", enums.OrderStatusCancelled).Error)

	require.NoError(t, f.resolver.Resolve(ctx, intent.ID, poller.Succeeded()))
	require.Equal(t, enums.OrderStatusCancelled, f.orderStatus(t, order.ID))
	require.Equal(t, enums.ReserveStatusRefunded, f.reserveStatus(t, order.ID))
	require.Equal(t, int64(20000), f.balance(t, order.BuyerID))
}

func TestFailStaleAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.seedOrder(t, enums.OrderStatusPending, 10000)
	fresh := f.seedOrder(t, enums.OrderStatusPending, 10000)

	oldIntent, err := f.svc.CreateIntent(ctx, old.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	freshIntent, err := f.svc.CreateIntent(ctx, fresh.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.PaymentIntent{}).
		Where("id = ?", oldIntent.ID).
		Update("created_at", time.Now().Add(-10*time.Minute)).Error)

	resumed, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, resumed)
	require.Len(t, f.tracker.jobs, 4)

	n, err := f.svc.FailStale(ctx, time.Now().Add(-5*time.Minute), 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stale := f.intent(t, oldIntent.ID)
	require.Equal(t, enums.PaymentStatusFailed, stale.Status)
	require.Equal(t, enums.FailureStale, *stale.FailureReason)
	require.Equal(t, enums.PaymentStatusProcessing, f.intent(t, freshIntent.ID).Status)
}

func TestPollStatusReadsProviderWithoutResolving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, 10000)
	f.mobile.status = func(context.Context, string) (providers.Status, error) {
		return providers.StatusSucceeded, nil
	}

	intent, err := f.svc.CreateIntent(ctx, order.input(enums.PaymentMethodMobileMoney))
	require.NoError(t, err)

	view, err := f.svc.PollStatus(ctx, intent.ID, order.buyer())
	require.NoError(t, err)
	require.Equal(t, providers.StatusSucceeded, view.ProviderStatus)
	require.Equal(t, enums.PaymentStatusProcessing, view.Intent.Status)
	require.Equal(t, enums.OrderStatusPending, f.orderStatus(t, order.ID))

	_, err = f.svc.PollStatus(ctx, intent.ID, types.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
