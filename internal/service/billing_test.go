package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	createOrderErr error
	captureErr     error
	createSubErr   error
	cancelErr      error
	vendorStatus   string
	beforeCapture  func()

	calls     []string
	cancelled []string
}

func (g *fakeGateway) AcquireAccessToken(context.Context) (*payment.Token, error) {
	g.calls = append(g.calls, "token")
	return &payment.Token{AccessToken: "tok", ExpiresIn: 3600}, nil
}

func (g *fakeGateway) CreateOrder(_ context.Context, plan domain.Plan) (*payment.OrderResult, error) {
	g.calls = append(g.calls, "createOrder:"+plan.ID)
	if g.createOrderErr != nil {
		return nil, g.createOrderErr
	}
	return &payment.OrderResult{ID: "ORDER-1", Status: domain.OrderCreated, ApproveURL: "https://paypal/approve"}, nil
}

func (g *fakeGateway) CaptureOrder(_ context.Context, orderID string) (*payment.CaptureResult, error) {
	g.calls = append(g.calls, "capture:"+orderID)
	if g.beforeCapture != nil {
		g.beforeCapture()
	}
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &payment.CaptureResult{OrderID: orderID, Status: domain.OrderCaptured}, nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, vendorPlanID, customID string) (*payment.SubscriptionResult, error) {
	g.calls = append(g.calls, "createSub:"+vendorPlanID+":"+customID)
	if g.createSubErr != nil {
		return nil, g.createSubErr
	}
	return &payment.SubscriptionResult{ID: "I-NEW", Status: payment.SubscriptionApprovalPending, ApproveURL: "https://paypal/sub"}, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*payment.SubscriptionResult, error) {
	g.calls = append(g.calls, "getSub:"+id)
	status := g.vendorStatus
	if status == "" {
		status = payment.SubscriptionActive
	}
	return &payment.SubscriptionResult{ID: id, Status: status}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id, _ string) error {
	g.calls = append(g.calls, "cancel:"+id)
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, id)
	return nil
}

type fakeSubs struct {
	byID      map[string]*domain.Subscription
	createErr error
}

func newFakeSubs(subs ...*domain.Subscription) *fakeSubs {
	f := &fakeSubs{byID: map[string]*domain.Subscription{}}
	for _, s := range subs {
		f.byID[s.ID] = s
	}
	return f
}

func (f *fakeSubs) Create(_ context.Context, sub *domain.Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.byID[sub.ID] = sub
	return nil
}

func (f *fakeSubs) FindByUserAndStatus(_ context.Context, userID, status string) (*domain.Subscription, error) {
	for _, s := range f.byID {
		if s.UserID == userID && s.Status == status {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubs) FindByProviderID(_ context.Context, providerID string) (*domain.Subscription, error) {
	for _, s := range f.byID {
		if s.PaymentProviderID == providerID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubs) UpdateStatus(_ context.Context, id, status string) error {
	f.byID[id].Status = status
	return nil
}

func (f *fakeSubs) Activate(_ context.Context, id string, start, end time.Time) (bool, error) {
	s, ok := f.byID[id]
	if !ok || s.Status != domain.SubscriptionPending {
		return false, nil
	}
	s.Status = domain.SubscriptionActive
	s.CurrentPeriodStart, s.CurrentPeriodEnd = start, end
	return true, nil
}

func (f *fakeSubs) countStatus(status string) int {
	n := 0
	for _, s := range f.byID {
		if s.Status == status {
			n++
		}
	}
	return n
}

type fakeOrders struct {
	byID map[string]*domain.Order
}

func (f *fakeOrders) Create(_ context.Context, o *domain.Order) error {
	f.byID[o.ID] = o
	return nil
}

// FindByID returns a copy, like a fresh database read.
func (f *fakeOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id, status string) (bool, error) {
	o := f.byID[id]
	if o.Status == domain.OrderCaptured {
		return false, nil
	}
	o.Status = status
	return true, nil
}

type fakePlanLog struct {
	entries []*domain.PlanChangeLog
}

func (f *fakePlanLog) Append(_ context.Context, l *domain.PlanChangeLog) error {
	f.entries = append(f.entries, l)
	return nil
}

func (f *fakePlanLog) ListByUser(_ context.Context, userID string) ([]*domain.PlanChangeLog, error) {
	var out []*domain.PlanChangeLog
	for _, l := range f.entries {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakePlanLog) statuses() []string {
	out := make([]string, 0, len(f.entries))
	for _, l := range f.entries {
		out = append(out, l.Status)
	}
	return out
}

type fakePlanUsers struct {
	users map[string]*domain.User
}

func (f *fakePlanUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	return f.users[id], nil
}

func (f *fakePlanUsers) UpdatePlan(_ context.Context, id, plan string) error {
	f.users[id].Plan = plan
	return nil
}

type fakeConnector struct {
	connected []string
}

func (f *fakeConnector) ConnectReferral(_ context.Context, email, planID string) error {
	f.connected = append(f.connected, email+":"+planID)
	return nil
}

type billingFixture struct {
	gw     *fakeGateway
	subs   *fakeSubs
	orders *fakeOrders
	log    *fakePlanLog
	users  *fakePlanUsers
	refs   *fakeConnector
	svc    *BillingService
}

func newBillingFixture(subs ...*domain.Subscription) *billingFixture {
	f := &billingFixture{
		gw:     &fakeGateway{},
		subs:   newFakeSubs(subs...),
		orders: &fakeOrders{byID: map[string]*domain.Order{}},
		log:    &fakePlanLog{},
		users:  &fakePlanUsers{users: map[string]*domain.User{"u1": {ID: "u1", Email: "ana@example.com", Plan: domain.FreePlanID}}},
		refs:   &fakeConnector{},
	}
	f.svc = NewBillingService(f.gw, f.subs, f.orders, f.log, f.users, f.refs, map[string]string{
		"starter":  "P-STARTER",
		"pro":      "P-PRO",
		"business": "P-BUSINESS",
	})
	return f
}

func activeSub(id, plan, vendorID string, recurring bool) *domain.Subscription {
	return &domain.Subscription{
		ID:                id,
		UserID:            "u1",
		Plan:              plan,
		Status:            domain.SubscriptionActive,
		PaymentProviderID: vendorID,
		Recurring:         recurring,
	}
}

func TestCreateOrder_UnknownPlanSkipsVendor(t *testing.T) {
	f := newBillingFixture()

	_, err := f.svc.CreateOrder(context.Background(), "u1", "platinum")
	assert.True(t, domain.IsKind(err, domain.KindPlanNotFound))
	assert.Empty(t, f.gw.calls)
}

func TestCreateOrder(t *testing.T) {
	f := newBillingFixture()

	order, err := f.svc.CreateOrder(context.Background(), "u1", "pro")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	assert.Equal(t, int64(4900), order.AmountMinorUnits)
	assert.Equal(t, "https://paypal/approve", order.ApproveURL)
	assert.Equal(t, "u1", f.orders.byID["ORDER-1"].UserID)
}

func TestCaptureOrder(t *testing.T) {
	f := newBillingFixture()
	_, err := f.svc.CreateOrder(context.Background(), "u1", "pro")
	require.NoError(t, err)

	res, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "pro", res.Plan)
	assert.Equal(t, domain.OrderCaptured, f.orders.byID["ORDER-1"].Status)
	assert.Equal(t, "pro", f.users.users["u1"].Plan)
	assert.Equal(t, []string{"ana@example.com:pro"}, f.refs.connected)

	sub, err := f.svc.GetSubscription(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.False(t, sub.Recurring)
	assert.Equal(t, "ORDER-1", sub.PaymentProviderID)

	_, err = f.svc.CaptureOrder(context.Background(), "u1", "ORDER-1")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
}

func TestCaptureOrder_OtherUsersOrder(t *testing.T) {
	f := newBillingFixture()
	f.orders.byID["ORDER-9"] = &domain.Order{ID: "ORDER-9", UserID: "u2", PlanID: "pro", Status: domain.OrderApproved}

	_, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-9")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
	assert.Empty(t, f.gw.calls)
}

func TestCaptureOrder_VendorRejects(t *testing.T) {
	f := newBillingFixture()
	f.orders.byID["ORDER-2"] = &domain.Order{ID: "ORDER-2", UserID: "u1", PlanID: "pro", Status: domain.OrderApproved}
	f.gw.captureErr = domain.BusinessError("CAPTURE_NOT_COMPLETED", "payment was not completed")

	_, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-2")
	assert.True(t, domain.IsKind(err, domain.KindVendor))
	assert.Equal(t, domain.OrderFailed, f.orders.byID["ORDER-2"].Status)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
}

func TestSubscribe(t *testing.T) {
	f := newBillingFixture()

	sub, err := f.svc.Subscribe(context.Background(), "u1", "starter")
	require.NoError(t, err)
	assert.True(t, sub.Recurring)
	assert.Equal(t, domain.SubscriptionPending, sub.Status)
	assert.Equal(t, "I-NEW", sub.PaymentProviderID)
	assert.Equal(t, "https://paypal/sub", sub.ApproveURL)
	assert.Equal(t, []string{"createSub:P-STARTER:u1"}, f.gw.calls)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
	assert.Empty(t, f.refs.connected)

	confirmed, err := f.svc.ConfirmSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, confirmed.Status)
	assert.Equal(t, "starter", f.users.users["u1"].Plan)
	assert.Equal(t, []string{"ana@example.com:starter"}, f.refs.connected)

	_, err = f.svc.ConfirmSubscription(context.Background(), "u1")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

func TestSubscribe_RejectsWhileActive(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "starter", "I-OLD", true))

	_, err := f.svc.Subscribe(context.Background(), "u1", "pro")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Code)
	assert.Contains(t, appErr.Message, "/api/payment/subscription/change")
	assert.Empty(t, f.gw.calls)
	assert.Equal(t, 1, f.subs.countStatus(domain.SubscriptionActive))
}

func TestSubscribe_SupersedesUnapproved(t *testing.T) {
	stale := activeSub("s0", "pro", "I-STALE", true)
	stale.Status = domain.SubscriptionPending
	f := newBillingFixture(stale)

	_, err := f.svc.Subscribe(context.Background(), "u1", "starter")
	require.NoError(t, err)
	assert.Equal(t, []string{"cancel:I-STALE", "createSub:P-STARTER:u1"}, f.gw.calls)
	assert.Equal(t, domain.SubscriptionCancelled, f.subs.byID["s0"].Status)
	assert.Equal(t, 1, f.subs.countStatus(domain.SubscriptionPending))
}

func TestConfirmSubscription_NotApprovedYet(t *testing.T) {
	f := newBillingFixture()
	f.gw.vendorStatus = payment.SubscriptionApprovalPending
	_, err := f.svc.Subscribe(context.Background(), "u1", "pro")
	require.NoError(t, err)

	_, err = f.svc.ConfirmSubscription(context.Background(), "u1")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Code)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
	assert.Equal(t, 1, f.subs.countStatus(domain.SubscriptionPending))
}

func TestConfirmSubscription_CancelledAtVendor(t *testing.T) {
	f := newBillingFixture()
	f.gw.vendorStatus = "CANCELLED"
	_, err := f.svc.Subscribe(context.Background(), "u1", "pro")
	require.NoError(t, err)

	_, err = f.svc.ConfirmSubscription(context.Background(), "u1")
	assert.True(t, domain.IsKind(err, domain.KindVendor))
	assert.Equal(t, 0, f.subs.countStatus(domain.SubscriptionPending))
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
}

func TestCreateOrder_RejectsWhileActive(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "starter", "I-OLD", true))

	_, err := f.svc.CreateOrder(context.Background(), "u1", "pro")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Code)
	assert.Empty(t, f.gw.calls)
}

func TestCaptureOrder_RejectsWhileActive(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "starter", "I-OLD", true))
	f.orders.byID["ORDER-3"] = &domain.Order{ID: "ORDER-3", UserID: "u1", PlanID: "pro", Status: domain.OrderApproved}

	_, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-3")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Code)
	assert.Empty(t, f.gw.calls)
	assert.Equal(t, 1, f.subs.countStatus(domain.SubscriptionActive))
	assert.Equal(t, domain.OrderApproved, f.orders.byID["ORDER-3"].Status)
}

func TestCaptureOrder_LosingRaceKeepsCompleted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"already captured", domain.BusinessError("ORDER_ALREADY_CAPTURED", "Order already captured."), 400},
		{"other vendor error", domain.BusinessError("CAPTURE_NOT_COMPLETED", "payment was not completed"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBillingFixture()
			f.orders.byID["ORDER-4"] = &domain.Order{ID: "ORDER-4", UserID: "u1", PlanID: "pro", Status: domain.OrderApproved}

			// A concurrent request finishes the capture while this one waits on the vendor.
			f.gw.beforeCapture = func() {
				f.orders.byID["ORDER-4"].Status = domain.OrderCaptured
				f.subs.byID["s-won"] = &domain.Subscription{ID: "s-won", UserID: "u1", Plan: "pro", Status: domain.SubscriptionActive, PaymentProviderID: "ORDER-4"}
			}
			f.gw.captureErr = tt.err

			_, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-4")
			require.Error(t, err)
			if tt.code != 0 {
				appErr, ok := domain.AsAppError(err)
				require.True(t, ok)
				assert.Equal(t, tt.code, appErr.Code)
			}
			assert.Equal(t, domain.OrderCaptured, f.orders.byID["ORDER-4"].Status)
			assert.Equal(t, 1, f.subs.countStatus(domain.SubscriptionActive))
		})
	}
}

func TestCaptureOrder_GrantFailureIsResumable(t *testing.T) {
	f := newBillingFixture()
	f.orders.byID["ORDER-5"] = &domain.Order{ID: "ORDER-5", UserID: "u1", PlanID: "pro", Status: domain.OrderApproved}
	f.subs.createErr = errors.New("connection reset")

	_, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-5")
	require.Error(t, err)
	assert.Equal(t, domain.OrderCaptured, f.orders.byID["ORDER-5"].Status)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
	require.Len(t, f.log.entries, 1)
	assert.Equal(t, "ORDER-5", f.log.entries[0].SagaID)
	assert.Equal(t, domain.PlanChangeFailed, f.log.entries[0].Status)

	f.subs.createErr = nil
	res, err := f.svc.CaptureOrder(context.Background(), "u1", "ORDER-5")
	require.NoError(t, err)
	assert.Equal(t, "pro", res.Plan)
	assert.Equal(t, "pro", f.users.users["u1"].Plan)
	assert.Equal(t, []string{"capture:ORDER-5"}, f.gw.calls)
	assert.Equal(t, []string{domain.PlanChangeFailed, domain.PlanChangeCompleted}, f.log.statuses())
}

func TestCancelSubscription(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "pro", "I-OLD", true))
	f.users.users["u1"].Plan = "pro"

	require.NoError(t, f.svc.CancelSubscription(context.Background(), "u1", ""))
	assert.Equal(t, []string{"I-OLD"}, f.gw.cancelled)
	assert.Equal(t, domain.SubscriptionCancelled, f.subs.byID["s1"].Status)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
}

func TestCancelSubscription_OneTimeSkipsVendor(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "pro", "ORDER-1", false))

	require.NoError(t, f.svc.CancelSubscription(context.Background(), "u1", ""))
	assert.Empty(t, f.gw.calls)
	assert.Equal(t, domain.SubscriptionCancelled, f.subs.byID["s1"].Status)
}

func TestCancelSubscription_NoneActive(t *testing.T) {
	f := newBillingFixture()

	err := f.svc.CancelSubscription(context.Background(), "u1", "")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

func TestChangePlan(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "starter", "I-OLD", true))

	res, err := f.svc.ChangePlan(context.Background(), "u1", "pro")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanChangeCompleted, res.Status)
	assert.Equal(t, "s1", res.PreviousID)
	assert.Empty(t, res.CancelError)
	assert.Equal(t, "pro", res.Subscription.Plan)
	assert.Equal(t, []string{"cancel:I-OLD", "createSub:P-PRO:u1"}, f.gw.calls)
	assert.Equal(t, domain.SubscriptionPending, res.Subscription.Status)
	assert.Equal(t, domain.SubscriptionCancelled, f.subs.byID["s1"].Status)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
	assert.Equal(t, []string{
		domain.PlanChangeStarted,
		domain.PlanChangeCancelDone,
		domain.PlanChangeCreateDone,
		domain.PlanChangeCompleted,
	}, f.log.statuses())

	sagaID := f.log.entries[0].SagaID
	for _, e := range f.log.entries {
		assert.Equal(t, sagaID, e.SagaID)
	}

	_, err = f.svc.ConfirmSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", f.users.users["u1"].Plan)
	assert.Equal(t, 1, f.subs.countStatus(domain.SubscriptionActive))
}

func TestChangePlan_CancelFailureDoesNotBlock(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "starter", "I-OLD", true))
	f.gw.cancelErr = domain.BusinessError("SUBSCRIPTION_CANCEL_FAILED", "could not cancel")

	res, err := f.svc.ChangePlan(context.Background(), "u1", "business")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanChangeCompleted, res.Status)
	assert.Contains(t, res.CancelError, "SUBSCRIPTION_CANCEL_FAILED")
	assert.Equal(t, "I-NEW", res.Subscription.PaymentProviderID)
	assert.Equal(t, []string{
		domain.PlanChangeStarted,
		domain.PlanChangeCancelFailed,
		domain.PlanChangeCreateDone,
		domain.PlanChangeCompleted,
	}, f.log.statuses())
}

func TestChangePlan_CreateFailure(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "starter", "I-OLD", true))
	f.users.users["u1"].Plan = "starter"
	f.gw.createSubErr = domain.TransportError("could not reach payment service", errors.New("timeout"))

	_, err := f.svc.ChangePlan(context.Background(), "u1", "pro")
	assert.True(t, domain.IsKind(err, domain.KindTransport))
	assert.Equal(t, domain.PlanChangeFailed, f.log.statuses()[len(f.log.entries)-1])
	assert.Equal(t, domain.SubscriptionCancelled, f.subs.byID["s1"].Status)
	assert.Equal(t, domain.FreePlanID, f.users.users["u1"].Plan)
}

func TestChangePlan_SamePlan(t *testing.T) {
	f := newBillingFixture(activeSub("s1", "pro", "I-OLD", true))

	_, err := f.svc.ChangePlan(context.Background(), "u1", "pro")
	_, ok := domain.AsAppError(err)
	assert.True(t, ok)
	assert.Empty(t, f.gw.calls)
	assert.Empty(t, f.log.entries)
}

func TestChangePlan_UnknownPlan(t *testing.T) {
	f := newBillingFixture()

	_, err := f.svc.ChangePlan(context.Background(), "u1", "gold")
	assert.True(t, domain.IsKind(err, domain.KindPlanNotFound))
	assert.Empty(t, f.gw.calls)
}

func TestPlanChangeHistory(t *testing.T) {
	f := newBillingFixture()
	_, err := f.svc.ChangePlan(context.Background(), "u1", "starter")
	require.NoError(t, err)

	logs, err := f.svc.PlanChangeHistory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, logs, 4)
}
