package service

import (
	"context"
	"testing"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/repository"
	"github.com/affiliatehub/backend/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCipherKey = "0123456789abcdef0123456789abcdef"

type fakeReferrals struct {
	byEmail map[string]*domain.Referral
}

func (f *fakeReferrals) Create(_ context.Context, ref *domain.Referral) error {
	if _, ok := f.byEmail[ref.ReferredEmail]; !ok {
		f.byEmail[ref.ReferredEmail] = ref
	}
	return nil
}

func (f *fakeReferrals) FindByEmail(_ context.Context, email string) (*domain.Referral, error) {
	return f.byEmail[email], nil
}

func (f *fakeReferrals) Connect(_ context.Context, id string, commission int64) (bool, error) {
	for _, r := range f.byEmail {
		if r.ID == id && r.Status == domain.ReferralPending {
			r.Status = domain.ReferralConnected
			r.CommissionCents = commission
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReferrals) ListByReferrer(_ context.Context, referrerID string) ([]*domain.Referral, error) {
	var out []*domain.Referral
	for _, r := range f.byEmail {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReferrals) Stats(_ context.Context, referrerID string) (*repository.ReferralStats, error) {
	stats := &repository.ReferralStats{}
	for _, r := range f.byEmail {
		if r.ReferrerID != referrerID {
			continue
		}
		stats.Total++
		if r.Status == domain.ReferralConnected {
			stats.Connected++
			stats.EarnedCents += r.CommissionCents
		}
	}
	return stats, nil
}

type fakePayouts struct {
	byID map[string]*domain.Payout
	refs *fakeReferrals
	// beforeCreate runs between the balance read and the insert.
	beforeCreate func()
}

func (f *fakePayouts) CreateWithinBalance(ctx context.Context, p *domain.Payout) (bool, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	stats, _ := f.refs.Stats(ctx, p.UserID)
	paid, pending, _ := f.Totals(ctx, p.UserID)
	if stats.EarnedCents-paid-pending < p.AmountCents {
		return false, nil
	}
	f.byID[p.ID] = p
	return true, nil
}

func (f *fakePayouts) FindByID(_ context.Context, id string) (*domain.Payout, error) {
	return f.byID[id], nil
}

func (f *fakePayouts) List(_ context.Context, userID, status string) ([]*domain.Payout, error) {
	var out []*domain.Payout
	for _, p := range f.byID {
		if (userID == "" || p.UserID == userID) && (status == "" || p.Status == status) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayouts) Totals(_ context.Context, userID string) (paid, pending int64, err error) {
	for _, p := range f.byID {
		if p.UserID != userID {
			continue
		}
		if p.Status == domain.StatusProcessed {
			paid += p.AmountCents
		} else {
			pending += p.AmountCents
		}
	}
	return paid, pending, nil
}

func (f *fakePayouts) MarkProcessed(_ context.Context, id string) (bool, error) {
	p, ok := f.byID[id]
	if !ok || p.Status != domain.StatusPending {
		return false, nil
	}
	p.Status = domain.StatusProcessed
	return true, nil
}

type fakeRefunds struct {
	byID map[string]*domain.RefundRequest
}

func (f *fakeRefunds) Create(_ context.Context, r *domain.RefundRequest) error {
	f.byID[r.ID] = r
	return nil
}

func (f *fakeRefunds) FindByID(_ context.Context, id string) (*domain.RefundRequest, error) {
	return f.byID[id], nil
}

func (f *fakeRefunds) List(_ context.Context, userID, status string) ([]*domain.RefundRequest, error) {
	var out []*domain.RefundRequest
	for _, r := range f.byID {
		if (userID == "" || r.UserID == userID) && (status == "" || r.Status == status) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRefunds) MarkProcessed(_ context.Context, id string) (bool, error) {
	r, ok := f.byID[id]
	if !ok || r.Status != domain.StatusPending {
		return false, nil
	}
	r.Status = domain.StatusProcessed
	return true, nil
}

type fakeAffUsers struct {
	users map[string]*domain.User
}

func (f *fakeAffUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	return f.users[id], nil
}

func (f *fakeAffUsers) FindByReferralCode(_ context.Context, code string) (*domain.User, error) {
	for _, u := range f.users {
		if u.ReferralCode == code {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAffUsers) SetPayoutEmail(_ context.Context, id, encrypted string) error {
	f.users[id].PayoutEmail = encrypted
	return nil
}

type affiliateFixture struct {
	refs    *fakeReferrals
	payouts *fakePayouts
	refunds *fakeRefunds
	users   *fakeAffUsers
	orders  *fakeOrders
	svc     *AffiliateService
}

func newAffiliateFixture(t *testing.T) *affiliateFixture {
	t.Helper()
	cipher, err := crypto.NewFieldCipher(testCipherKey)
	require.NoError(t, err)

	refs := &fakeReferrals{byEmail: map[string]*domain.Referral{}}
	f := &affiliateFixture{
		refs:    refs,
		payouts: &fakePayouts{byID: map[string]*domain.Payout{}, refs: refs},
		refunds: &fakeRefunds{byID: map[string]*domain.RefundRequest{}},
		users: &fakeAffUsers{users: map[string]*domain.User{
			"ref": {ID: "ref", Email: "mia@example.com", ReferralCode: "MIA23456"},
			"u1":  {ID: "u1", Email: "ana@example.com", ReferralCode: "ANA23456"},
		}},
		orders: &fakeOrders{byID: map[string]*domain.Order{}},
	}
	f.svc = NewAffiliateService(f.refs, f.payouts, f.refunds, f.users, f.orders, cipher)
	return f
}

func TestCommission(t *testing.T) {
	pro, _ := domain.GetPlan("pro")
	assert.Equal(t, int64(980), Commission(pro))
}

func TestRecordAndConnectReferral(t *testing.T) {
	f := newAffiliateFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RecordReferral(ctx, "mia23456", "New@Example.com"))
	ref := f.refs.byEmail["new@example.com"]
	require.NotNil(t, ref)
	assert.Equal(t, "ref", ref.ReferrerID)
	assert.Equal(t, domain.ReferralPending, ref.Status)

	require.NoError(t, f.svc.ConnectReferral(ctx, "new@example.com", "business"))
	assert.Equal(t, domain.ReferralConnected, ref.Status)
	assert.Equal(t, int64(1980), ref.CommissionCents)

	// A second purchase does not pay again.
	require.NoError(t, f.svc.ConnectReferral(ctx, "new@example.com", "pro"))
	assert.Equal(t, int64(1980), ref.CommissionCents)
}

func TestRecordReferral_IgnoresUnknownAndSelf(t *testing.T) {
	f := newAffiliateFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RecordReferral(ctx, "NOPE2345", "x@example.com"))
	require.NoError(t, f.svc.RecordReferral(ctx, "MIA23456", "mia@example.com"))
	require.NoError(t, f.svc.RecordReferral(ctx, "", "y@example.com"))
	assert.Empty(t, f.refs.byEmail)
}

func TestConnectReferral_NotReferred(t *testing.T) {
	f := newAffiliateFixture(t)
	assert.NoError(t, f.svc.ConnectReferral(context.Background(), "stranger@example.com", "pro"))
}

func TestDashboardAndPayout(t *testing.T) {
	f := newAffiliateFixture(t)
	ctx := context.Background()
	f.refs.byEmail["a@example.com"] = &domain.Referral{ID: "r1", ReferrerID: "ref", ReferredEmail: "a@example.com", Status: domain.ReferralConnected, CommissionCents: 1980}
	f.refs.byEmail["b@example.com"] = &domain.Referral{ID: "r2", ReferrerID: "ref", ReferredEmail: "b@example.com", Status: domain.ReferralPending}

	_, err := f.svc.RequestPayout(ctx, "ref", &domain.PayoutRequest{AmountCents: 1500})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Message, "payout email")

	masked, err := f.svc.SetPayoutEmail(ctx, "ref", &domain.PayoutEmailRequest{Email: "mia.pay@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "mi***@example.com", masked)
	assert.NotContains(t, f.users.users["ref"].PayoutEmail, "mia.pay")

	plain, err := f.svc.PayoutEmail(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "mia.pay@example.com", plain)

	p, err := f.svc.RequestPayout(ctx, "ref", &domain.PayoutRequest{AmountCents: 1500})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)

	dash, err := f.svc.Dashboard(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalReferrals)
	assert.Equal(t, 1, dash.ConnectedReferrals)
	assert.Equal(t, int64(1980), dash.EarnedCents)
	assert.Equal(t, int64(1500), dash.PendingPayoutCents)
	assert.Equal(t, int64(480), dash.AvailableCents)
	assert.True(t, dash.PayoutEmailSet)

	_, err = f.svc.RequestPayout(ctx, "ref", &domain.PayoutRequest{AmountCents: 1000})
	assert.Error(t, err, "exceeds available balance")

	processed, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, processed.Status)

	_, err = f.svc.ProcessPayout(ctx, p.ID)
	appErr, ok = domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
}

func TestRequestPayout_ConcurrentRequestSpendsBalance(t *testing.T) {
	f := newAffiliateFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RecordReferral(ctx, "MIA23456", "ana@example.com"))
	require.NoError(t, f.svc.ConnectReferral(ctx, "ana@example.com", "business"))
	_, err := f.svc.SetPayoutEmail(ctx, "ref", &domain.PayoutEmailRequest{Email: "mia.pay@example.com"})
	require.NoError(t, err)

	// A second request lands after this one read the dashboard.
	f.payouts.beforeCreate = func() {
		f.payouts.byID["other"] = &domain.Payout{ID: "other", UserID: "ref", AmountCents: 1500, Status: domain.StatusPending}
	}

	_, err = f.svc.RequestPayout(ctx, "ref", &domain.PayoutRequest{AmountCents: 1500})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "exceeds available balance")

	pending, err := f.svc.ListPayouts(ctx, "ref", domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRequestPayout_BelowMinimum(t *testing.T) {
	f := newAffiliateFixture(t)
	_, err := f.svc.RequestPayout(context.Background(), "ref", &domain.PayoutRequest{AmountCents: 500})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
}

func TestProcessPayout_NotFound(t *testing.T) {
	f := newAffiliateFixture(t)
	_, err := f.svc.ProcessPayout(context.Background(), "missing")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

func TestRefundLifecycle(t *testing.T) {
	f := newAffiliateFixture(t)
	ctx := context.Background()
	f.orders.byID["O1"] = &domain.Order{ID: "O1", UserID: "u1", Status: domain.OrderCaptured}
	f.orders.byID["O2"] = &domain.Order{ID: "O2", UserID: "u1", Status: domain.OrderCreated}
	f.orders.byID["O3"] = &domain.Order{ID: "O3", UserID: "ref", Status: domain.OrderCaptured}

	_, err := f.svc.RequestRefund(ctx, "u1", &domain.RefundRequestInput{OrderID: "O2", Reason: "changed my mind"})
	assert.Error(t, err)

	_, err = f.svc.RequestRefund(ctx, "u1", &domain.RefundRequestInput{OrderID: "O3", Reason: "changed my mind"})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)

	_, err = f.svc.RequestRefund(ctx, "u1", &domain.RefundRequestInput{OrderID: "O1", Reason: "no"})
	appErr, ok = domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 422, appErr.Code)

	r, err := f.svc.RequestRefund(ctx, "u1", &domain.RefundRequestInput{OrderID: "O1", Reason: "  did not need it  "})
	require.NoError(t, err)
	assert.Equal(t, "did not need it", r.Reason)

	pending, err := f.svc.ListRefunds(ctx, "", domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	done, err := f.svc.ProcessRefund(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, done.Status)

	_, err = f.svc.ProcessRefund(ctx, r.ID)
	assert.Error(t, err)
}
