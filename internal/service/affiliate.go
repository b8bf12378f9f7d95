package service

import (
	"context"
	"strings"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/repository"
	"github.com/affiliatehub/backend/pkg/crypto"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type referralStore interface {
	Create(ctx context.Context, ref *domain.Referral) error
	FindByEmail(ctx context.Context, email string) (*domain.Referral, error)
	Connect(ctx context.Context, id string, commissionCents int64) (bool, error)
	ListByReferrer(ctx context.Context, referrerID string) ([]*domain.Referral, error)
	Stats(ctx context.Context, referrerID string) (*repository.ReferralStats, error)
}

type payoutStore interface {
	CreateWithinBalance(ctx context.Context, p *domain.Payout) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Payout, error)
	List(ctx context.Context, userID, status string) ([]*domain.Payout, error)
	Totals(ctx context.Context, userID string) (paid, pending int64, err error)
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

type refundStore interface {
	Create(ctx context.Context, req *domain.RefundRequest) error
	FindByID(ctx context.Context, id string) (*domain.RefundRequest, error)
	List(ctx context.Context, userID, status string) ([]*domain.RefundRequest, error)
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

type affiliateUsers interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByReferralCode(ctx context.Context, code string) (*domain.User, error)
	SetPayoutEmail(ctx context.Context, id, encrypted string) error
}

type orderFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
}

// AffiliateService tracks referrals, commissions, payouts and refund requests.
type AffiliateService struct {
	referrals referralStore
	payouts   payoutStore
	refunds   refundStore
	users     affiliateUsers
	orders    orderFinder
	cipher    *crypto.FieldCipher
	validate  *validator.Validate
	now       func() time.Time
}

func NewAffiliateService(
	referrals referralStore,
	payouts payoutStore,
	refunds refundStore,
	users affiliateUsers,
	orders orderFinder,
	cipher *crypto.FieldCipher,
) *AffiliateService {
	return &AffiliateService{
		referrals: referrals,
		payouts:   payouts,
		refunds:   refunds,
		users:     users,
		orders:    orders,
		cipher:    cipher,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Commission returns the referrer's share of a plan price.
func Commission(plan domain.Plan) int64 {
	return plan.PriceCents * domain.CommissionPercent / 100
}

// RecordReferral stores a pending referral for a sign-up that used code.
// Unknown codes and self-referrals are ignored.
func (s *AffiliateService) RecordReferral(ctx context.Context, code, email string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}

	referrer, err := s.users.FindByReferralCode(ctx, code)
	if err != nil {
		return domain.ErrInternal("failed to resolve referral code", err)
	}
	if referrer == nil {
		logger.Info(ctx, "unknown referral code ignored", zap.String("code", code))
		return nil
	}
	if strings.EqualFold(referrer.Email, email) {
		return nil
	}

	ref := &domain.Referral{
		ID:            uuid.New().String(),
		ReferrerID:    referrer.ID,
		ReferredEmail: strings.ToLower(email),
		Status:        domain.ReferralPending,
		CreatedAt:     s.now(),
	}
	if err := s.referrals.Create(ctx, ref); err != nil {
		return domain.ErrInternal("failed to record referral", err)
	}
	logger.Info(ctx, "referral recorded", zap.String("referrer_id", referrer.ID))
	return nil
}

// ConnectReferral converts a pending referral and credits the commission for planID.
// It is a no-op when the e-mail was not referred or is already connected.
func (s *AffiliateService) ConnectReferral(ctx context.Context, email, planID string) error {
	plan, ok := domain.GetPlan(planID)
	if !ok {
		return domain.PlanNotFoundError(planID)
	}

	ref, err := s.referrals.FindByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return domain.ErrInternal("failed to find referral", err)
	}
	if ref == nil || ref.Status != domain.ReferralPending {
		return nil
	}

	commission := Commission(plan)
	connected, err := s.referrals.Connect(ctx, ref.ID, commission)
	if err != nil {
		return domain.ErrInternal("failed to connect referral", err)
	}
	if connected {
		logger.Info(ctx, "referral connected",
			zap.String("referrer_id", ref.ReferrerID), zap.String("plan", plan.ID), zap.Int64("commission_cents", commission))
	}
	return nil
}

func (s *AffiliateService) ListReferrals(ctx context.Context, userID string) ([]*domain.Referral, error) {
	refs, err := s.referrals.ListByReferrer(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list referrals", err)
	}
	return refs, nil
}

// Dashboard summarizes referrals and balance. Available balance is earned
// commission minus paid and pending payouts.
func (s *AffiliateService) Dashboard(ctx context.Context, userID string) (*domain.AffiliateDashboard, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	stats, err := s.referrals.Stats(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load referral stats", err)
	}
	paid, pending, err := s.payouts.Totals(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load payout totals", err)
	}

	available := stats.EarnedCents - paid - pending
	if available < 0 {
		available = 0
	}

	return &domain.AffiliateDashboard{
		ReferralCode:       user.ReferralCode,
		TotalReferrals:     stats.Total,
		ConnectedReferrals: stats.Connected,
		EarnedCents:        stats.EarnedCents,
		PaidOutCents:       paid,
		PendingPayoutCents: pending,
		AvailableCents:     available,
		PayoutEmailSet:     user.PayoutEmail != "",
	}, nil
}

// SetPayoutEmail stores the payout address encrypted and returns it masked.
func (s *AffiliateService) SetPayoutEmail(ctx context.Context, userID string, req *domain.PayoutEmailRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", domain.ErrValidation(formatValidationErrors(err))
	}

	sealed, err := s.cipher.Seal(req.Email)
	if err != nil {
		return "", domain.ErrInternal("failed to encrypt payout email", err)
	}
	if err := s.users.SetPayoutEmail(ctx, userID, sealed); err != nil {
		return "", domain.ErrInternal("failed to save payout email", err)
	}
	return crypto.Mask(req.Email), nil
}

// PayoutEmail returns the decrypted payout address of a user (admin).
func (s *AffiliateService) PayoutEmail(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return "", domain.ErrNotFound("user not found")
	}
	email, err := s.cipher.Open(user.PayoutEmail)
	if err != nil {
		return "", domain.ErrInternal("failed to decrypt payout email", err)
	}
	return email, nil
}

func (s *AffiliateService) RequestPayout(ctx context.Context, userID string, req *domain.PayoutRequest) (*domain.Payout, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	if req.AmountCents < domain.MinPayoutCents {
		return nil, domain.ErrBadRequest("payout is below the minimum of $" + domain.FormatAmount(domain.MinPayoutCents))
	}

	dash, err := s.Dashboard(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !dash.PayoutEmailSet {
		return nil, domain.ErrBadRequest("set a payout email first")
	}
	if req.AmountCents > dash.AvailableCents {
		return nil, domain.ErrBadRequest("payout exceeds available balance")
	}

	p := &domain.Payout{
		ID:          uuid.New().String(),
		UserID:      userID,
		AmountCents: req.AmountCents,
		Status:      domain.StatusPending,
		CreatedAt:   s.now(),
	}
	// The dashboard read above is advisory; the store re-checks the balance
	// under a lock.
	created, err := s.payouts.CreateWithinBalance(ctx, p)
	if err != nil {
		return nil, domain.ErrInternal("failed to create payout", err)
	}
	if !created {
		return nil, domain.ErrBadRequest("payout exceeds available balance")
	}

	logger.Info(ctx, "payout requested", zap.String("user_id", userID), zap.Int64("amount_cents", p.AmountCents))
	return p, nil
}

// ListPayouts lists payouts. An empty userID lists every user (admin).
func (s *AffiliateService) ListPayouts(ctx context.Context, userID, status string) ([]*domain.Payout, error) {
	payouts, err := s.payouts.List(ctx, userID, status)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payouts", err)
	}
	return payouts, nil
}

func (s *AffiliateService) ProcessPayout(ctx context.Context, id string) (*domain.Payout, error) {
	ok, err := s.payouts.MarkProcessed(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to process payout", err)
	}
	p, err := s.payouts.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find payout", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payout not found")
	}
	if !ok {
		return nil, domain.ErrBadRequest("payout already processed")
	}

	logger.Info(ctx, "payout processed", zap.String("payout_id", id), zap.String("user_id", p.UserID))
	return p, nil
}

// RequestRefund files a refund request for a captured order of the user.
func (s *AffiliateService) RequestRefund(ctx context.Context, userID string, req *domain.RefundRequestInput) (*domain.RefundRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find order", err)
	}
	if order == nil || order.UserID != userID {
		return nil, domain.ErrNotFound("order not found")
	}
	if order.Status != domain.OrderCaptured {
		return nil, domain.ErrBadRequest("only captured orders can be refunded")
	}

	r := &domain.RefundRequest{
		ID:        uuid.New().String(),
		UserID:    userID,
		OrderID:   req.OrderID,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    domain.StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.refunds.Create(ctx, r); err != nil {
		return nil, domain.ErrInternal("failed to create refund request", err)
	}

	logger.Info(ctx, "refund requested", zap.String("user_id", userID), zap.String("order_id", req.OrderID))
	return r, nil
}

// ListRefunds lists refund requests. An empty userID lists every user (admin).
func (s *AffiliateService) ListRefunds(ctx context.Context, userID, status string) ([]*domain.RefundRequest, error) {
	refunds, err := s.refunds.List(ctx, userID, status)
	if err != nil {
		return nil, domain.ErrInternal("failed to list refund requests", err)
	}
	return refunds, nil
}

func (s *AffiliateService) ProcessRefund(ctx context.Context, id string) (*domain.RefundRequest, error) {
	ok, err := s.refunds.MarkProcessed(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to process refund request", err)
	}
	r, err := s.refunds.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find refund request", err)
	}
	if r == nil {
		return nil, domain.ErrNotFound("refund request not found")
	}
	if !ok {
		return nil, domain.ErrBadRequest("refund request already processed")
	}

	logger.Info(ctx, "refund processed", zap.String("refund_id", id), zap.String("order_id", r.OrderID))
	return r, nil
}
