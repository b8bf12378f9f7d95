package service

import (
	"context"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/affiliatehub/backend/pkg/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type subscriptionStore interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	FindByUserAndStatus(ctx context.Context, userID, status string) (*domain.Subscription, error)
	FindByProviderID(ctx context.Context, providerID string) (*domain.Subscription, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Activate(ctx context.Context, id string, start, end time.Time) (bool, error)
}

type orderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
}

type planChangeStore interface {
	Append(ctx context.Context, l *domain.PlanChangeLog) error
	ListByUser(ctx context.Context, userID string) ([]*domain.PlanChangeLog, error)
}

type planUpdater interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePlan(ctx context.Context, id, plan string) error
}

// ReferralConnector is told when a referred user buys a plan.
type ReferralConnector interface {
	ConnectReferral(ctx context.Context, email, planID string) error
}

// orderAlreadyCaptured is the PayPal issue code for a second capture of the same order.
const orderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// BillingService runs the checkout, subscription and plan change flows.
type BillingService struct {
	gw          payment.Gateway
	subs        subscriptionStore
	orders      orderStore
	planLog     planChangeStore
	users       planUpdater
	referrals   ReferralConnector
	vendorPlans map[string]string
	now         func() time.Time
}

// NewBillingService creates a BillingService. vendorPlans maps plan ids to
// vendor billing plan ids. referrals may be nil.
func NewBillingService(
	gw payment.Gateway,
	subs subscriptionStore,
	orders orderStore,
	planLog planChangeStore,
	users planUpdater,
	referrals ReferralConnector,
	vendorPlans map[string]string,
) *BillingService {
	return &BillingService{
		gw:          gw,
		subs:        subs,
		orders:      orders,
		planLog:     planLog,
		users:       users,
		referrals:   referrals,
		vendorPlans: vendorPlans,
		now:         time.Now,
	}
}

// GetSubscription returns the active subscription, or nil.
func (s *BillingService) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subs.FindByUserAndStatus(ctx, userID, domain.SubscriptionActive)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	return sub, nil
}

// ensureNoActive refuses a new purchase while another subscription is active.
// Switching plans goes through ChangePlan, which cancels the old one first.
func (s *BillingService) ensureNoActive(ctx context.Context, userID string) error {
	current, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if current != nil {
		return domain.ErrConflict("an active subscription already exists; use /api/payment/subscription/change to switch plans")
	}
	return nil
}

// CreateOrder opens a one-time vendor order for a plan.
func (s *BillingService) CreateOrder(ctx context.Context, userID, planID string) (*domain.Order, error) {
	plan, ok := domain.GetPlan(planID)
	if !ok {
		return nil, domain.PlanNotFoundError(planID)
	}
	if err := s.ensureNoActive(ctx, userID); err != nil {
		return nil, err
	}

	res, err := s.gw.CreateOrder(ctx, plan)
	if err != nil {
		logger.Error(ctx, "order creation failed", err, zap.String("user_id", userID), zap.String("plan", planID))
		return nil, err
	}

	order := &domain.Order{
		ID:               res.ID,
		UserID:           userID,
		PlanID:           plan.ID,
		AmountMinorUnits: plan.PriceCents,
		Currency:         plan.Currency,
		Status:           res.Status,
		ApproveURL:       res.ApproveURL,
		CreatedAt:        s.now(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, domain.ErrInternal("failed to save order", err)
	}

	logger.Info(ctx, "order created", zap.String("user_id", userID), zap.String("order_id", order.ID), zap.String("plan", plan.ID))
	return order, nil
}

// CaptureOrder captures an approved order and grants its plan for one month.
//
// The plan is granted before the order is marked COMPLETED. When the grant
// fails after the vendor took the money, the order is still marked COMPLETED
// and a FAILED row keyed by the order id goes to the plan change log; calling
// CaptureOrder again resumes the grant without charging twice.
func (s *BillingService) CaptureOrder(ctx context.Context, userID, orderID string) (*domain.CaptureResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load order", err)
	}
	if order == nil || order.UserID != userID {
		return nil, domain.ErrNotFound("order not found")
	}
	if order.Status == domain.OrderCaptured {
		return s.resumeCapture(ctx, order)
	}
	if err := s.ensureNoActive(ctx, userID); err != nil {
		return nil, err
	}

	res, err := s.gw.CaptureOrder(ctx, orderID)
	if err != nil {
		if vErr, ok := domain.AsVendorError(err); ok && vErr.Code == orderAlreadyCaptured {
			logger.Warn(ctx, "order was captured by an earlier request", zap.String("order_id", orderID))
			return s.resumeCapture(ctx, order)
		}
		if domain.IsKind(err, domain.KindVendor) {
			s.setOrderStatus(ctx, orderID, domain.OrderFailed)
		}
		logger.Error(ctx, "order capture failed", err, zap.String("order_id", orderID))
		return nil, err
	}

	if err := s.grantOrder(ctx, order); err != nil {
		s.setOrderStatus(ctx, orderID, domain.OrderCaptured)
		s.record(ctx, orderID, userID, domain.PlanChangeFailed, "grant", err.Error())
		logger.Error(ctx, "order captured but plan not granted", err, zap.String("order_id", orderID), zap.String("user_id", userID))
		return nil, err
	}
	s.setOrderStatus(ctx, orderID, domain.OrderCaptured)

	logger.Info(ctx, "order captured", zap.String("user_id", userID), zap.String("order_id", orderID), zap.String("plan", order.PlanID))
	return &domain.CaptureResponse{OrderID: res.OrderID, Status: res.Status, Plan: order.PlanID}, nil
}

// resumeCapture finishes an order the vendor already captured. It grants the
// plan only when no subscription was created from the order yet.
func (s *BillingService) resumeCapture(ctx context.Context, order *domain.Order) (*domain.CaptureResponse, error) {
	existing, err := s.subs.FindByProviderID(ctx, order.ID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if existing != nil {
		return nil, domain.ErrBadRequest("order already captured")
	}

	if err := s.ensureNoActive(ctx, order.UserID); err != nil {
		s.record(ctx, order.ID, order.UserID, domain.PlanChangeFailed, "grant", "captured while another subscription is active")
		logger.Error(ctx, "captured order needs reconciliation", err, zap.String("order_id", order.ID), zap.String("user_id", order.UserID))
		return nil, err
	}
	if err := s.grantOrder(ctx, order); err != nil {
		s.setOrderStatus(ctx, order.ID, domain.OrderCaptured)
		s.record(ctx, order.ID, order.UserID, domain.PlanChangeFailed, "grant", err.Error())
		return nil, err
	}
	s.setOrderStatus(ctx, order.ID, domain.OrderCaptured)
	s.record(ctx, order.ID, order.UserID, domain.PlanChangeCompleted, "grant", "resumed")

	logger.Info(ctx, "captured order granted on retry", zap.String("order_id", order.ID), zap.String("user_id", order.UserID))
	return &domain.CaptureResponse{OrderID: order.ID, Status: domain.OrderCaptured, Plan: order.PlanID}, nil
}

func (s *BillingService) grantOrder(ctx context.Context, order *domain.Order) error {
	now := s.now()
	return s.activate(ctx, &domain.Subscription{
		ID:                 uuid.New().String(),
		UserID:             order.UserID,
		Plan:               order.PlanID,
		Status:             domain.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		PaymentProviderID:  order.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

// setOrderStatus moves an order to status unless it is already COMPLETED.
func (s *BillingService) setOrderStatus(ctx context.Context, orderID, status string) {
	changed, err := s.orders.UpdateStatus(ctx, orderID, status)
	if err != nil {
		logger.Error(ctx, "failed to update order status", err, zap.String("order_id", orderID), zap.String("status", status))
		return
	}
	if !changed {
		logger.Debug(ctx, "order status left unchanged", zap.String("order_id", orderID), zap.String("status", status))
	}
}

// Subscribe creates a recurring vendor subscription for a plan. The plan is
// granted by ConfirmSubscription once the buyer has approved it at PayPal.
func (s *BillingService) Subscribe(ctx context.Context, userID, planID string) (*domain.Subscription, error) {
	plan, ok := domain.GetPlan(planID)
	if !ok {
		return nil, domain.PlanNotFoundError(planID)
	}
	if err := s.ensureNoActive(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.supersedePending(ctx, userID); err != nil {
		return nil, err
	}

	res, err := s.gw.CreateSubscription(ctx, s.vendorPlans[plan.ID], userID)
	if err != nil {
		logger.Error(ctx, "subscription creation failed", err, zap.String("user_id", userID), zap.String("plan", planID))
		return nil, err
	}

	sub, err := s.store(ctx, userID, plan.ID, res)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "subscription created", zap.String("user_id", userID), zap.String("subscription_id", res.ID), zap.String("status", sub.Status))
	return sub, nil
}

// ConfirmSubscription activates the subscription awaiting approval once
// PayPal reports it ACTIVE, and moves the user onto its plan.
func (s *BillingService) ConfirmSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	pending, err := s.subs.FindByUserAndStatus(ctx, userID, domain.SubscriptionPending)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("no subscription is awaiting approval")
	}
	if err := s.ensureNoActive(ctx, userID); err != nil {
		return nil, err
	}

	res, err := s.gw.GetSubscription(ctx, pending.PaymentProviderID)
	if err != nil {
		logger.Error(ctx, "subscription lookup failed", err, zap.String("subscription_id", pending.PaymentProviderID))
		return nil, err
	}
	switch res.Status {
	case payment.SubscriptionActive:
	case payment.SubscriptionApprovalPending, payment.SubscriptionApproved:
		return nil, domain.ErrConflict("the subscription has not been approved at PayPal yet")
	default:
		s.retire(ctx, pending)
		return nil, domain.BusinessError("SUBSCRIPTION_NOT_ACTIVE", "PayPal reports the subscription as "+res.Status)
	}

	now := s.now()
	activated, err := s.subs.Activate(ctx, pending.ID, now, now.AddDate(0, 1, 0))
	if err != nil {
		return nil, domain.ErrInternal("failed to activate subscription", err)
	}
	if !activated {
		return nil, domain.ErrConflict("the subscription was already confirmed")
	}
	pending.Status = domain.SubscriptionActive
	pending.CurrentPeriodStart = now
	pending.CurrentPeriodEnd = now.AddDate(0, 1, 0)

	if err := s.grant(ctx, userID, pending.Plan); err != nil {
		return nil, err
	}

	logger.Info(ctx, "subscription confirmed", zap.String("user_id", userID), zap.String("subscription_id", pending.PaymentProviderID), zap.String("plan", pending.Plan))
	return pending, nil
}

// supersedePending drops a subscription the buyer never approved so its
// approve link can no longer start billing.
func (s *BillingService) supersedePending(ctx context.Context, userID string) error {
	pending, err := s.subs.FindByUserAndStatus(ctx, userID, domain.SubscriptionPending)
	if err != nil {
		return domain.ErrInternal("failed to load subscription", err)
	}
	if pending == nil {
		return nil
	}
	if err := s.gw.CancelSubscription(ctx, pending.PaymentProviderID, "Superseded before approval"); err != nil {
		logger.Warn(ctx, "unapproved subscription not cancelled at vendor", zap.String("subscription_id", pending.PaymentProviderID), zap.Error(err))
	}
	s.retire(ctx, pending)
	return nil
}

// CancelSubscription cancels the active subscription at the vendor, then locally.
func (s *BillingService) CancelSubscription(ctx context.Context, userID, reason string) error {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrNotFound("no active subscription")
	}

	if sub.Recurring {
		if err := s.gw.CancelSubscription(ctx, sub.PaymentProviderID, reason); err != nil {
			logger.Error(ctx, "subscription cancel failed", err, zap.String("subscription_id", sub.PaymentProviderID))
			return err
		}
	}

	if err := s.subs.UpdateStatus(ctx, sub.ID, domain.SubscriptionCancelled); err != nil {
		return domain.ErrInternal("failed to update subscription", err)
	}
	if err := s.users.UpdatePlan(ctx, userID, domain.FreePlanID); err != nil {
		return domain.ErrInternal("failed to update plan", err)
	}

	logger.Info(ctx, "subscription cancelled", zap.String("user_id", userID), zap.String("subscription_id", sub.ID))
	return nil
}

// ChangePlan replaces the active subscription with one on another plan.
//
// The steps run in a fixed order: cancel the current vendor subscription
// (a failure is recorded but does not stop the change), create the new one,
// then persist it and retire the old record. Every step appends a row to the
// plan change log so a half-finished change can be reconciled.
func (s *BillingService) ChangePlan(ctx context.Context, userID, newPlanID string) (*domain.PlanChangeResult, error) {
	plan, ok := domain.GetPlan(newPlanID)
	if !ok {
		return nil, domain.PlanNotFoundError(newPlanID)
	}

	current, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Plan == plan.ID {
		return nil, domain.ErrBadRequest("already subscribed to this plan")
	}

	result := &domain.PlanChangeResult{SagaID: uuid.New().String()}
	from := domain.FreePlanID
	if current != nil {
		from = current.Plan
		result.PreviousID = current.ID
	}
	s.record(ctx, result.SagaID, userID, domain.PlanChangeStarted, "start", from+" -> "+plan.ID)

	// Step 1: cancel. Non-blocking.
	cancelled := false
	switch {
	case current == nil:
		s.record(ctx, result.SagaID, userID, domain.PlanChangeCancelDone, "cancel", "no active subscription")
	case !current.Recurring:
		cancelled = true
		s.record(ctx, result.SagaID, userID, domain.PlanChangeCancelDone, "cancel", "one-time purchase, nothing to cancel at vendor")
	default:
		err := s.gw.CancelSubscription(ctx, current.PaymentProviderID, "Plan change to "+plan.Name)
		if err != nil {
			result.CancelError = err.Error()
			logger.Warn(ctx, "plan change: cancel failed, continuing",
				zap.String("saga_id", result.SagaID), zap.String("subscription_id", current.PaymentProviderID), zap.Error(err))
			s.record(ctx, result.SagaID, userID, domain.PlanChangeCancelFailed, "cancel", err.Error())
		} else {
			cancelled = true
			s.record(ctx, result.SagaID, userID, domain.PlanChangeCancelDone, "cancel", current.PaymentProviderID)
		}
	}

	// Step 2: create.
	if err := s.supersedePending(ctx, userID); err != nil {
		s.record(ctx, result.SagaID, userID, domain.PlanChangeFailed, "create", err.Error())
		return nil, err
	}
	res, err := s.gw.CreateSubscription(ctx, s.vendorPlans[plan.ID], userID)
	if err != nil {
		s.record(ctx, result.SagaID, userID, domain.PlanChangeFailed, "create", err.Error())
		if cancelled && current.Recurring {
			s.retire(ctx, current)
			if err := s.users.UpdatePlan(ctx, userID, domain.FreePlanID); err != nil {
				logger.Error(ctx, "plan change: failed to reset plan", err, zap.String("saga_id", result.SagaID))
			}
		}
		logger.Error(ctx, "plan change: create failed", err, zap.String("saga_id", result.SagaID))
		return nil, err
	}
	s.record(ctx, result.SagaID, userID, domain.PlanChangeCreateDone, "create", res.ID)

	// Step 3: persist. The old plan ends here; the new one is granted on
	// confirmation unless the vendor already reports it active.
	if current != nil {
		s.retire(ctx, current)
	}
	sub, err := s.store(ctx, userID, plan.ID, res)
	if err != nil {
		s.record(ctx, result.SagaID, userID, domain.PlanChangeFailed, "persist", err.Error())
		return nil, err
	}
	if sub.Status == domain.SubscriptionPending {
		if err := s.users.UpdatePlan(ctx, userID, domain.FreePlanID); err != nil {
			logger.Error(ctx, "plan change: failed to reset plan", err, zap.String("saga_id", result.SagaID))
		}
	}
	s.record(ctx, result.SagaID, userID, domain.PlanChangeCompleted, "persist", sub.ID)

	result.Status = domain.PlanChangeCompleted
	result.Subscription = sub
	logger.Info(ctx, "plan changed", zap.String("saga_id", result.SagaID), zap.String("user_id", userID), zap.String("plan", plan.ID))
	return result, nil
}

// PlanChangeHistory returns the plan change log of a user.
func (s *BillingService) PlanChangeHistory(ctx context.Context, userID string) ([]*domain.PlanChangeLog, error) {
	logs, err := s.planLog.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load plan changes", err)
	}
	return logs, nil
}

// store persists a freshly created vendor subscription. Only a subscription
// the vendor already reports ACTIVE grants its plan right away.
func (s *BillingService) store(ctx context.Context, userID, planID string, res *payment.SubscriptionResult) (*domain.Subscription, error) {
	now := s.now()
	sub := &domain.Subscription{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Plan:               planID,
		Status:             domain.SubscriptionPending,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		PaymentProviderID:  res.ID,
		Recurring:          true,
		ApproveURL:         res.ApproveURL,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if res.Status == payment.SubscriptionActive {
		sub.Status = domain.SubscriptionActive
		if err := s.activate(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, domain.ErrInternal("failed to save subscription", err)
	}
	return sub, nil
}

// activate stores an active subscription and grants its plan.
func (s *BillingService) activate(ctx context.Context, sub *domain.Subscription) error {
	if err := s.subs.Create(ctx, sub); err != nil {
		return domain.ErrInternal("failed to save subscription", err)
	}
	return s.grant(ctx, sub.UserID, sub.Plan)
}

// grant moves the user onto plan and pays out the referral commission if
// this user was referred.
func (s *BillingService) grant(ctx context.Context, userID, plan string) error {
	if err := s.users.UpdatePlan(ctx, userID, plan); err != nil {
		return domain.ErrInternal("failed to update plan", err)
	}

	if s.referrals != nil {
		u, err := s.users.FindByID(ctx, userID)
		if err == nil && u != nil {
			if err := s.referrals.ConnectReferral(ctx, u.Email, plan); err != nil {
				logger.Warn(ctx, "referral not connected", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *BillingService) retire(ctx context.Context, sub *domain.Subscription) {
	if err := s.subs.UpdateStatus(ctx, sub.ID, domain.SubscriptionCancelled); err != nil {
		logger.Error(ctx, "failed to retire subscription", err, zap.String("subscription_id", sub.ID))
	}
}

func (s *BillingService) record(ctx context.Context, sagaID, userID, status, step, detail string) {
	entry := &domain.PlanChangeLog{
		ID:        uuid.New().String(),
		SagaID:    sagaID,
		UserID:    userID,
		Status:    status,
		Step:      step,
		Detail:    detail,
		CreatedAt: s.now(),
	}
	if err := s.planLog.Append(ctx, entry); err != nil {
		logger.Error(ctx, "failed to write plan change log", err, zap.String("saga_id", sagaID), zap.String("status", status))
	}
}
