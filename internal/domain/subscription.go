package domain

import "time"

// Subscription statuses.
const (
	SubscriptionPending   = "approval_pending" // created at the vendor, buyer has not approved yet
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

// Subscription represents a user's recurring plan at the payment vendor.
type Subscription struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Plan               string    `json:"plan"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
	PaymentProviderID  string    `json:"paymentProviderId"` // vendor subscription or order id
	Recurring          bool      `json:"recurring"`
	ApproveURL         string    `json:"approveUrl,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Order statuses, mirrored from the vendor (the vendor is the system of record).
const (
	OrderCreated  = "CREATED"
	OrderApproved = "APPROVED"
	OrderCaptured = "COMPLETED"
	OrderFailed   = "FAILED"
)

// Order is a one-time checkout at the payment vendor.
type Order struct {
	ID               string    `json:"id"` // vendor order id
	UserID           string    `json:"userId"`
	PlanID           string    `json:"planId"`
	AmountMinorUnits int64     `json:"amountMinorUnits"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	ApproveURL       string    `json:"approveUrl,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CaptureResponse is returned after a successful capture.
type CaptureResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Plan    string `json:"plan"`
}

// CreateSubscriptionRequest is the input for checkout, subscribe and plan change.
type CreateSubscriptionRequest struct {
	Plan string `json:"plan" validate:"required,oneof=starter pro business"`
}

// CancelSubscriptionRequest is the input for cancelling the current subscription.
type CancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"max=127"`
}

// Plan change saga statuses.
const (
	PlanChangeStarted      = "STARTED"
	PlanChangeCancelDone   = "CANCEL_DONE"
	PlanChangeCancelFailed = "CANCEL_FAILED"
	PlanChangeCreateDone   = "CREATE_DONE"
	PlanChangeCompleted    = "COMPLETED"
	PlanChangeFailed       = "FAILED"
)

// PlanChangeLog is one append-only row of the plan change saga.
type PlanChangeLog struct {
	ID        string    `json:"id"`
	SagaID    string    `json:"sagaId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Step      string    `json:"step"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlanChangeResult exposes the saga outcome, including a non-blocking cancel failure.
type PlanChangeResult struct {
	SagaID       string        `json:"sagaId"`
	Status       string        `json:"status"`
	Subscription *Subscription `json:"subscription,omitempty"`
	PreviousID   string        `json:"previousSubscriptionId,omitempty"`
	CancelError  string        `json:"cancelError,omitempty"`
}
