package domain

import "time"

// Referral statuses.
const (
	ReferralPending   = "pending"
	ReferralConnected = "connected"
)

// Payout and refund request statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

// CommissionPercent is the share of the referred user's first plan price paid to the referrer.
const CommissionPercent = 20

// MinPayoutCents is the smallest payout a user may request.
const MinPayoutCents = 1000

// Referral tracks a sign-up that used somebody's referral code.
type Referral struct {
	ID              string     `json:"id"`
	ReferrerID      string     `json:"referrerId"`
	ReferredEmail   string     `json:"referredEmail"`
	Status          string     `json:"status"`
	CommissionCents int64      `json:"commissionCents"`
	CreatedAt       time.Time  `json:"createdAt"`
	ConnectedAt     *time.Time `json:"connectedAt,omitempty"`
}

// Payout is a withdrawal of earned commission.
type Payout struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	AmountCents int64      `json:"amountCents"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// RefundRequest is a customer request to refund a captured order.
type RefundRequest struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	OrderID     string     `json:"orderId"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// AffiliateDashboard is the summary shown on the user dashboard.
type AffiliateDashboard struct {
	ReferralCode       string `json:"referralCode"`
	TotalReferrals     int    `json:"totalReferrals"`
	ConnectedReferrals int    `json:"connectedReferrals"`
	EarnedCents        int64  `json:"earnedCents"`
	PaidOutCents       int64  `json:"paidOutCents"`
	PendingPayoutCents int64  `json:"pendingPayoutCents"`
	AvailableCents     int64  `json:"availableCents"`
	PayoutEmailSet     bool   `json:"payoutEmailSet"`
}

// PayoutRequest is the validated input for requesting a payout.
type PayoutRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

// PayoutEmailRequest is the validated input for setting the payout address.
type PayoutEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RefundRequestInput is the validated input for filing a refund request.
type RefundRequestInput struct {
	OrderID string `json:"orderId" validate:"required,max=64"`
	Reason  string `json:"reason" validate:"required,min=5,max=1000"`
}

// ConnectReferralRequest marks a referred sign-up as converted (admin).
type ConnectReferralRequest struct {
	Email string `json:"email" validate:"required,email"`
	Plan  string `json:"plan" validate:"required,oneof=starter pro business"`
}
