package domain

import "time"

// AdminStats is the platform overview on the admin dashboard.
type AdminStats struct {
	Users               int            `json:"users"`
	UsersByPlan         map[string]int `json:"usersByPlan"`
	ActiveSubscriptions int            `json:"activeSubscriptions"`
	RevenueCents        int64          `json:"revenueCents"`
	ContentByKind       map[string]int `json:"contentByKind"`
	PendingPayouts      int            `json:"pendingPayouts"`
	PendingRefunds      int            `json:"pendingRefunds"`
	GeneratedAt         time.Time      `json:"generatedAt"`
}
