package domain

import "fmt"

// Plan is a paid tier of the affiliate dashboard.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PriceCents  int64    `json:"priceCents"` // monthly price in minor units (1900 = $19.00)
	Currency    string   `json:"currency"`
	AIDaily     int      `json:"aiDaily"` // AI generations per day
	Features    []string `json:"features"`
	Popular     bool     `json:"popular"` // show "Most Popular" badge
}

// FreePlanID is the plan every account starts on.
const FreePlanID = "free"

// AvailablePlans returns the static price table.
func AvailablePlans() []Plan {
	return []Plan{
		{
			ID:          "starter",
			Name:        "Starter",
			Description: "Affiliate Starter Plan - monthly",
			PriceCents:  1900, // $19/mo
			Currency:    "USD",
			AIDaily:     20,
			Features:    []string{"Referral tracking", "AI text generator", "1 website"},
		},
		{
			ID:          "pro",
			Name:        "Pro",
			Description: "Affiliate Pro Plan - monthly",
			PriceCents:  4900, // $49/mo
			Currency:    "USD",
			AIDaily:     100,
			Features:    []string{"Everything in Starter", "AI images & video", "Priority payouts"},
			Popular:     true,
		},
		{
			ID:          "business",
			Name:        "Business",
			Description: "Affiliate Business Plan - monthly",
			PriceCents:  9900, // $99/mo
			Currency:    "USD",
			AIDaily:     500,
			Features:    []string{"Everything in Pro", "Unlimited websites", "Dedicated support"},
		},
	}
}

// GetPlan returns the plan for a given ID. The bool is false for unknown IDs.
func GetPlan(id string) (Plan, bool) {
	for _, p := range AvailablePlans() {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// FormatAmount renders minor units as a decimal string with two places ("19.00").
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
