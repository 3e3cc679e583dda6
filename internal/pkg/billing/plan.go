package billing

import (
	"strings"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/env"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
)

// PriceIDToPlan maps a Stripe price id onto an internal plan. The price ids
// differ per environment so they come from configuration, not code.
func PriceIDToPlan(priceID string) pricing.Plan {
	switch strings.TrimSpace(priceID) {
	case "":
		return pricing.PlanFree
	case env.GetEnv("STRIPE_PRICE_PASS_MONTHLY", "price_pass_monthly"):
		return pricing.PlanPass
	case env.GetEnv("STRIPE_PRICE_PRO_MONTHLY", "price_pro_monthly"):
		return pricing.PlanPro
	default:
		return pricing.PlanFree
	}
}

// NormalizeStatus collapses the provider's status vocabulary onto the three
// states the entitlement check understands. Trialing and active both
// entitle; every terminal state maps to canceled.
func NormalizeStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due", "unpaid", "incomplete":
		return models.SubscriptionStatusPastDue
	default:
		return models.SubscriptionStatusCanceled
	}
}
