package billing

import (
	"testing"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"github.com/stretchr/testify/assert"
)

func TestPriceIDToPlan(t *testing.T) {
	t.Setenv("STRIPE_PRICE_PASS_MONTHLY", "price_pass_test")
	t.Setenv("STRIPE_PRICE_PRO_MONTHLY", "price_pro_test")

	assert.Equal(t, pricing.PlanPass, PriceIDToPlan("price_pass_test"))
	assert.Equal(t, pricing.PlanPro, PriceIDToPlan("price_pro_test"))
	assert.Equal(t, pricing.PlanFree, PriceIDToPlan(""))
	assert.Equal(t, pricing.PlanFree, PriceIDToPlan("price_unknown"))
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"active", models.SubscriptionStatusActive},
		{"trialing", models.SubscriptionStatusActive},
		{" Active ", models.SubscriptionStatusActive},
		{"past_due", models.SubscriptionStatusPastDue},
		{"unpaid", models.SubscriptionStatusPastDue},
		{"incomplete", models.SubscriptionStatusPastDue},
		{"canceled", models.SubscriptionStatusCanceled},
		{"incomplete_expired", models.SubscriptionStatusCanceled},
		{"", models.SubscriptionStatusCanceled},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeStatus(tc.in), "status %q", tc.in)
	}
}
