package entitlements

import (
	"testing"

	"github.com/docexpress/docexpress/app/models"
	"github.com/stretchr/testify/assert"
)

func freeIdentity(usage int) *Identity {
	return &Identity{
		UserID:       1,
		Subscription: &models.Subscription{UserID: 1, Plan: "free", Status: models.SubscriptionStatusActive},
		MonthlyUsage: usage,
	}
}

func paidIdentity(plan, status string) *Identity {
	return &Identity{
		UserID:       1,
		Subscription: &models.Subscription{UserID: 1, Plan: plan, Status: status},
	}
}

func TestCheckAccessAnonymous(t *testing.T) {
	for _, slug := range []string{"attestation-honneur", "lettre-demission-cdi", "mise-en-demeure", "document-inconnu"} {
		decision := CheckAccess(slug, nil)
		assert.False(t, decision.Allowed, "slug %s", slug)
		assert.Equal(t, ReasonLoginRequired, decision.Reason, "slug %s", slug)
		assert.NotEmpty(t, decision.RequiredAction, "slug %s", slug)
	}
}

func TestCheckAccessFreePlanBasicDocument(t *testing.T) {
	decision := CheckAccess("attestation-honneur", freeIdentity(0))
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonFreeTier, decision.Reason)

	// The moment usage reaches the quota the same call flips to a denial.
	decision = CheckAccess("attestation-honneur", freeIdentity(1))
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonLimitReached, decision.Reason)
	assert.Contains(t, decision.RequiredAction, "Pass Mensuel")
}

func TestCheckAccessFreePlanPaidTier(t *testing.T) {
	decision := CheckAccess("lettre-demission-cdi", freeIdentity(0))
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonUpgradeRequired, decision.Reason)
	assert.Equal(t, 299, decision.SuggestedPrice)
	assert.Contains(t, decision.RequiredAction, "2,99€")

	decision = CheckAccess("mise-en-demeure", freeIdentity(0))
	assert.Equal(t, 399, decision.SuggestedPrice)
	assert.Contains(t, decision.RequiredAction, "3,99€")
}

func TestCheckAccessFreePlanAtQuotaBeatsUpgrade(t *testing.T) {
	// At quota, limit_reached wins over upgrade_required even for paid tiers.
	decision := CheckAccess("lettre-demission-cdi", freeIdentity(1))
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonLimitReached, decision.Reason)
}

func TestCheckAccessActiveSubscription(t *testing.T) {
	for _, plan := range []string{"pass", "pro"} {
		for _, slug := range []string{"attestation-honneur", "lettre-demission-cdi", "mise-en-demeure"} {
			id := paidIdentity(plan, models.SubscriptionStatusActive)
			id.MonthlyUsage = 9999 // usage never matters on unlimited plans
			decision := CheckAccess(slug, id)
			assert.True(t, decision.Allowed, "plan %s slug %s", plan, slug)
			assert.Equal(t, ReasonSubscription, decision.Reason)
		}
	}
}

func TestCheckAccessInactivePaidPlan(t *testing.T) {
	for _, status := range []string{models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled} {
		decision := CheckAccess("lettre-demission-cdi", paidIdentity("pass", status))
		assert.False(t, decision.Allowed, "status %s", status)
		assert.Equal(t, ReasonUpgradeRequired, decision.Reason)
		assert.NotEmpty(t, decision.RequiredAction)
	}
}

func TestCheckAccessNoSubscriptionRowDefaultsToFree(t *testing.T) {
	id := &Identity{UserID: 1, MonthlyUsage: 0}
	decision := CheckAccess("attestation-honneur", id)
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonFreeTier, decision.Reason)
}

func TestCheckAccessUnmappedSlugFallsBackToStandard(t *testing.T) {
	// Unknown slugs resolve to the standard tier rather than erroring.
	decision := CheckAccess("document-inconnu", freeIdentity(0))
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonUpgradeRequired, decision.Reason)
	assert.Equal(t, 299, decision.SuggestedPrice)

	decision = CheckAccess("document-inconnu", paidIdentity("pass", models.SubscriptionStatusActive))
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonSubscription, decision.Reason)
}
