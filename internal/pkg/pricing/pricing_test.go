package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForDocument(t *testing.T) {
	tests := []struct {
		slug  string
		want  Tier
		found bool
	}{
		{slug: "attestation-honneur", want: TierBasic, found: true},
		{slug: "lettre-demission-cdi", want: TierStandard, found: true},
		{slug: "mise-en-demeure", want: TierPremium, found: true},
		{slug: "document-inconnu", want: "", found: false},
	}

	for _, tt := range tests {
		got, ok := TierForDocument(tt.slug)
		if ok != tt.found || got != tt.want {
			t.Fatalf("TierForDocument(%q) = (%q, %v), want (%q, %v)", tt.slug, got, ok, tt.want, tt.found)
		}
	}
}

func TestTierMembershipIsExclusive(t *testing.T) {
	seen := make(map[string]Tier)
	for tier, cfg := range DocumentTiers {
		for _, slug := range cfg.Documents {
			if prev, ok := seen[slug]; ok {
				t.Fatalf("slug %q belongs to both %q and %q", slug, prev, tier)
			}
			seen[slug] = tier
		}
	}
}

func TestDocumentPrice(t *testing.T) {
	assert.Equal(t, 199, DocumentPrice("attestation-honneur"))
	assert.Equal(t, 299, DocumentPrice("resiliation-mobile"))
	assert.Equal(t, 399, DocumentPrice("lettre-motivation"))
	// Unmapped slugs fall back to the standard price.
	assert.Equal(t, 299, DocumentPrice("document-inconnu"))
}

func TestPlanTable(t *testing.T) {
	free := SubscriptionPlans[PlanFree].Features
	assert.Equal(t, 1, free.DocumentsPerMonth)
	assert.Equal(t, []Tier{TierBasic}, free.AccessTiers)
	assert.True(t, free.Watermark)

	for _, plan := range []Plan{PlanPass, PlanPro} {
		f := SubscriptionPlans[plan].Features
		assert.Equal(t, UnlimitedDocuments, f.DocumentsPerMonth, "plan %s", plan)
		for _, tier := range []Tier{TierBasic, TierStandard, TierPremium} {
			assert.True(t, f.HasTierAccess(tier), "plan %s tier %s", plan, tier)
		}
		assert.False(t, f.Watermark, "plan %s", plan)
	}

	// The free plan's tier set must be a strict subset of the paid plans'.
	assert.False(t, free.HasTierAccess(TierStandard))
	assert.False(t, free.HasTierAccess(TierPremium))

	pro := SubscriptionPlans[PlanPro].Features
	assert.Equal(t, 5, pro.MultiUser)
	assert.True(t, pro.APIAccess)
}

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "pass", want: PlanPass},
		{in: "PRO", want: PlanPro},
		{in: " pass ", want: PlanPass},
		{in: "invalid", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := NormalizePlan(tt.in); got != tt.want {
			t.Fatalf("NormalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "2,99€", FormatPrice(299))
	assert.Equal(t, "19,99€", FormatPrice(1999))
	assert.Equal(t, "0,00€", FormatPrice(0))
}
