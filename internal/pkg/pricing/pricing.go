package pricing

import (
	"fmt"
	"strings"
)

// Tier is the pricing/access category of a document template.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Plan is a subscription level granting access to a set of tiers.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPass Plan = "pass"
	PlanPro  Plan = "pro"
)

// UnlimitedDocuments is the quota sentinel used by paid plans.
const UnlimitedDocuments = -1

// defaultDocumentPrice is used when a slug cannot be resolved to a tier.
const defaultDocumentPrice = 299

// PackPrice is the one-time price of the 3-document pack, in euro cents.
const PackPrice = 699

// TierConfig describes one document tier: its price in euro cents and the
// set of document slugs that belong to it. A slug belongs to at most one tier.
type TierConfig struct {
	Price           int
	FreeWithAccount bool
	Documents       []string
}

var DocumentTiers = map[Tier]TierConfig{
	TierBasic: {
		Price:           199,
		FreeWithAccount: true,
		Documents: []string{
			"attestation-honneur",
			"autorisation-parentale",
			"declaration-perte-vol",
			"changement-adresse",
			"declaration-naissance",
		},
	},
	TierStandard: {
		Price: 299,
		Documents: []string{
			"lettre-demission-cdi",
			"lettre-demission-cdd",
			"resiliation-box-internet",
			"resiliation-mobile",
			"resiliation-assurance",
			"resiliation-salle-sport",
			"resiliation-electricite-gaz",
			"resiliation-streaming",
			"preavis-logement",
			"attestation-hebergement",
			"autorisation-sortie-territoire",
			"procuration",
			"opposition-prelevement",
		},
	},
	TierPremium: {
		Price: 399,
		Documents: []string{
			"mise-en-demeure",
			"contestation-contravention",
			"reclamation-banque",
			"reclamation-colis",
			"demande-remboursement",
			"demande-echeancier",
			"demande-logement-social",
			"demande-conge-parental",
			"demande-teletravail",
			"demande-augmentation",
			"lettre-motivation",
			"attestation-employeur",
		},
	},
}

// PlanFeatures lists what a subscription plan grants.
type PlanFeatures struct {
	DocumentsPerMonth int
	AccessTiers       []Tier
	Watermark         bool
	History           bool
	Support           string
	MultiUser         int
	CustomLogo        bool
	APIAccess         bool
	ExportWord        bool
}

// PlanConfig describes a subscription plan as displayed and enforced.
type PlanConfig struct {
	ID       string
	Name     string
	Price    int
	Interval string
	Features PlanFeatures
}

var SubscriptionPlans = map[Plan]PlanConfig{
	PlanFree: {
		ID:    "free",
		Name:  "Gratuit",
		Price: 0,
		Features: PlanFeatures{
			DocumentsPerMonth: 1,
			AccessTiers:       []Tier{TierBasic},
			Watermark:         true,
			Support:           "email",
		},
	},
	PlanPass: {
		ID:       "pass_monthly",
		Name:     "Pass Mensuel",
		Price:    499,
		Interval: "month",
		Features: PlanFeatures{
			DocumentsPerMonth: UnlimitedDocuments,
			AccessTiers:       []Tier{TierBasic, TierStandard, TierPremium},
			History:           true,
			Support:           "priority",
		},
	},
	PlanPro: {
		ID:       "pro_monthly",
		Name:     "Pro",
		Price:    1999,
		Interval: "month",
		Features: PlanFeatures{
			DocumentsPerMonth: UnlimitedDocuments,
			AccessTiers:       []Tier{TierBasic, TierStandard, TierPremium},
			History:           true,
			Support:           "priority",
			MultiUser:         5,
			CustomLogo:        true,
			APIAccess:         true,
			ExportWord:        true,
		},
	},
}

// TierForDocument resolves a document slug to its tier. The second return
// value is false when the slug is not present in any tier's document set.
func TierForDocument(slug string) (Tier, bool) {
	for tier, cfg := range DocumentTiers {
		for _, doc := range cfg.Documents {
			if doc == slug {
				return tier, true
			}
		}
	}
	return "", false
}

// DocumentPrice returns the one-shot price of a document in euro cents,
// falling back to the standard price for unmapped slugs.
func DocumentPrice(slug string) int {
	tier, ok := TierForDocument(slug)
	if !ok {
		return defaultDocumentPrice
	}
	return DocumentTiers[tier].Price
}

// PlanConfigFor returns the configuration for a plan, defaulting to the free
// plan for unknown values.
func PlanConfigFor(plan Plan) PlanConfig {
	if cfg, ok := SubscriptionPlans[plan]; ok {
		return cfg
	}
	return SubscriptionPlans[PlanFree]
}

// NormalizePlan maps arbitrary plan strings onto a known plan.
func NormalizePlan(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPass:
		return PlanPass
	case PlanPro:
		return PlanPro
	default:
		return PlanFree
	}
}

// HasTierAccess reports whether the plan's accessible tiers include t.
func (f PlanFeatures) HasTierAccess(t Tier) bool {
	for _, tier := range f.AccessTiers {
		if tier == t {
			return true
		}
	}
	return false
}

// FormatPrice renders a cent amount the way prices are displayed on the
// French market, e.g. 299 -> "2,99€".
func FormatPrice(cents int) string {
	return strings.Replace(fmt.Sprintf("%.2f", float64(cents)/100), ".", ",", 1) + "€"
}
