// Package entitlements decides whether an identity may generate a given
// document under the free/pack/subscription model. The decision function is
// pure; usage accounting is a separate, explicit write performed by callers
// after a generation succeeded.
package entitlements

import (
	"fmt"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"github.com/gofiber/fiber/v2/log"
)

// Reason explains an access decision.
type Reason string

const (
	ReasonSubscription    Reason = "subscription"
	ReasonFreeTier        Reason = "free_tier"
	ReasonLoginRequired   Reason = "login_required"
	ReasonUpgradeRequired Reason = "upgrade_required"
	ReasonLimitReached    Reason = "limit_reached"
)

// AccessDecision is the result of an entitlement check. Denials always carry
// a human-actionable next step; SuggestedPrice is the document price in euro
// cents when a one-shot purchase would unlock access.
type AccessDecision struct {
	Allowed        bool   `json:"allowed"`
	Reason         Reason `json:"reason"`
	RequiredAction string `json:"required_action,omitempty"`
	SuggestedPrice int    `json:"suggested_price,omitempty"`
}

// Identity is a resolved user together with the subscription and usage state
// the decision needs. A nil *Identity means the request is anonymous.
type Identity struct {
	UserID       uint
	Subscription *models.Subscription
	MonthlyUsage int
}

// CheckAccess decides whether the identity may generate the document with
// the given slug. It is read-only: it never increments usage or consumes
// credits. An unmapped slug resolves to the standard tier.
func CheckAccess(documentSlug string, id *Identity) AccessDecision {
	tier, ok := pricing.TierForDocument(documentSlug)
	if !ok {
		// Defensive default, kept deliberately. See pricing config.
		log.Warnf("[Entitlements] document %s not found in pricing config, using standard tier", documentSlug)
		tier = pricing.TierStandard
	}

	if id == nil {
		return AccessDecision{
			Allowed:        false,
			Reason:         ReasonLoginRequired,
			RequiredAction: "Créez un compte gratuit pour générer ce document",
		}
	}

	plan := pricing.PlanFree
	if id.Subscription != nil {
		plan = pricing.NormalizePlan(id.Subscription.Plan)
	}
	planConfig := pricing.PlanConfigFor(plan)

	// Active paid plan covering the tier wins regardless of usage.
	if plan != pricing.PlanFree && id.Subscription != nil && id.Subscription.IsActive() &&
		planConfig.Features.HasTierAccess(tier) {
		return AccessDecision{Allowed: true, Reason: ReasonSubscription}
	}

	if plan == pricing.PlanFree {
		quota := planConfig.Features.DocumentsPerMonth

		if tier == pricing.TierBasic && id.MonthlyUsage < quota {
			return AccessDecision{Allowed: true, Reason: ReasonFreeTier}
		}

		if id.MonthlyUsage >= quota {
			return AccessDecision{
				Allowed:        false,
				Reason:         ReasonLimitReached,
				RequiredAction: "Vous avez atteint votre limite mensuelle. Passez au Pass Mensuel pour un accès illimité.",
			}
		}

		price := pricing.DocumentPrice(documentSlug)
		return AccessDecision{
			Allowed:        false,
			Reason:         ReasonUpgradeRequired,
			RequiredAction: fmt.Sprintf("Ce document nécessite un achat à %s ou le Pass Mensuel.", pricing.FormatPrice(price)),
			SuggestedPrice: price,
		}
	}

	// Paid plan that is not active (past_due, canceled).
	return AccessDecision{
		Allowed:        false,
		Reason:         ReasonUpgradeRequired,
		RequiredAction: "Une mise à niveau est nécessaire pour accéder à ce document.",
	}
}
