package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"gorm.io/gorm"
)

// Service loads the identity state for a user and runs the access decision.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an entitlement service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates an entitlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// CheckDocumentAccess resolves the user (0 = anonymous) and decides access
// for the document. The read of the usage counter is a best-effort admission
// check, not a reservation; the authoritative write is IncrementMonthlyUsage.
func (s *Service) CheckDocumentAccess(ctx context.Context, documentSlug string, userID uint) (AccessDecision, error) {
	_ = ctx
	if userID == 0 {
		return CheckAccess(documentSlug, nil), nil
	}

	if _, err := s.repo.GetUserByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccessDecision{
				Allowed:        false,
				Reason:         ReasonLoginRequired,
				RequiredAction: "Compte introuvable",
			}, nil
		}
		return AccessDecision{}, err
	}

	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		return AccessDecision{}, err
	}

	month, year := s.currentPeriod()
	usage, err := s.repo.GetMonthlyUsageCount(userID, month, year)
	if err != nil {
		return AccessDecision{}, err
	}

	return CheckAccess(documentSlug, &Identity{
		UserID:       userID,
		Subscription: sub,
		MonthlyUsage: usage,
	}), nil
}

// IncrementMonthlyUsage records one generated document for the current
// period. Callers invoke this strictly after a generation succeeded, never
// on a denied request.
func (s *Service) IncrementMonthlyUsage(ctx context.Context, userID uint) error {
	_ = ctx
	if userID == 0 {
		return errors.New("user_id is required")
	}
	month, year := s.currentPeriod()
	return s.repo.IncrementMonthlyUsage(userID, month, year)
}

// CurrentUsage returns the user's document count for the current period and
// the monthly quota of their plan (-1 = unlimited).
func (s *Service) CurrentUsage(ctx context.Context, userID uint) (count int, limit int, err error) {
	_ = ctx
	plan := pricing.PlanFree
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		return 0, 0, err
	}
	if sub != nil {
		plan = pricing.NormalizePlan(sub.Plan)
	}

	month, year := s.currentPeriod()
	count, err = s.repo.GetMonthlyUsageCount(userID, month, year)
	if err != nil {
		return 0, 0, err
	}
	return count, pricing.PlanConfigFor(plan).Features.DocumentsPerMonth, nil
}

// HasActiveSubscription reports whether the user is on an active paid plan.
func (s *Service) HasActiveSubscription(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.IsActive() && pricing.NormalizePlan(sub.Plan) != pricing.PlanFree, nil
}

func (s *Service) currentPeriod() (month, year int) {
	now := s.now()
	return int(now.Month()), now.Year()
}
