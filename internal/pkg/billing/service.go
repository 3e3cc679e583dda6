package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ProviderStripe is the provider tag stored on webhook events.
const ProviderStripe = "stripe"

// ErrUnknownCustomer is returned when a webhook references a Stripe customer
// no local user is linked to.
var ErrUnknownCustomer = errors.New("no user linked to stripe customer")

// Service keeps local subscription rows in sync with the payment provider.
// All plan mutations for registered users flow through here; nothing else
// writes the subscriptions table after signup.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// EnsureFreeSubscription guarantees the user owns a subscription row,
// creating a free one when none exists. Called at signup and as a safety net
// whenever a read finds no row.
func (s *Service) EnsureFreeSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	existing, err := s.repo.GetSubscriptionByUserID(userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now()
	periodEnd := now.AddDate(0, 0, 30)
	sub := &models.Subscription{
		UserID:             userID,
		Plan:               string(pricing.PlanFree),
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &periodEnd,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ApplyCheckoutCompleted handles a finished subscription checkout: it links
// the Stripe customer to the user and activates the purchased plan.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, userID uint, update SubscriptionUpdate) error {
	if userID == 0 {
		return errors.New("user_id is required")
	}

	if update.StripeCustomerID != "" {
		if err := s.repo.SetUserStripeCustomerID(userID, update.StripeCustomerID); err != nil {
			return err
		}
	}

	sub, err := s.EnsureFreeSubscription(ctx, userID)
	if err != nil {
		return err
	}

	plan := PriceIDToPlan(update.StripePriceID)
	sub.Plan = string(plan)
	sub.Status = NormalizeStatus(update.Status)
	sub.StripeSubscriptionID = update.StripeSubscriptionID
	sub.StripePriceID = update.StripePriceID
	sub.CurrentPeriodStart = update.CurrentPeriodStart
	sub.CurrentPeriodEnd = update.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = update.CancelAtPeriodEnd

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return err
	}
	log.Infof("[Billing] user %d moved to plan %s via checkout", userID, plan)
	return nil
}

// ApplySubscriptionUpdated syncs a customer.subscription.updated event onto
// the local row, resolving the user through the Stripe customer id.
func (s *Service) ApplySubscriptionUpdated(ctx context.Context, update SubscriptionUpdate) error {
	sub, err := s.subscriptionForCustomer(ctx, update.StripeCustomerID)
	if err != nil {
		return err
	}

	sub.Plan = string(PriceIDToPlan(update.StripePriceID))
	sub.Status = NormalizeStatus(update.Status)
	sub.StripeSubscriptionID = update.StripeSubscriptionID
	sub.StripePriceID = update.StripePriceID
	sub.CurrentPeriodStart = update.CurrentPeriodStart
	sub.CurrentPeriodEnd = update.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = update.CancelAtPeriodEnd

	return s.repo.UpsertSubscription(sub)
}

// ApplySubscriptionDeleted reverts the user to the free plan and severs the
// Stripe linkage on the row.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, stripeCustomerID string) error {
	sub, err := s.subscriptionForCustomer(ctx, stripeCustomerID)
	if err != nil {
		return err
	}

	sub.Plan = string(pricing.PlanFree)
	sub.Status = models.SubscriptionStatusCanceled
	sub.StripeSubscriptionID = ""
	sub.StripePriceID = ""
	sub.CurrentPeriodStart = nil
	sub.CurrentPeriodEnd = nil
	sub.CancelAtPeriodEnd = false

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return err
	}
	log.Infof("[Billing] subscription for customer %s deleted, user %d back on free", stripeCustomerID, sub.UserID)
	return nil
}

// ApplyPaymentFailed flags the subscription as past_due. Access is withdrawn
// immediately; the plan itself stays so a later successful retry restores it
// without another checkout.
func (s *Service) ApplyPaymentFailed(ctx context.Context, stripeCustomerID string) error {
	sub, err := s.subscriptionForCustomer(ctx, stripeCustomerID)
	if err != nil {
		return err
	}

	sub.Status = models.SubscriptionStatusPastDue
	return s.repo.UpsertSubscription(sub)
}

// RecordWebhookEvent persists a webhook payload idempotently. The boolean is
// false when the event id was already seen, in which case the caller must
// skip processing.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// UserByEmail resolves an email to a local user, for webhook payloads that
// carry no customer linkage yet.
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	_ = ctx
	return s.repo.GetUserByEmail(email)
}

func (s *Service) subscriptionForCustomer(ctx context.Context, stripeCustomerID string) (*models.Subscription, error) {
	if strings.TrimSpace(stripeCustomerID) == "" {
		return nil, errors.New("stripe customer id is required")
	}
	user, err := s.repo.GetUserByStripeCustomerID(stripeCustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownCustomer
		}
		return nil, err
	}
	return s.EnsureFreeSubscription(ctx, user.ID)
}
