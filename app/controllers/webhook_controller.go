package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"

	"github.com/docexpress/docexpress/internal/pkg/billing"
	"github.com/docexpress/docexpress/internal/pkg/database"
	"github.com/docexpress/docexpress/internal/pkg/ledger"
)

// HandleStripeWebhook verifies, records and processes Stripe events. Every
// event is persisted before processing; replayed deliveries are detected by
// event id and acknowledged without reprocessing.
func HandleStripeWebhook(c *fiber.Ctx) error {
	stripeClient := billing.NewStripeClientFromEnv()

	event, err := stripeClient.ConstructWebhookEvent(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrStripeUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "webhook_unconfigured", "Webhook non configuré")
		}
		log.Warnf("stripe webhook signature verification failed: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Signature invalide")
	}

	svc := billing.NewServiceFromDB(database.GetDB())

	created, stored, err := svc.RecordWebhookEvent(c.Context(), billing.WebhookEventInput{
		Provider:        billing.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(c.Body()),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("could not record webhook event %s: %v", event.ID, err)
		return internalError(c, "Erreur serveur")
	}
	if !created {
		log.Infof("stripe event %s already recorded, skipping", event.ID)
		return c.JSON(fiber.Map{"status": "duplicate"})
	}

	processErr := processStripeEvent(c, svc, event)
	if err := svc.MarkWebhookProcessed(c.Context(), stored.ID, processErr); err != nil {
		log.Errorf("could not mark webhook %d processed: %v", stored.ID, err)
	}
	if processErr != nil {
		log.Errorf("stripe event %s (%s) processing failed: %v", event.ID, event.Type, processErr)
		return internalError(c, "Erreur serveur")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func processStripeEvent(c *fiber.Ctx, svc *billing.Service, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return err
		}
		return applyCheckoutCompleted(c, svc, &sess)

	case "customer.subscription.updated", "customer.subscription.created":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		return svc.ApplySubscriptionUpdated(c.Context(), subscriptionUpdateFromStripe(&sub))

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		if sub.Customer == nil {
			return errors.New("subscription event without customer")
		}
		return svc.ApplySubscriptionDeleted(c.Context(), sub.Customer.ID)

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return err
		}
		if inv.Customer == nil {
			return errors.New("invoice event without customer")
		}
		return svc.ApplyPaymentFailed(c.Context(), inv.Customer.ID)

	default:
		// Unhandled event types are acknowledged and ignored.
		return nil
	}
}

func applyCheckoutCompleted(c *fiber.Ctx, svc *billing.Service, sess *stripe.CheckoutSession) error {
	email := sess.CustomerEmail
	if email == "" && sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}

	// Pack purchases create a ledger pack; activation from the success page
	// races with this handler, idempotency by session id resolves it.
	if sess.Metadata["type"] == "pack3" {
		if email == "" {
			return errors.New("pack checkout without customer email")
		}
		_, err := ledgerService().CreatePack(c.Context(), email, sess.ID, ledger.PackSize)
		return err
	}

	if sess.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}
	if email == "" {
		return errors.New("subscription checkout without customer email")
	}

	user, err := svc.UserByEmail(c.Context(), email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Checkout from an email that never registered; nothing to sync.
			log.Warnf("subscription checkout for unknown email %s", email)
			return nil
		}
		return err
	}

	update := billing.SubscriptionUpdate{
		StripePriceID: sess.Metadata["price_id"],
		Status:        "active",
	}
	if sess.Customer != nil {
		update.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		update.StripeSubscriptionID = sess.Subscription.ID
	}
	return svc.ApplyCheckoutCompleted(c.Context(), user.ID, update)
}

func subscriptionUpdateFromStripe(sub *stripe.Subscription) billing.SubscriptionUpdate {
	update := billing.SubscriptionUpdate{
		StripeSubscriptionID: sub.ID,
		Status:               string(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		update.StripeCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		update.StripePriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodStart > 0 {
		start := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		update.CurrentPeriodStart = &start
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		update.CurrentPeriodEnd = &end
	}
	return update
}
