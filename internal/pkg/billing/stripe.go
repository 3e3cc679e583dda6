package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/docexpress/docexpress/internal/pkg/env"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrStripeUnavailable is returned when no Stripe secret key is configured.
// Local development runs without Stripe; callers fall back to their dev-mode
// behavior on this error.
var ErrStripeUnavailable = errors.New("stripe is not configured")

// StripeClient wraps the Stripe SDK with our checkout flows.
type StripeClient struct {
	secretKey     string
	webhookSecret string
	publicDomain  string
}

// NewStripeClientFromEnv builds the client from environment configuration.
func NewStripeClientFromEnv() *StripeClient {
	c := &StripeClient{
		secretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
		webhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		publicDomain:  strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000"), "/"),
	}
	if c.Available() {
		stripe.Key = c.secretKey
	}
	return c
}

// Available reports whether Stripe credentials are configured.
func (c *StripeClient) Available() bool {
	return c.secretKey != ""
}

// CreatePackCheckout starts a one-time payment session for a document pack.
// The buyer's email rides along so pack activation can bind the pack to it.
func (c *StripeClient) CreatePackCheckout(email string, amountCents int64) (url, sessionID string, err error) {
	if !c.Available() {
		return "", "", ErrStripeUnavailable
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("eur"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("Pack 3 Documents"),
						Description: stripe.String("3 documents au choix parmi +30 modèles. Valable 1 an."),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.publicDomain + "/pack/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.publicDomain + "/pack"),
	}
	params.AddMetadata("type", "pack3")

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe checkout session: %w", err)
	}
	return sess.URL, sess.ID, nil
}

// CreateSingleCheckout starts a one-time payment session for a single
// document. The slug and the validated form data travel in the session
// metadata so the paid document can be rendered straight from the session,
// without any account or ledger state.
func (c *StripeClient) CreateSingleCheckout(email, slug, title, description string, amountCents int64, form map[string]string) (url, sessionID string, err error) {
	if !c.Available() {
		return "", "", ErrStripeUnavailable
	}

	formJSON, err := json.Marshal(form)
	if err != nil {
		return "", "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("eur"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(title),
						Description: stripe.String(description),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.publicDomain + "/document/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.publicDomain + "/documents/" + slug),
	}
	params.AddMetadata("type", "single")
	params.AddMetadata("document_slug", slug)
	params.AddMetadata("form_data", string(formJSON))

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe checkout session: %w", err)
	}
	return sess.URL, sess.ID, nil
}

// CreateSubscriptionCheckout starts a recurring checkout for a paid plan.
func (c *StripeClient) CreateSubscriptionCheckout(email string, plan pricing.Plan) (url string, err error) {
	if !c.Available() {
		return "", ErrStripeUnavailable
	}

	var priceID string
	switch plan {
	case pricing.PlanPass:
		priceID = env.GetEnv("STRIPE_PRICE_PASS_MONTHLY", "")
	case pricing.PlanPro:
		priceID = env.GetEnv("STRIPE_PRICE_PRO_MONTHLY", "")
	}
	if priceID == "" {
		return "", fmt.Errorf("no stripe price configured for plan %s", plan)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.publicDomain + "/abonnement/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.publicDomain + "/tarifs"),
	}
	params.AddMetadata("type", "subscription")
	params.AddMetadata("price_id", priceID)

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", err)
	}
	return sess.URL, nil
}

// GetCheckoutSession loads a checkout session, used to confirm a pack
// payment before activation.
func (c *StripeClient) GetCheckoutSession(sessionID string) (*stripe.CheckoutSession, error) {
	if !c.Available() {
		return nil, ErrStripeUnavailable
	}
	return session.Get(sessionID, nil)
}

// ConstructWebhookEvent verifies the signature header and parses the event.
func (c *StripeClient) ConstructWebhookEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c.webhookSecret == "" {
		return stripe.Event{}, ErrStripeUnavailable
	}
	return webhook.ConstructEventWithOptions(
		payload,
		signatureHeader,
		c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
}
