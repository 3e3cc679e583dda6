package controllers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"

	"github.com/docexpress/docexpress/internal/pkg/billing"
	"github.com/docexpress/docexpress/internal/pkg/documents"
	"github.com/docexpress/docexpress/internal/pkg/pdf"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"github.com/docexpress/docexpress/internal/pkg/usercontext"
)

type checkoutRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`

	// Single-document purchases carry the chosen document and its form.
	DocumentSlug string            `json:"document_slug"`
	Form         map[string]string `json:"form"`
}

// HandleCreateCheckout starts a Stripe checkout for a pack or a paid plan.
// Logged-in users may omit the email; it is taken from their account.
func HandleCreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}

	email := req.Email
	if email == "" {
		email = usercontext.GetEmail(c)
	}
	if email == "" {
		return badRequest(c, "Adresse email requise")
	}

	stripeClient := billing.NewStripeClientFromEnv()

	var url string
	var err error
	switch req.Type {
	case "single":
		tpl, ok := documents.GetBySlug(req.DocumentSlug)
		if !ok {
			return jsonError(c, fiber.StatusNotFound, "unknown_document", "Document inconnu")
		}
		if verr := documents.ValidateForm(tpl.Slug, req.Form); verr != nil {
			return badRequest(c, "Formulaire incomplet: "+verr.Error())
		}
		url, _, err = stripeClient.CreateSingleCheckout(email, tpl.Slug, tpl.Title, tpl.ShortDescription,
			int64(pricing.DocumentPrice(tpl.Slug)), req.Form)
	case "pack3":
		url, _, err = stripeClient.CreatePackCheckout(email, pricing.PackPrice)
	case "pass_monthly":
		url, err = stripeClient.CreateSubscriptionCheckout(email, pricing.PlanPass)
	case "pro_monthly":
		url, err = stripeClient.CreateSubscriptionCheckout(email, pricing.PlanPro)
	default:
		return badRequest(c, "Type d'achat inconnu")
	}

	if err != nil {
		if errors.Is(err, billing.ErrStripeUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "payment_unavailable", "Paiement non disponible")
		}
		log.Errorf("checkout %s failed for %s: %v", req.Type, email, err)
		return internalError(c, "La création du paiement a échoué")
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleSingleDownload delivers the PDF for a paid single-document session.
// The session metadata carries the slug and the form data captured at
// checkout, so nothing is stored on our side; the session itself is the
// proof of payment and can be re-downloaded as long as Stripe retains it.
func HandleSingleDownload(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return badRequest(c, "Session ID requis")
	}

	stripeClient := billing.NewStripeClientFromEnv()
	if !stripeClient.Available() {
		return jsonError(c, fiber.StatusServiceUnavailable, "payment_unavailable", "Paiement non disponible")
	}

	sess, err := stripeClient.GetCheckoutSession(sessionID)
	if err != nil {
		log.Errorf("stripe session retrieval failed for %s: %v", sessionID, err)
		return jsonError(c, fiber.StatusNotFound, "not_found", "Session non trouvée")
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return jsonError(c, fiber.StatusForbidden, "payment_incomplete", "Paiement non complété")
	}
	if sess.Metadata["type"] != "single" {
		return badRequest(c, "Cette session n'est pas un achat de document")
	}

	slug := sess.Metadata["document_slug"]
	tpl, ok := documents.GetBySlug(slug)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}

	var form map[string]string
	if err := json.Unmarshal([]byte(sess.Metadata["form_data"]), &form); err != nil {
		log.Errorf("malformed form data in session %s: %v", sessionID, err)
		return internalError(c, "Données de formulaire illisibles")
	}
	if err := documents.ValidateForm(slug, form); err != nil {
		return badRequest(c, err.Error())
	}

	renderer := newRenderer()
	pdfBytes, err := renderer.Render(c.Context(), pdf.RenderRequest{
		Slug:  slug,
		Title: tpl.Title,
		Form:  form,
	})
	if err != nil {
		if errors.Is(err, pdf.ErrUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "pdf_unavailable", "Le service de génération est indisponible")
		}
		log.Errorf("single purchase render failed for %s: %v", slug, err)
		return internalError(c, "La génération du document a échoué")
	}

	if err := recordGeneration(slug); err != nil {
		log.Warnf("document counter update failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+slug+`.pdf"`)
	return c.Send(pdfBytes)
}
