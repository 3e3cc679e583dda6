package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"

	"github.com/docexpress/docexpress/internal/pkg/billing"
	"github.com/docexpress/docexpress/internal/pkg/constants"
	"github.com/docexpress/docexpress/internal/pkg/documents"
	"github.com/docexpress/docexpress/internal/pkg/ledger"
	"github.com/docexpress/docexpress/internal/pkg/pdf"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
)

// HandlePackStatus reports the active pack of an email, if any.
func HandlePackStatus(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return badRequest(c, "Adresse email requise")
	}

	pack, err := ledgerService().GetActivePack(c.Context(), email)
	if err != nil {
		log.Errorf("pack lookup failed for %s: %v", email, err)
		return internalError(c, "Impossible de vérifier votre pack")
	}
	if pack == nil {
		return c.JSON(fiber.Map{"has_pack": false})
	}

	return c.JSON(fiber.Map{
		"has_pack":            true,
		"pack_id":             pack.ID,
		"documents_remaining": pack.DocumentsRemaining,
		"documents_total":     pack.DocumentsTotal,
		"expires_at":          pack.ExpiresAt,
		"documents_used":      pack.DocumentsUsed,
	})
}

type packActivateRequest struct {
	SessionID string `json:"session_id"`
}

// HandlePackActivate turns a paid checkout session into a pack. The call is
// idempotent: retries and webhook/client races all resolve to the same pack.
// Without Stripe configured a dev-mode test pack is created instead.
func HandlePackActivate(c *fiber.Ctx) error {
	var req packActivateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}
	if req.SessionID == "" {
		return badRequest(c, "Session ID requis")
	}

	stripeClient := billing.NewStripeClientFromEnv()
	email := ""
	if stripeClient.Available() {
		sess, err := stripeClient.GetCheckoutSession(req.SessionID)
		if err != nil {
			log.Errorf("stripe session retrieval failed for %s: %v", req.SessionID, err)
			return jsonError(c, fiber.StatusNotFound, "not_found", "Session non trouvée")
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return badRequest(c, "Paiement non complété")
		}
		if sess.Metadata["type"] != "pack3" {
			return badRequest(c, "Cette session n'est pas un achat de pack")
		}
		email = sess.CustomerEmail
		if email == "" && sess.CustomerDetails != nil {
			email = sess.CustomerDetails.Email
		}
		if email == "" {
			return badRequest(c, "Email non trouvé dans la session")
		}
	} else {
		// Dev mode without Stripe.
		log.Warnf("stripe unavailable, creating dev pack for session %s", req.SessionID)
		email = "test@docexpress.fr"
	}

	pack, err := ledgerService().CreatePack(c.Context(), email, req.SessionID, ledger.PackSize)
	if err != nil {
		log.Errorf("pack creation failed for session %s: %v", req.SessionID, err)
		return internalError(c, "Erreur lors de la création du pack")
	}

	return c.JSON(fiber.Map{
		"pack_id":             pack.ID,
		"email":               pack.Email,
		"documents_remaining": pack.DocumentsRemaining,
		"expires_at":          pack.ExpiresAt,
	})
}

type packConsumeRequest struct {
	Email        string            `json:"email"`
	PackID       string            `json:"pack_id"`
	DocumentSlug string            `json:"document_slug"`
	Form         map[string]string `json:"form"`
}

// HandlePackConsume spends one pack credit on a document. The credit is
// consumed before the render: a crash between decrement and delivery must
// never leave a spendable credit behind.
func HandlePackConsume(c *fiber.Ctx) error {
	var req packConsumeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}
	if req.Email == "" || req.PackID == "" || req.DocumentSlug == "" {
		return badRequest(c, "Données manquantes")
	}

	tpl, ok := documents.GetBySlug(req.DocumentSlug)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}
	if err := documents.ValidateForm(req.DocumentSlug, req.Form); err != nil {
		return badRequest(c, err.Error())
	}

	svc := ledgerService()

	// The pack must belong to the claiming email and still be active.
	active, err := svc.GetActivePack(c.Context(), req.Email)
	if err != nil {
		log.Errorf("pack lookup failed for %s: %v", req.Email, err)
		return internalError(c, "Impossible de vérifier votre pack")
	}
	if active == nil || active.ID != req.PackID {
		return jsonError(c, fiber.StatusForbidden, "pack_invalid", "Pack invalide ou expiré")
	}

	remaining, err := svc.ConsumePackCredit(c.Context(), req.PackID, req.DocumentSlug)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrPackExhausted):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":               "pack_exhausted",
				"message":             "Plus de documents disponibles dans votre pack",
				"documents_remaining": 0,
			})
		case errors.Is(err, ledger.ErrPackInvalidOrExpired):
			return jsonError(c, fiber.StatusForbidden, "pack_invalid", "Pack invalide ou expiré")
		default:
			log.Errorf("pack consumption failed for %s: %v", req.PackID, err)
			return internalError(c, "La consommation du crédit a échoué")
		}
	}

	renderer := newRenderer()
	pdfBytes, err := renderer.Render(c.Context(), pdf.RenderRequest{
		Slug:  req.DocumentSlug,
		Title: tpl.Title,
		Form:  req.Form,
	})
	if err != nil {
		log.Errorf("pack render failed for %s: %v", req.DocumentSlug, err)
		return internalError(c, "La génération du document a échoué")
	}

	// Delivery by email is best-effort; the download below is the primary channel.
	if err := sendDocumentReady(req.Email, tpl.Title); err != nil {
		log.Warnf("document email to %s failed: %v", req.Email, err)
	}
	if err := recordGeneration(req.DocumentSlug); err != nil {
		log.Warnf("document counter update failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+req.DocumentSlug+`.pdf"`)
	c.Set(constants.HeaderDocumentsRemaining, strconv.Itoa(remaining))
	return c.Send(pdfBytes)
}

type packCheckoutRequest struct {
	Email string `json:"email"`
}

// HandlePackCheckout starts a Stripe checkout for the 3-document pack.
func HandlePackCheckout(c *fiber.Ctx) error {
	var req packCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}
	if req.Email == "" {
		return badRequest(c, "Adresse email requise")
	}

	stripeClient := billing.NewStripeClientFromEnv()
	url, _, err := stripeClient.CreatePackCheckout(req.Email, pricing.PackPrice)
	if err != nil {
		if errors.Is(err, billing.ErrStripeUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "payment_unavailable", "Paiement non disponible")
		}
		log.Errorf("pack checkout failed for %s: %v", req.Email, err)
		return internalError(c, "La création du paiement a échoué")
	}
	return c.JSON(fiber.Map{"url": url})
}
