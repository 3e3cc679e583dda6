package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/docexpress/docexpress/internal/pkg/documents"
	"github.com/docexpress/docexpress/internal/pkg/ledger"
	"github.com/docexpress/docexpress/internal/pkg/pdf"
)

// HandleFreeTrialEligibility reports whether the email can still claim its
// one lifetime free document.
func HandleFreeTrialEligibility(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return badRequest(c, "Adresse email requise")
	}
	eligible := ledgerService().IsEligibleForFreeTrial(c.Context(), email)
	return c.JSON(fiber.Map{"eligible": eligible})
}

type freeTrialStartRequest struct {
	Email        string            `json:"email"`
	DocumentSlug string            `json:"document_slug"`
	Form         map[string]string `json:"form"`
}

// HandleFreeTrialStart validates the form, issues a verification code and
// emails it to the requester.
func HandleFreeTrialStart(c *fiber.Ctx) error {
	var req freeTrialStartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}
	if req.Email == "" {
		return badRequest(c, "Adresse email requise")
	}
	if _, ok := documents.GetBySlug(req.DocumentSlug); !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}
	if err := documents.ValidateForm(req.DocumentSlug, req.Form); err != nil {
		return badRequest(c, err.Error())
	}

	svc := ledgerService()
	if !svc.IsEligibleForFreeTrial(c.Context(), req.Email) {
		return jsonError(c, fiber.StatusForbidden, "free_trial_used", "Vous avez déjà utilisé votre document gratuit")
	}

	code, err := svc.BeginFreeTrialChallenge(c.Context(), req.Email, req.DocumentSlug, req.Form)
	if err != nil {
		log.Errorf("free trial challenge failed for %s: %v", req.Email, err)
		return internalError(c, "Impossible d'envoyer le code de vérification")
	}

	if err := sendVerificationCode(req.Email, code); err != nil {
		return internalError(c, "Impossible d'envoyer le code de vérification")
	}

	return c.JSON(fiber.Map{"status": "code_sent"})
}

type freeTrialRedeemRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// HandleFreeTrialRedeem verifies the code, renders the document and burns
// the lifetime free credit. The credit is marked used only after a
// successful render; a failed render leaves the email eligible.
func HandleFreeTrialRedeem(c *fiber.Ctx) error {
	var req freeTrialRedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}
	if req.Email == "" || req.Code == "" {
		return badRequest(c, "Email et code requis")
	}

	svc := ledgerService()
	pending, err := svc.RedeemFreeTrialChallenge(c.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrCodeInvalidOrExpired):
			return jsonError(c, fiber.StatusBadRequest, "invalid_code", "Code invalide ou expiré")
		case errors.Is(err, ledger.ErrSessionExpired):
			return jsonError(c, fiber.StatusGone, "session_expired", "Votre demande a expiré, veuillez recommencer")
		default:
			log.Errorf("free trial redeem failed for %s: %v", req.Email, err)
			return internalError(c, "La vérification a échoué")
		}
	}

	tpl, ok := documents.GetBySlug(pending.DocumentSlug)
	if !ok {
		return internalError(c, "Document introuvable")
	}

	renderer := newRenderer()
	pdfBytes, err := renderer.Render(c.Context(), pdf.RenderRequest{
		Slug:  pending.DocumentSlug,
		Title: tpl.Title,
		Form:  pending.FormData,
	})
	if err != nil {
		if errors.Is(err, pdf.ErrUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "pdf_unavailable", "Le service de génération est indisponible")
		}
		log.Errorf("free trial render failed for %s: %v", pending.DocumentSlug, err)
		return internalError(c, "La génération du document a échoué")
	}

	if err := svc.MarkFreeTrialUsed(c.Context(), req.Email, pending.DocumentSlug); err != nil {
		log.Errorf("could not mark free trial used for %s: %v", req.Email, err)
		return internalError(c, "La génération du document a échoué")
	}
	if err := recordGeneration(pending.DocumentSlug); err != nil {
		log.Warnf("document counter update failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+pending.DocumentSlug+`.pdf"`)
	return c.Send(pdfBytes)
}
