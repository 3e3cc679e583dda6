package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/docexpress/docexpress/internal/pkg/documents"
	"github.com/docexpress/docexpress/internal/pkg/entitlements"
	"github.com/docexpress/docexpress/internal/pkg/pdf"
	"github.com/docexpress/docexpress/internal/pkg/pricing"
	"github.com/docexpress/docexpress/internal/pkg/usercontext"
)

// HandleListDocuments returns the document catalog with pricing info.
func HandleListDocuments(c *fiber.Ctx) error {
	templates := documents.All()
	items := make([]fiber.Map, 0, len(templates))
	for _, tpl := range templates {
		tier, _ := pricing.TierForDocument(tpl.Slug)
		items = append(items, fiber.Map{
			"slug":            tpl.Slug,
			"title":           tpl.Title,
			"category":        tpl.Category,
			"popular":         tpl.Popular,
			"tier":            tier,
			"price_cents":     pricing.DocumentPrice(tpl.Slug),
			"price_formatted": pricing.FormatPrice(pricing.DocumentPrice(tpl.Slug)),
		})
	}
	return c.JSON(fiber.Map{"documents": items})
}

// HandleGetDocument returns one template with its required fields.
func HandleGetDocument(c *fiber.Ctx) error {
	slug := c.Params("slug")
	tpl, ok := documents.GetBySlug(slug)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}
	tier, _ := pricing.TierForDocument(tpl.Slug)
	return c.JSON(fiber.Map{
		"slug":            tpl.Slug,
		"title":           tpl.Title,
		"category":        tpl.Category,
		"popular":         tpl.Popular,
		"tier":            tier,
		"price_cents":     pricing.DocumentPrice(tpl.Slug),
		"price_formatted": pricing.FormatPrice(pricing.DocumentPrice(tpl.Slug)),
		"required_fields": tpl.RequiredFields,
	})
}

// HandleCheckDocumentAccess runs the entitlement check for the current user
// without consuming anything. Anonymous requests get login_required.
func HandleCheckDocumentAccess(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if _, ok := documents.GetBySlug(slug); !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}

	svc := entitlementsService()
	decision, err := svc.CheckDocumentAccess(c.Context(), slug, usercontext.GetUserID(c))
	if err != nil {
		log.Errorf("access check failed for %s: %v", slug, err)
		return internalError(c, "Vérification d'accès impossible")
	}
	return c.JSON(decision)
}

type generateRequest struct {
	Form map[string]string `json:"form"`
}

// HandleGenerateDocument produces a PDF for a logged-in user. The
// entitlement check runs first; monthly usage is incremented only after the
// renderer succeeded, so a failed render never costs quota.
func HandleGenerateDocument(c *fiber.Ctx) error {
	slug := c.Params("slug")
	tpl, ok := documents.GetBySlug(slug)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}

	userID := usercontext.GetUserID(c)
	svc := entitlementsService()
	decision, err := svc.CheckDocumentAccess(c.Context(), slug, userID)
	if err != nil {
		log.Errorf("access check failed for %s: %v", slug, err)
		return internalError(c, "Vérification d'accès impossible")
	}
	if !decision.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(decision)
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}
	if err := documents.ValidateForm(slug, req.Form); err != nil {
		return badRequest(c, err.Error())
	}

	renderer := newRenderer()
	pdfBytes, err := renderer.Render(c.Context(), pdf.RenderRequest{
		Slug:  slug,
		Title: tpl.Title,
		Form:  req.Form,
	})
	if err != nil {
		if errors.Is(err, pdf.ErrUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "pdf_unavailable", "Le service de génération est indisponible")
		}
		log.Errorf("render failed for %s: %v", slug, err)
		return internalError(c, "La génération du document a échoué")
	}

	// Only free-tier generations count against the monthly quota.
	if decision.Reason == entitlements.ReasonFreeTier {
		if err := svc.IncrementMonthlyUsage(c.Context(), userID); err != nil {
			log.Errorf("usage increment failed for user %d: %v", userID, err)
			return internalError(c, "La génération du document a échoué")
		}
	}
	if err := recordGeneration(slug); err != nil {
		log.Warnf("document counter update failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.pdf"`, slug))
	return c.Send(pdfBytes)
}

// HandleGetUsage returns the current monthly usage of the logged-in user.
func HandleGetUsage(c *fiber.Ctx) error {
	svc := entitlementsService()
	count, limit, err := svc.CurrentUsage(c.Context(), usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Impossible de charger votre utilisation")
	}
	resp := fiber.Map{"used": count}
	if limit == pricing.UnlimitedDocuments {
		resp["limit"] = nil
		resp["unlimited"] = true
	} else {
		resp["limit"] = limit
		resp["unlimited"] = false
	}
	return c.JSON(resp)
}
