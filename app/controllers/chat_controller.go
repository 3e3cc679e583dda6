package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/docexpress/docexpress/internal/pkg/chat"
	"github.com/docexpress/docexpress/internal/pkg/documents"
)

type chatRequest struct {
	DocumentSlug  string            `json:"document_slug"`
	Messages      []chat.Message    `json:"messages"`
	CollectedData map[string]string `json:"collected_data"`
}

// HandleChat runs one turn of the form-filling assistant. The assistant only
// collects form data; generating the document afterwards goes through the
// normal entitlement checks.
func HandleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}

	tpl, ok := documents.GetBySlug(req.DocumentSlug)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Document introuvable")
	}

	reply, err := newAssistant().Converse(c.Context(), tpl, req.Messages, req.CollectedData)
	if err != nil {
		if errors.Is(err, chat.ErrUnavailable) {
			return jsonError(c, fiber.StatusServiceUnavailable, "assistant_unavailable",
				"Assistant IA non disponible pour le moment. Veuillez utiliser le formulaire.")
		}
		log.Errorf("chat turn failed for %s: %v", req.DocumentSlug, err)
		return internalError(c, "Une erreur est survenue. Réessayez.")
	}

	return c.JSON(reply)
}
