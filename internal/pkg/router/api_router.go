package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docexpress/docexpress/app/controllers"
	"github.com/docexpress/docexpress/internal/pkg/constants"
	"github.com/docexpress/docexpress/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Resolve the bearer token on every request; guards decide per route.
	app.Use(middleware.UserContextMiddleware)

	api := app.Group(constants.APIRoute)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "DocExpress API",
		})
	})

	v1 := api.Group("/v1")

	// Auth + account
	v1.Post("/auth/register", controllers.HandleAuthRegister)
	v1.Post("/auth/login", controllers.HandleAuthLogin)
	v1.Post("/auth/logout", controllers.HandleAuthLogout)
	v1.Get("/account", middleware.RequireAuth, controllers.HandleGetAccount)
	v1.Get("/account/usage", middleware.RequireAuth, controllers.HandleGetUsage)

	// Document catalog and entitlement checks
	v1.Get("/documents", controllers.HandleListDocuments)
	v1.Get("/documents/:slug", controllers.HandleGetDocument)
	v1.Get("/documents/:slug/access", controllers.HandleCheckDocumentAccess)
	v1.Post("/documents/:slug/generate", middleware.RequireAuth, controllers.HandleGenerateDocument)

	// Free document flow, rate limited per IP
	freeDoc := v1.Group("/free-document")
	freeDoc.Get("/eligibility",
		middleware.RateLimit("email-check", middleware.EmailCheckRateLimit, time.Hour),
		controllers.HandleFreeTrialEligibility)
	freeDoc.Post("/start",
		middleware.RateLimit("free-doc", middleware.FreeDocumentRateLimit, time.Hour),
		controllers.HandleFreeTrialStart)
	freeDoc.Post("/redeem",
		middleware.RateLimit("free-doc", middleware.FreeDocumentRateLimit, time.Hour),
		controllers.HandleFreeTrialRedeem)

	// Packs
	v1.Get("/pack", controllers.HandlePackStatus)
	v1.Post("/pack", controllers.HandlePackConsume)
	v1.Post("/pack/checkout", controllers.HandlePackCheckout)
	v1.Post("/pack/activate", controllers.HandlePackActivate)

	// Conversational form filling
	v1.Post("/chat",
		middleware.RateLimit("chat", middleware.ChatRateLimit, time.Hour),
		controllers.HandleChat)

	// Payments
	v1.Post("/checkout", controllers.HandleCreateCheckout)
	v1.Get("/checkout/download", controllers.HandleSingleDownload)
	v1.Post("/webhooks/stripe", controllers.HandleStripeWebhook)

	// Admin
	v1.Get("/admin/stats", middleware.RequireAdmin, controllers.HandleAdminStats)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
