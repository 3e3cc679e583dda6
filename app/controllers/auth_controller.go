package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/billing"
	"github.com/docexpress/docexpress/internal/pkg/cache"
	"github.com/docexpress/docexpress/internal/pkg/database"
	"github.com/docexpress/docexpress/internal/pkg/middleware"
	"github.com/docexpress/docexpress/internal/pkg/usercontext"
)

// sessionTTL is how long a login token stays valid.
const sessionTTL = 24 * time.Hour

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates an account with its free subscription.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return badRequest(c, err.Error())
	}
	// No email activation step; accounts are usable immediately.
	user.Status = models.STATUS_ACTIVE

	db := database.GetDB()
	if err := db.Create(user).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return jsonError(c, fiber.StatusConflict, "email_taken", "Un compte existe déjà avec cette adresse email")
		}
		log.Errorf("user creation failed: %v", err)
		return internalError(c, "La création du compte a échoué")
	}

	// Every account starts on the free plan.
	if _, err := billing.NewServiceFromDB(db).EnsureFreeSubscription(c.Context(), user.ID); err != nil {
		log.Errorf("free subscription creation failed for user %d: %v", user.ID, err)
		return internalError(c, "La création du compte a échoué")
	}

	token, err := issueSessionToken(user.ID)
	if err != nil {
		log.Errorf("session issue failed for user %d: %v", user.ID, err)
		return internalError(c, "La création du compte a échoué")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthLogin exchanges credentials for a bearer token.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Corps de requête invalide")
	}

	// Deliberately the same message for unknown email and wrong password.
	loginFailed := func() error {
		return jsonError(c, fiber.StatusUnauthorized, "login_failed", "Email ou mot de passe incorrect")
	}

	var user models.User
	if err := database.GetDB().Where("email = ?", req.Email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("login lookup failed: %v", err)
		}
		return loginFailed()
	}
	if !user.CheckPassword(req.Password) {
		return loginFailed()
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "account_disabled", "Ce compte est désactivé")
	}

	token, err := issueSessionToken(user.ID)
	if err != nil {
		log.Errorf("session issue failed for user %d: %v", user.ID, err)
		return internalError(c, "La connexion a échoué")
	}

	database.GetDB().Model(&user).Update("last_login_at", time.Now())

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	})
}

// HandleAuthLogout invalidates the presented bearer token.
func HandleAuthLogout(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 {
		token := header[7:]
		if err := cache.Delete(middleware.SessionKeyPrefix + token); err != nil {
			log.Warnf("session delete failed: %v", err)
		}
	}
	return c.JSON(fiber.Map{"status": "logged_out"})
}

// HandleGetAccount returns the logged-in user with plan and usage.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	db := database.GetDB()
	var user models.User
	if err := db.Preload("Subscription").First(&user, userCtx.UserID).Error; err != nil {
		return internalError(c, "Impossible de charger votre compte")
	}

	resp := fiber.Map{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.Subscription != nil {
		resp["plan"] = user.Subscription.Plan
		resp["plan_status"] = user.Subscription.Status
		resp["cancel_at_period_end"] = user.Subscription.CancelAtPeriodEnd
		if user.Subscription.CurrentPeriodEnd != nil {
			resp["current_period_end"] = user.Subscription.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		}
	} else {
		resp["plan"] = "free"
		resp["plan_status"] = models.SubscriptionStatusActive
	}
	return c.JSON(resp)
}

func issueSessionToken(userID uint) (string, error) {
	token := uuid.New().String()
	if err := cache.Set(middleware.SessionKeyPrefix+token, userID, sessionTTL); err != nil {
		return "", err
	}
	return token, nil
}
