package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/docexpress/docexpress/app/models"
	"github.com/docexpress/docexpress/internal/pkg/cache"
	"github.com/docexpress/docexpress/internal/pkg/database"
	"github.com/docexpress/docexpress/internal/pkg/usercontext"
)

// SessionKeyPrefix namespaces login tokens in the key-value store.
const SessionKeyPrefix = "session:"

// UserContextMiddleware resolves the Authorization bearer token into a user
// context for every request. Requests without a valid token continue as
// anonymous; route guards decide whether that is acceptable.
func UserContextMiddleware(c *fiber.Ctx) error {
	token := extractBearerToken(c)
	if token == "" {
		return asAnonymous(c)
	}

	val, err := cache.Get(SessionKeyPrefix + token)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Errorf("session lookup failed: %v", err)
		}
		return asAnonymous(c)
	}

	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil || userID == 0 {
		return asAnonymous(c)
	}

	db := database.GetDB()
	if db == nil {
		log.Error("user context middleware: database unavailable")
		return asAnonymous(c)
	}

	var user models.User
	if err := db.First(&user, uint(userID)).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("user lookup failed for session %s: %v", token, err)
		}
		return asAnonymous(c)
	}

	c.Locals("USER_CONTEXT", usercontext.UserContext{
		UserID:     user.ID,
		Username:   user.Name,
		Email:      user.Email,
		IsLoggedIn: true,
		IsAdmin:    user.Role == models.ROLE_ADMIN,
	})
	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUserID, user.ID)
	return c.Next()
}

// RequireAuth rejects anonymous requests with a JSON 401.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Connexion requise",
		})
	}
	return c.Next()
}

// RequireAdmin rejects requests that are not from a logged-in admin.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Connexion requise",
		})
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "Accès réservé",
		})
	}
	return c.Next()
}

func asAnonymous(c *fiber.Ctx) error {
	c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
	c.Locals(usercontext.KeyFromProtected, false)
	return c.Next()
}

func extractBearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
