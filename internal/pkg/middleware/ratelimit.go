package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/docexpress/docexpress/internal/pkg/ledger"
)

const (
	// FreeDocumentRateLimit caps free-document attempts per IP and hour.
	FreeDocumentRateLimit = 5
	// EmailCheckRateLimit caps eligibility lookups per IP and hour.
	EmailCheckRateLimit = 10
	// ChatRateLimit caps assistant turns per IP and hour; each turn is a
	// paid model completion.
	ChatRateLimit = 30
)

// RateLimiter is a fixed-window per-client limiter backed by the shared
// key-value store so all instances count together.
type RateLimiter struct {
	kv     ledger.KV
	name   string
	limit  int64
	window time.Duration
}

// NewRateLimiter creates a limiter named for the route family it guards.
func NewRateLimiter(kv ledger.KV, name string, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{kv: kv, name: name, limit: limit, window: window}
}

// Allow counts one attempt for the client and reports whether it is within
// the window's limit.
func (r *RateLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", r.name, clientID)

	count, err := r.kv.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.kv.Expire(ctx, key, r.window); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}

// ClientIP resolves the real client address behind proxies: Cloudflare's
// header first, then the first X-Forwarded-For hop, then the socket peer
// with IPv4-mapped-IPv6 addresses unwrapped.
func ClientIP(c *fiber.Ctx) string {
	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	ipAddr := c.IP()
	if strings.HasPrefix(ipAddr, "::ffff:") && strings.Contains(ipAddr, ".") {
		return strings.TrimPrefix(ipAddr, "::ffff:")
	}
	return ipAddr
}

// Handler adapts the limiter to a fiber middleware keyed on the client IP.
// When the store is down requests pass through; rate limiting is
// protection, not a gate.
func (r *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, err := r.Allow(c.Context(), ClientIP(c))
		if err != nil {
			log.Warnf("rate limiter %s unavailable, allowing request: %v", r.name, err)
			return c.Next()
		}
		if !ok {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Trop de tentatives, veuillez réessayer plus tard",
			})
		}
		return c.Next()
	}
}

// RateLimit builds a limiter handler over the shared redis store.
func RateLimit(name string, limit int64, window time.Duration) fiber.Handler {
	return NewRateLimiter(ledger.NewRedisKVFromCache(), name, limit, window).Handler()
}
