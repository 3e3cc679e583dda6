package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docexpress/docexpress/internal/pkg/ledger"
)

func TestRateLimiterWindow(t *testing.T) {
	kv := ledger.NewMemoryKV()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	kv.Now = func() time.Time { return current }

	limiter := NewRateLimiter(kv, "free-doc", 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d should pass", i+1)
	}

	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different client has its own counter.
	ok, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	// The window resets once it elapses.
	current = base.Add(time.Hour + time.Minute)
	ok, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientIPHeaderPrecedence(t *testing.T) {
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = ClientIP(c)
		return c.SendString("ok")
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare header wins", map[string]string{
			"CF-Connecting-IP": "203.0.113.7",
			"X-Forwarded-For":  "198.51.100.1, 10.0.0.2",
		}, "203.0.113.7"},
		{"first forwarded hop", map[string]string{
			"X-Forwarded-For": "198.51.100.1, 10.0.0.2",
		}, "198.51.100.1"},
		{"socket peer fallback", nil, "0.0.0.0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, got)
		})
	}
}
