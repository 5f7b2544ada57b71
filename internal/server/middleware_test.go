package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Server{
		config: &config.Config{
			JWTSecret:   "test-secret-key-12345678901234567890123456789012",
			JWTIssuer:   "inkwell-api",
			JWTAudience: "inkwell-client",
		},
		redis: rdb,
	}, mr
}

func TestServer_AuthRequired(t *testing.T) {
	s, mr := newAuthServer(t)
	app := fiber.New()
	whoami := func(c *fiber.Ctx) error {
		ctxUser, _ := c.UserContext().Value(middleware.UserIDKey).(uint)
		return c.JSON(fiber.Map{"user": currentUserID(c), "ctx_user": ctxUser})
	}
	app.Post("/api/posts/:id/like", s.AuthRequired(), whoami)
	app.Get("/api/ws", s.AuthRequired(), whoami)

	token, claims, err := middleware.IssueToken(s.config, 42, "ada")
	require.NoError(t, err)
	revoked, revokedClaims, err := middleware.IssueToken(s.config, 42, "ada")
	require.NoError(t, err)
	mr.Set(revokedTokenKey(revokedClaims.JTI), "1")
	mr.Set(wsTicketKey("ticket-ok"), "42")
	mr.Set(wsTicketKey("ticket-bad"), "not-a-user")
	require.NotEqual(t, claims.JTI, revokedClaims.JTI)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		status int
	}{
		{"bearer token", http.MethodPost, "/api/posts/1/like", token, http.StatusOK},
		{"token in query on plain route", http.MethodPost, "/api/posts/1/like?token=" + token, "", http.StatusOK},
		{"token in query on websocket route", http.MethodGet, "/api/ws?token=" + token, "", http.StatusUnauthorized},
		{"websocket ticket", http.MethodGet, "/api/ws?ticket=ticket-ok", "", http.StatusOK},
		{"ticket already used", http.MethodGet, "/api/ws?ticket=ticket-ok", "", http.StatusUnauthorized},
		{"ticket with bad payload", http.MethodGet, "/api/ws?ticket=ticket-bad", "", http.StatusUnauthorized},
		{"unknown ticket falls back to bearer", http.MethodPost, "/api/posts/1/like?ticket=nope", token, http.StatusOK},
		{"revoked token", http.MethodPost, "/api/posts/1/like", revoked, http.StatusUnauthorized},
		{"garbage token", http.MethodPost, "/api/posts/1/like", "not.a.jwt", http.StatusUnauthorized},
		{"no credentials", http.MethodPost, "/api/posts/1/like", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tt.bearer)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == http.StatusOK {
				var body map[string]float64
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(42), body["user"])
				assert.Equal(t, float64(42), body["ctx_user"])
			}
		})
	}
}

func TestServer_AuthRequiredWithoutRedis(t *testing.T) {
	s, _ := newAuthServer(t)
	s.redis = nil
	app := fiber.New()
	app.Get("/api/feed", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	token, _, err := middleware.IssueToken(s.config, 7, "grace")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/feed?ticket=anything", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestServer_RevocationKeyExpires(t *testing.T) {
	s, mr := newAuthServer(t)
	app := fiber.New()
	app.Get("/api/feed", s.AuthRequired(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	token, claims, err := middleware.IssueToken(s.config, 7, "grace")
	require.NoError(t, err)
	mr.Set(revokedTokenKey(claims.JTI), "1")
	mr.SetTTL(revokedTokenKey(claims.JTI), time.Minute)

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, fiber.StatusUnauthorized, get())

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, fiber.StatusNoContent, get())
}
