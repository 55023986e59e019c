package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("JWT_ACCESS_KEY", "access-secret")
	t.Setenv("JWT_REFRESH_KEY", "refresh-secret")

	app := fiber.New()
	app.Get("/me", JWT(), OTP(), func(c *fiber.Ctx) error {
		return c.SendString(Actor(c))
	})
	return app
}

func call(t *testing.T, app *fiber.App, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	res, err := app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func TestJWTStatusCodes(t *testing.T) {
	app := newProtectedApp(t)

	status, body := call(t, app, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Missing or malformed JWT")

	status, body = call(t, app, "Bearer not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid or expired JWT")

	tokens, err := utils.GenerateTokens("alice", false)
	require.NoError(t, err)
	status, body = call(t, app, "Bearer "+tokens.Access)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body)
}

func TestOTPRejectsPendingSecondFactor(t *testing.T) {
	app := newProtectedApp(t)

	tokens, err := utils.GenerateTokens("alice", true)
	require.NoError(t, err)
	status, body := call(t, app, "Bearer "+tokens.Access)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "2FA required")
}
