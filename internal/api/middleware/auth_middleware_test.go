package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthApp() *fiber.App {
	m := NewAuthMiddleware(config.Config{SecretKey: testSecret, CookieName: "session", SessionTTL: 24 * time.Hour})
	app := fiber.New()
	app.Use(m.AuthMiddleware())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("account_id").(string))
	})
	return app
}

func call(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(body)
}

func TestAuthAcceptsCookieAndBearer(t *testing.T) {
	app := newAuthApp()
	token, err := utils.GenerateToken(testSecret, "acct-7", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	resp, body := call(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acct-7", body)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, body = call(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acct-7", body)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	resp, _ := call(t, newAuthApp(), httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRejectsInvalidCookieAndClearsIt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "not-a-jwt"})

	resp, _ := call(t, newAuthApp(), req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "session=")
}

func TestAuthRefreshesExpiringCookie(t *testing.T) {
	app := newAuthApp()

	fresh, err := utils.GenerateToken(testSecret, "acct-7", 24*time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: fresh})
	resp, _ := call(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Set-Cookie"))

	expiring, err := utils.GenerateToken(testSecret, "acct-7", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: expiring})
	resp, body := call(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acct-7", body)

	var refreshed string
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			refreshed = c.Value
		}
	}
	require.NotEmpty(t, refreshed)
	claims, err := utils.ValidateToken(testSecret, refreshed)
	require.NoError(t, err)
	assert.Equal(t, "acct-7", claims.UserID)
	assert.True(t, time.Until(claims.ExpiresAt.Time) > 12*time.Hour)
}
