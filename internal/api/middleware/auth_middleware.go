package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/pkg/utils"
)

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware accepts a session cookie or an Authorization bearer token.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		fromCookie := tokenString != ""
		if !fromCookie {
			auth := c.Get(fiber.HeaderAuthorization)
			if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
				tokenString = strings.TrimSpace(after)
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token or cookie",
			})
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			if fromCookie {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1,
				})
			}

			slog.Info("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if fromCookie && claims.ExpiresAt != nil {
			m.refreshSession(c, claims.ExpiresAt.Time, claims.UserID)
		}

		c.Locals("account_id", claims.UserID)
		return c.Next()
	}
}

// refreshSession reissues the cookie once less than half of the session lifetime remains.
func (m *AuthMiddleware) refreshSession(c *fiber.Ctx, expiresAt time.Time, accountID string) {
	if m.cfg.SessionTTL <= 0 || time.Until(expiresAt) > m.cfg.SessionTTL/2 {
		return
	}

	token, err := utils.GenerateToken(m.cfg.SecretKey, accountID, m.cfg.SessionTTL)
	if err != nil {
		slog.Error("unable to refresh session", "error", err)
		return
	}

	c.Cookie(&fiber.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(m.cfg.SessionTTL),
	})
}
