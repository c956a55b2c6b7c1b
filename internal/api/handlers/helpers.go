package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// GetAccountID returns the account set by the auth middleware.
func GetAccountID(c *fiber.Ctx) string {
	accountID, _ := c.Locals("account_id").(string)
	return accountID
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
