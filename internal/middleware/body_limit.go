package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SourceSizeLimit rejects JSON bodies over maxBytes before they are parsed.
func SourceSizeLimit(maxBytes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxBytes > 0 && len(c.Body()) > maxBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "source text too large",
			})
		}
		if ct := c.Get(fiber.HeaderContentType); !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "expected application/json",
			})
		}
		return c.Next()
	}
}
