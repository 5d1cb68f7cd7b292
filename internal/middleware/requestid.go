package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const ReqIDKey = "reqID"

const maxReqIDLen = 64

// RequestID echoes a caller supplied X-Request-ID when it looks sane and
// mints a uuid otherwise.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(fiber.HeaderXRequestID)
		if !saneRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, rid)
		c.Locals(ReqIDKey, rid)
		return c.Next()
	}
}

func saneRequestID(s string) bool {
	if s == "" || len(s) > maxReqIDLen {
		return false
	}
	for _, r := range s {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
