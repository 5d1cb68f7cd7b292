package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/emandor/kelas_service/internal/cache"
	"github.com/emandor/kelas_service/internal/model"
)

const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

type SessionProvider interface {
	Rdb() redis.Cmdable
	CookieName() string
}

// EncodeSession is the value stored under cache.SessionKey.
func EncodeSession(userID int64, role model.Role) string {
	return strconv.FormatInt(userID, 10) + "|" + string(role)
}

func ParseSession(val string) (int64, model.Role, bool) {
	id, role, _ := strings.Cut(val, "|")
	uid, err := strconv.ParseInt(id, 10, 64)
	if err != nil || uid <= 0 {
		return 0, "", false
	}
	if model.Role(role) != model.RoleTeacher {
		role = string(model.RoleStudent)
	}
	return uid, model.Role(role), true
}

func AuthSession(reg SessionProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(reg.CookieName())
		if sid == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		val, err := reg.Rdb().Get(c.UserContext(), cache.SessionKey(sid)).Result()
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		uid, role, ok := ParseSession(val)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		c.Locals(UserIDKey, uid)
		c.Locals(RoleKey, role)
		return c.Next()
	}
}

func RequireRole(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		have := UserRole(c)
		for _, r := range roles {
			if r == have {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "forbidden")
	}
}

func UserID(c *fiber.Ctx) int64 {
	uid, _ := c.Locals(UserIDKey).(int64)
	return uid
}

func UserRole(c *fiber.Ctx) model.Role {
	r, _ := c.Locals(RoleKey).(model.Role)
	return r
}

func RequestIDOf(c *fiber.Ctx) string {
	rid, _ := c.Locals(ReqIDKey).(string)
	return rid
}
