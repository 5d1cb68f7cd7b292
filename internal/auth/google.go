package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/emandor/kelas_service/internal/cache"
	"github.com/emandor/kelas_service/internal/config"
	"github.com/emandor/kelas_service/internal/middleware"
	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quota"
	"github.com/emandor/kelas_service/internal/telemetry"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

type Registry struct {
	cfg   *config.Config
	db    *sqlx.DB
	rdb   redis.Cmdable
	oauth *oauth2.Config
}

func (r *Registry) Rdb() redis.Cmdable { return r.rdb }

func (r *Registry) CookieName() string { return r.cfg.SessionCookieName }

func NewRegistry(cfg *config.Config, db *sqlx.DB, rdb redis.Cmdable) *Registry {
	return &Registry{
		cfg: cfg, db: db, rdb: rdb,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

func (r *Registry) Logout(c *fiber.Ctx) error {
	sid := c.Cookies(r.cfg.SessionCookieName)
	if sid != "" {
		if err := r.rdb.Del(c.UserContext(), cache.SessionKey(sid)).Err(); err != nil {
			telemetry.L().Warn().Err(err).Str("req_id", middleware.RequestIDOf(c)).Msg("session_delete_failed")
		}
		c.ClearCookie(r.cfg.SessionCookieName)
	}
	return c.JSON(fiber.Map{"ok": true})
}

type meResponse struct {
	model.User
	TestsRemaining int `json:"tests_remaining"`
}

func (r *Registry) Me(c *fiber.Ctx) error {
	var u model.User
	err := r.db.GetContext(c.UserContext(), &u, `
		SELECT id, email, name, picture, role, test_quota, tests_used, created_at
		FROM users WHERE id=? LIMIT 1`, middleware.UserID(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	uq := quota.UserQuota{TestQuota: u.TestQuota, TestsUsed: u.TestsUsed}
	return c.JSON(meResponse{User: u, TestsRemaining: uq.Remaining()})
}

func (r *Registry) GoogleLogin(c *fiber.Ctx) error {
	telemetry.L().Info().Str("req_id", middleware.RequestIDOf(c)).Msg("google_login_redirect")
	state := randomHex(16)
	c.Cookie(&fiber.Cookie{
		Name: "oauth_state", Value: state, HTTPOnly: true,
		Secure: r.cfg.AppEnv == "prod", SameSite: "Lax",
	})
	return c.Redirect(r.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

func (r *Registry) GoogleCallback(c *fiber.Ctx) error {
	rid := middleware.RequestIDOf(c)
	log := telemetry.L().With().Str("req_id", rid).Logger()
	ctx := c.UserContext()

	state := c.Cookies("oauth_state")
	if state == "" || state != c.Query("state") {
		log.Warn().Msg("oauth_state_mismatch")
		return fiber.NewError(fiber.StatusBadRequest, "bad state")
	}
	tok, err := r.oauth.Exchange(ctx, c.Query("code"))
	if err != nil {
		log.Error().Err(err).Msg("oauth_exchange_failed")
		return fiber.NewError(fiber.StatusBadRequest, "exchange failed")
	}

	ui, err := r.fetchUserinfo(ctx, tok)
	if err != nil {
		log.Error().Err(err).Msg("oauth_userinfo_failed")
		return fiber.NewError(fiber.StatusBadGateway, "userinfo failed")
	}
	if !domainAllowed(r.cfg.OAuthAllowedDomains, ui.Email) {
		log.Warn().Str("email", ui.Email).Msg("oauth_domain_denied")
		return fiber.NewError(fiber.StatusForbidden, "domain not allowed")
	}

	role := RoleFor(r.cfg.TeacherEmails, ui.Email)
	userID, err := r.upsertUser(ctx, ui, role)
	if err != nil {
		log.Error().Err(err).Str("email", ui.Email).Msg("user_upsert_failed")
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	log.Info().Int64("user_id", userID).Str("role", string(role)).Msg("user_upserted")

	sessID, err := r.startSession(ctx, userID, role, c.IP(), string(c.Request().Header.UserAgent()))
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("session_start_failed")
		return fiber.NewError(fiber.StatusInternalServerError, "session error")
	}

	c.Cookie(&fiber.Cookie{
		Name: r.cfg.SessionCookieName, Value: sessID, HTTPOnly: true, SameSite: "Lax",
		Secure: r.cfg.AppEnv == "prod", MaxAge: int(r.cfg.SessionTTL.Seconds()),
	})
	redir := c.Query("redirect")
	if redir == "" || !strings.HasPrefix(redir, r.cfg.ClientURL) {
		redir = r.cfg.ClientURL + "/login"
	}
	return c.Redirect(redir, http.StatusFound)
}

// RoleFor makes listed emails teachers; everyone else is a student.
func RoleFor(teacherEmails []string, email string) model.Role {
	email = strings.ToLower(strings.TrimSpace(email))
	if slices.ContainsFunc(teacherEmails, func(t string) bool {
		return strings.ToLower(strings.TrimSpace(t)) == email
	}) {
		return model.RoleTeacher
	}
	return model.RoleStudent
}

func domainAllowed(domains []string, email string) bool {
	if len(domains) == 0 {
		return true
	}
	email = strings.ToLower(email)
	for _, d := range domains {
		if strings.HasSuffix(email, "@"+strings.ToLower(d)) {
			return true
		}
	}
	return false
}

func randomHex(n int) string { b := make([]byte, n); _, _ = rand.Read(b); return hex.EncodeToString(b) }

type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (r *Registry) fetchUserinfo(ctx context.Context, tok *oauth2.Token) (*googleUserInfo, error) {
	resp, err := r.oauth.Client(ctx, tok).Get(googleUserinfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var ui googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return nil, err
	}
	if ui.Sub == "" || ui.Email == "" {
		return nil, fmt.Errorf("userinfo missing sub or email")
	}
	return &ui, nil
}

func (r *Registry) upsertUser(ctx context.Context, ui *googleUserInfo, role model.Role) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (provider, provider_id, email, name, picture, role, test_quota, last_login_at)
		VALUES ('google', ?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			email = VALUES(email),
			name = VALUES(name),
			picture = VALUES(picture),
			role = VALUES(role),
			last_login_at = NOW(),
			id = LAST_INSERT_ID(id)`,
		ui.Sub, ui.Email, ui.Name, ui.Picture, role, r.cfg.DefaultTestQuota)
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		return id, nil
	}
	var id int64
	err = r.db.GetContext(ctx, &id, `SELECT id FROM users WHERE provider='google' AND provider_id=? LIMIT 1`, ui.Sub)
	return id, err
}

// startSession records the login and stores the session in redis for
// SessionTTL.
func (r *Registry) startSession(ctx context.Context, userID int64, role model.Role, ip, ua string) (string, error) {
	sid := randomHex(16)
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO user_sessions(id,user_id,ip,user_agent) VALUES(?,?,?,?)`,
		sid, userID, ip, truncate(ua, 512)); err != nil {
		telemetry.L().Error().Err(err).Int64("user_id", userID).Msg("session_log_failed")
	}
	if err := r.rdb.Set(ctx, cache.SessionKey(sid), middleware.EncodeSession(userID, role), r.cfg.SessionTTL).Err(); err != nil {
		return "", err
	}
	return sid, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
