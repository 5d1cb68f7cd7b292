package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GeminiKeySlots are the env vars holding Gemini API keys, in pool order.
var GeminiKeySlots = []string{
	"GEMINI_API_KEY_1",
	"GEMINI_API_KEY_2",
	"GEMINI_API_KEY_3",
	"GEMINI_API_KEY_4",
	"GEMINI_API_KEY_5",
}

type Config struct {
	AppEnv, AppPort, BaseURL, ClientURL string
	DBDSN                               string
	RedisAddr                           string
	RedisDB                             int
	SessionCookieName                   string
	SessionTTL                          time.Duration

	GoogleClientID, GoogleClientSecret, GoogleRedirectURL string
	OAuthAllowedDomains                                   []string
	TeacherEmails                                         []string
	CORSOrigins                                           []string

	GeminiKeys            []string
	GeminiModel           string
	GeminiTemperature     float32
	GeminiTopP            float32
	GeminiTopK            float32
	GeminiMaxOutputTokens int32
	GeminiRPS             int
	GeminiBurst           int
	GeminiDryRun          bool

	TestCacheTTL     time.Duration
	GenerateTimeout  time.Duration
	MaxSourceBytes   int
	DefaultTestQuota int
	GenerateRateMax  int
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:              get("APP_ENV", "dev"),
		AppPort:             get("APP_PORT", "8080"),
		BaseURL:             get("APP_BASE_URL", "http://localhost:8080"),
		ClientURL:           get("CLIENT_URL", "http://localhost:5173"),
		DBDSN:               must("DB_DSN"),
		RedisAddr:           get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:             atoi(get("REDIS_DB", "0")),
		SessionCookieName:   get("SESSION_COOKIE_NAME", "kelas_sid"),
		SessionTTL:          durationOr(get("SESSION_TTL", ""), 168*time.Hour),
		CORSOrigins:         split(get("CORS_ORIGINS", "http://localhost:5173")),
		GoogleClientID:      must("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  must("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:   must("GOOGLE_REDIRECT_URL"),
		OAuthAllowedDomains: split(get("OAUTH_ALLOWED_DOMAINS", "")),
		TeacherEmails:       split(get("TEACHER_EMAILS", "")),
		TestCacheTTL:        durationOr(get("TEST_CACHE_TTL", ""), 24*time.Hour),
		MaxSourceBytes:      GetEnvInt("MAX_SOURCE_BYTES", 512*1024),
		DefaultTestQuota:    GetEnvInt("DEFAULT_TEST_QUOTA", 50),
		GenerateRateMax:     GetEnvInt("GENERATE_RATE_MAX", 5),
	}
	c.loadGemini()
	if len(c.GeminiKeys) == 0 && !c.GeminiDryRun {
		log.Fatalf("missing env: set at least one of %s", strings.Join(GeminiKeySlots, ", "))
	}
	return c
}

// LoadGemini reads only the generator settings, for tools that do not
// need the database or OAuth.
func LoadGemini() *Config {
	_ = godotenv.Load()
	c := &Config{}
	c.loadGemini()
	return c
}

func (c *Config) loadGemini() {
	c.GeminiKeys = GeminiKeysFrom(GetEnv)
	c.GeminiModel = get("GEMINI_MODEL", "gemini-2.0-flash")
	c.GeminiTemperature = atof(get("GEMINI_TEMPERATURE", "0.7"))
	c.GeminiTopP = atof(get("GEMINI_TOP_P", "0.95"))
	c.GeminiTopK = atof(get("GEMINI_TOP_K", "40"))
	c.GeminiMaxOutputTokens = int32(atoi(get("GEMINI_MAX_OUTPUT_TOKENS", "8192")))
	c.GeminiRPS = atoi(get("GEMINI_RPS", "0"))
	c.GeminiBurst = atoi(get("GEMINI_BURST", "1"))
	c.GeminiDryRun = parseBool(get("GEMINI_DRY_RUN", "false"))
	c.GenerateTimeout = durationOr(get("GENERATE_TIMEOUT", ""), 3*time.Minute)
}

// GeminiKeysFrom reads GeminiKeySlots through get, dropping empty slots and
// keeping the order of the rest.
func GeminiKeysFrom(get func(string, string) string) []string {
	var keys []string
	for _, slot := range GeminiKeySlots {
		if v := strings.TrimSpace(get(slot, "")); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func GetEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}
func atoi(s string) int       { i, _ := strconv.Atoi(s); return i }
func parseBool(s string) bool { b, _ := strconv.ParseBool(s); return b }
func atof(s string) float32 {
	f, _ := strconv.ParseFloat(s, 32)
	return float32(f)
}

// durationOr parses s, falling back to d when s is unset, invalid or not
// positive.
func durationOr(s string, d time.Duration) time.Duration {
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return d
	}
	return v
}
func split(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
