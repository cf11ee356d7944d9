package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// Server
	HTTPAddr  string
	AppEnv    string
	AppOrigin string

	// Stores
	DatabaseURL string
	RedisAddr   string
	RedisPass   string
	RedisDB     int

	Session SessionConfig
	CSRF    CSRFConfig
	Login   LoginConfig

	SweepInterval time.Duration
}

type SessionConfig struct {
	CookieName      string
	Lifetime        time.Duration
	RegenerateEvery time.Duration
	BindUserAgent   bool
	CookieSecure    bool
}

type CSRFConfig struct {
	MaxAge       time.Duration
	HeaderName   string
	FieldName    string
	StrictOrigin bool
}

type LoginConfig struct {
	MaxAttempts int64
	Window      time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8000"),
		AppEnv:    getEnv("APP_ENV", "production"),
		AppOrigin: strings.TrimRight(getEnv("APP_ORIGIN", ""), "/"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASS", ""),
		RedisDB:     getEnvInt("REDIS_DB", 0),

		Session: SessionConfig{
			CookieName:      getEnv("SESSION_COOKIE_NAME", "SESPORTALSESSID"),
			Lifetime:        getEnvSeconds("SESSION_LIFETIME_SECONDS", 7200),
			RegenerateEvery: getEnvSeconds("SESSION_REGENERATE_SECONDS", 300),
			BindUserAgent:   getEnvBool("SESSION_BIND_USER_AGENT", true),
			CookieSecure:    getEnvBool("COOKIE_SECURE", true),
		},

		CSRF: CSRFConfig{
			MaxAge:       getEnvSeconds("CSRF_MAX_AGE_SECONDS", 3600),
			HeaderName:   getEnv("CSRF_HEADER_NAME", "X-CSRF-Token"),
			FieldName:    getEnv("CSRF_FIELD_NAME", "csrf_token"),
			StrictOrigin: getEnvBool("CSRF_STRICT_ORIGIN", true),
		},

		Login: LoginConfig{
			MaxAttempts: int64(getEnvInt("LOGIN_MAX_ATTEMPTS", 5)),
			Window:      getEnvSeconds("LOGIN_WINDOW_SECONDS", 900),
		},

		SweepInterval: getEnvSeconds("SWEEP_INTERVAL_SECONDS", 900),
	}
}

// IsDevelopment reports whether the service runs with development defaults.
func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	n := getEnvInt(key, fallback)
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
