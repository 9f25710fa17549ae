package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ドキュメントストアのドライバー
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// minSessionSecretLength はリセットトークンの署名鍵として必要な長さ。
const minSessionSecretLength = 16

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver        string
	DatabaseURL        string
	SQLitePath         string
	FirestoreProjectID string

	// OAuth（3つとも未設定の場合Googleログインは無効）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret    string
	SessionMaxAge    int // 秒
	PasswordResetTTL time.Duration
	BcryptCost       int

	// Workspace
	ClientIdleTimeout time.Duration
	CleanupInterval   time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitCompose int

	// Logging
	LogLevel string

	// Display
	TimeZone string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（Atomフィード）
	FeedCORSOrigin string
}

// GoogleEnabled はGoogleログインの設定がそろっているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.StoreDriver = getEnvString("STORE_DRIVER", StorePostgres)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "postboard.db")
	cfg.FirestoreProjectID = os.Getenv("FIRESTORE_PROJECT_ID")

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreFirestore:
		if cfg.FirestoreProjectID == "" {
			missing = append(missing, "FIRESTORE_PROJECT_ID")
		}
	case StoreMemory, StoreSQLite:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.SessionSecret) < minSessionSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength)
	}

	// Googleログインは一部だけの設定を許さない
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if !cfg.GoogleEnabled() && (cfg.GoogleClientID != "" || cfg.GoogleClientSecret != "" || cfg.GoogleRedirectURL != "") {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL must be set together")
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.PasswordResetTTL = getEnvDuration("PASSWORD_RESET_TTL", time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.ClientIdleTimeout = getEnvDuration("CLIENT_IDLE_TIMEOUT", 30*time.Minute)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCompose = getEnvInt("RATE_LIMIT_COMPOSE", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.TimeZone = getEnvString("TIME_ZONE", "Asia/Tokyo")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.FeedCORSOrigin = getEnvString("FEED_CORS_ORIGIN", "*")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
