package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Store drivers accepted by DB_CLIENT.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment         string
	Addr                string
	LogLevel            string
	StoreDriver         string
	DatabaseURL         string
	JWTSecret           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	RefreshRegistrySize int
	BcryptCost          int
	CookieSecure        bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RateLimitWindow     time.Duration
	RateLimitMax        int
	LoginRateLimit      int
	TodoRateLimit       int
	ReadHeaderTimeout   time.Duration
	AdminName           string
	AdminEmail          string
	AdminPassword       string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	addr := GetString("API_ADDR", "")
	if addr == "" {
		addr = ":" + GetString("PORT", "3000")
	}
	return APIConfig{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                addr,
		LogLevel:            GetString("LOG_LEVEL", "info"),
		StoreDriver:         strings.ToLower(GetString("DB_CLIENT", StoreMemory)),
		DatabaseURL:         databaseURL(),
		JWTSecret:           GetString("JWT_SECRET", "my_secret_key"),
		AccessTokenTTL:      GetDuration("ACCESS_TOKEN_TTL", 50*time.Second),
		RefreshTokenTTL:     GetDuration("REFRESH_TOKEN_TTL", 200*time.Second),
		RefreshRegistrySize: GetInt("REFRESH_REGISTRY_SIZE", 10000),
		BcryptCost:          GetInt("BCRYPT_COST", 10),
		CookieSecure:        GetBool("COOKIE_SECURE", true),
		RedisAddr:           GetString("REDIS_ADDR", ""),
		RedisPassword:       GetString("REDIS_PASSWORD", ""),
		RedisDB:             GetInt("REDIS_DB", 0),
		RateLimitWindow:     GetDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:        GetInt("RATE_LIMIT_MAX", 100),
		LoginRateLimit:      GetInt("LOGIN_RATE_LIMIT", 10),
		TodoRateLimit:       GetInt("TODO_RATE_LIMIT", 60),
		ReadHeaderTimeout:   GetDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		AdminName:           GetString("ADMIN_NAME", "admin"),
		AdminEmail:          GetString("ADMIN_EMAIL", ""),
		AdminPassword:       GetString("ADMIN_PASSWORD", ""),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from the DB_* parameters.
func databaseURL() string {
	if dsn := GetString("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(GetString("DB_USER", "todos"), GetString("DB_PASSWORD", "todos")),
		Host:     fmt.Sprintf("%s:%d", GetString("DB_HOST", "localhost"), GetInt("DB_PORT", 5432)),
		Path:     "/" + GetString("DB_NAME", "todos"),
		RawQuery: "sslmode=" + GetString("DB_SSLMODE", "disable"),
	}
	return u.String()
}
