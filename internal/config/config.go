package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          int
	Environment   string
	Database      DatabaseConfig
	EncryptionKey string
	OAuth         OAuthConfig
	BackendURL    string
	FrontendURL   string
	CORSOrigins   []string
	HTTPTimeout   time.Duration
	Lease         LeaseConfig
	SummarizerURL string
	DOIResolver   string
	RateLimit     RateLimitConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type           string // postgres
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

// OAuthConfig holds the identity provider client configuration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	JWKSURL      string
	Issuers      []string
	Scopes       []string
	RedirectURL  string
	StateTTL     time.Duration
}

// LeaseConfig controls the per-topic write lease
type LeaseConfig struct {
	RedisAddr string
	TTL       time.Duration
	Wait      time.Duration
}

// RateLimitConfig holds the per-client request budget
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// leaseCalls is the number of provider calls made while a topic lease is held.
const leaseCalls = 4

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

var defaultScopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "production")
	backendURL := strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/")
	frontendURL := getEnv("FRONTEND_URL", "http://localhost:3000/")

	cfg := &Config{
		Port:        getEnvInt("PORT", 8000),
		Environment: env,
		Database: DatabaseConfig{
			Type:           getEnv("DATABASE_TYPE", "postgres"),
			DSN:            getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "file://./migrations"),
		},
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		OAuth: OAuthConfig{
			ClientID:     os.Getenv("OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
			AuthURL:      getEnv("OAUTH_AUTH_URL", googleAuthURL),
			TokenURL:     getEnv("OAUTH_TOKEN_URL", googleTokenURL),
			JWKSURL:      getEnv("OAUTH_JWKS_URL", googleJWKSURL),
			Issuers:      getEnvList("OAUTH_ISSUERS", []string{"accounts.google.com", "https://accounts.google.com"}),
			Scopes:       getEnvList("OAUTH_SCOPES", defaultScopes),
			RedirectURL:  backendURL + "/oauth2callback",
			StateTTL:     getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		},
		BackendURL:  backendURL,
		FrontendURL: frontendURL,
		CORSOrigins: loadCORSOrigins(frontendURL),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		Lease: LeaseConfig{
			RedisAddr: os.Getenv("REDIS_ADDR"),
			TTL:       getEnvDuration("LEASE_TTL", 2*time.Minute),
			Wait:      getEnvDuration("LEASE_WAIT", 30*time.Second),
		},
		SummarizerURL: os.Getenv("SUMMARIZER_URL"),
		DOIResolver:   strings.TrimRight(getEnv("DOI_RESOLVER_URL", "https://doi.org"), "/"),
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
			Burst: getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "paperdrive")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "paperdrive")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Tokens must never be stored unencrypted, so there is no fallback here.
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}

	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required")
	}
	if len(c.OAuth.Issuers) == 0 {
		return fmt.Errorf("at least one OAuth issuer must be configured")
	}
	if c.OAuth.StateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive")
	}

	if c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Lease.TTL <= 0 || c.Lease.Wait <= 0 {
		return fmt.Errorf("LEASE_TTL and LEASE_WAIT must be positive")
	}
	// A topic write is list+download then list+upload, each bounded by HTTP_TIMEOUT.
	if c.Lease.TTL < leaseCalls*c.HTTPTimeout {
		return fmt.Errorf("LEASE_TTL (%s) must be at least %d x HTTP_TIMEOUT (%s)", c.Lease.TTL, leaseCalls, c.HTTPTimeout)
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func loadCORSOrigins(frontendURL string) []string {
	if origins := getEnvList("CORS_ORIGINS", nil); len(origins) > 0 {
		return origins
	}
	u, err := url.Parse(frontendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []string{"http://localhost:3000"}
	}
	return []string{u.Scheme + "://" + u.Host}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var parts []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
