package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	AppVersion string
	DbURL      string

	TokenSecret  string
	AppName      string
	TokenVersion string
	RecoveryTTL  time.Duration

	BcryptCost   int
	WeakPassword string

	RateLimitBackend string
	RedisURL         string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	MailFrom     string
	ResetURLBase string

	LogLevel  string
	LogFormat string
}

// SMTPEnabled reports whether notifications go through an SMTP relay.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Load reads the configuration from the given .env files (or ".env") and
// environment variables and returns a Config struct.
// It returns an error if any required variable is missing or malformed.
func Load(envFiles ...string) (*Config, error) {
	// Try to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Port:             getenv("PORT", "3000"),
		AppVersion:       getenv("APP_VERSION", "1.0.0"),
		DbURL:            os.Getenv("DATABASE_URL"),
		TokenSecret:      os.Getenv("TOKEN_SECRET"),
		AppName:          getenv("APP_NAME", "APISECURE2026"),
		TokenVersion:     getenv("TOKEN_VERSION", "v3"),
		WeakPassword:     getenv("PASSWORD_WEAK_WORD", "senha"),
		RateLimitBackend: strings.ToLower(getenv("RATE_LIMIT_BACKEND", "memory")),
		RedisURL:         os.Getenv("REDIS_URL"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPass:         os.Getenv("SMTP_PASS"),
		MailFrom:         getenv("MAIL_FROM", "API Backend <no-reply@api.com>"),
		ResetURLBase:     getenv("RESET_URL_BASE", "http://localhost:3000/public/reset-password/"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        strings.ToLower(getenv("LOG_FORMAT", "json")),
	}

	var missing []string
	if cfg.DbURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.BcryptCost, err = getint("BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getint("SMTP_PORT", 2525); err != nil {
		return nil, err
	}
	if cfg.RecoveryTTL, err = getduration("RECOVERY_TTL", time.Hour); err != nil {
		return nil, err
	}

	switch cfg.RateLimitBackend {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("invalid RATE_LIMIT_BACKEND %q: want memory or redis", cfg.RateLimitBackend)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want json or text", cfg.LogFormat)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s=%q: must be positive", key, v)
	}
	return d, nil
}
