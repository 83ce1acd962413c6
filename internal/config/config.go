package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	JWTIssuer        string
	CORSOrigins      []string
	LockoutThreshold int
	LockoutWindow    time.Duration
	BcryptCost       int
	LoginRatePerMin  int
	LoginRateBurst   int
	LogLevel         logrus.Level
	SuperAdmin       SeedAccount
	Admin            SeedAccount
}

// SeedAccount is an out-of-band provisioned account read from the environment.
type SeedAccount struct {
	Username string
	Email    string
	Password string
}

// Configured reports whether enough fields are present to seed the account.
func (s SeedAccount) Configured() bool {
	return s.Email != "" && s.Password != ""
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:             fallback(os.Getenv("PORT"), "8080"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:        fallback(os.Getenv("JWT_ISSUER"), "budget-backend"),
		CORSOrigins:      parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		LockoutThreshold: positiveInt(os.Getenv("LOCKOUT_THRESHOLD"), 5),
		LockoutWindow:    time.Duration(positiveInt(os.Getenv("LOCKOUT_WINDOW_MINUTES"), 15)) * time.Minute,
		BcryptCost:       positiveInt(os.Getenv("BCRYPT_COST"), 10),
		LoginRatePerMin:  positiveInt(os.Getenv("LOGIN_RATE_PER_MINUTE"), 20),
		LoginRateBurst:   positiveInt(os.Getenv("LOGIN_RATE_BURST"), 10),
		SuperAdmin: SeedAccount{
			Username: fallback(os.Getenv("DEFAULT_SUPER_ADMIN_USERNAME"), "superadmin"),
			Email:    strings.TrimSpace(os.Getenv("DEFAULT_SUPER_ADMIN_EMAIL")),
			Password: os.Getenv("DEFAULT_SUPER_ADMIN_PASSWORD"),
		},
		Admin: SeedAccount{
			Username: fallback(os.Getenv("DEFAULT_ADMIN_USERNAME"), "admin"),
			Email:    strings.TrimSpace(os.Getenv("DEFAULT_ADMIN_EMAIL")),
			Password: os.Getenv("DEFAULT_ADMIN_PASSWORD"),
		},
	}

	level, err := logrus.ParseLevel(fallback(os.Getenv("LOG_LEVEL"), "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// SQLitePath returns the database file when DATABASE_URL uses the sqlite scheme.
func (c Config) SQLitePath() (string, bool) {
	const scheme = "sqlite://"
	if !strings.HasPrefix(c.DatabaseURL, scheme) {
		return "", false
	}
	return strings.TrimPrefix(c.DatabaseURL, scheme), true
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func positiveInt(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
