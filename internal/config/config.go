// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxKDFIterations matches the ceiling the vault codec accepts in blob
// headers.
const maxKDFIterations = 10_000_000

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	RedirectURI     string
	SettleDelay     time.Duration
	RetryDelay      time.Duration
	InjectAttempts  int
	OAuthTimeout    time.Duration
	BridgeTimeout   time.Duration
	RefreshInterval time.Duration
	KDFIterations   int
	LogLevel        slog.Level
	LogFormat       string

	// AllowedOrigins lists the browser extension origins that may call the
	// API. Empty accepts any extension origin.
	AllowedOrigins []string

	// SecretKey encrypts OAuth client secrets at rest. nil stores them as
	// plain text.
	SecretKey []byte

	// Ordered CSS selector candidates for the password login form. Empty
	// slices mean the built-in defaults.
	UsernameSelectors []string
	PasswordSelectors []string
	SubmitSelectors   []string
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional: ORGVAULT_LISTEN_ADDR (127.0.0.1:8765),
// ORGVAULT_DB_PATH (orgvault.db), ORGVAULT_REDIRECT_URI
// (http://localhost:1717/oauth/callback), ORGVAULT_SETTLE_DELAY (2s),
// ORGVAULT_RETRY_DELAY (1s), ORGVAULT_INJECT_ATTEMPTS (2),
// ORGVAULT_OAUTH_TIMEOUT (5m), ORGVAULT_BRIDGE_TIMEOUT (30s),
// ORGVAULT_REFRESH_INTERVAL (1m, 0 disables background refresh),
// ORGVAULT_KDF_ITERATIONS (210000), ORGVAULT_LOG_LEVEL (info),
// ORGVAULT_LOG_FORMAT (text), ORGVAULT_SECRET_KEY (64 hex chars, unset) and
// the comma-separated ORGVAULT_ALLOWED_ORIGINS and
// ORGVAULT_{USERNAME,PASSWORD,SUBMIT}_SELECTORS.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      "127.0.0.1:8765",
		DBPath:          "orgvault.db",
		RedirectURI:     "http://localhost:1717/oauth/callback",
		SettleDelay:     2 * time.Second,
		RetryDelay:      time.Second,
		InjectAttempts:  2,
		OAuthTimeout:    5 * time.Minute,
		BridgeTimeout:   30 * time.Second,
		RefreshInterval: time.Minute,
		KDFIterations:   210_000,
		LogLevel:        slog.LevelInfo,
		LogFormat:       "text",
	}

	if v, ok := os.LookupEnv("ORGVAULT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("ORGVAULT_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("ORGVAULT_REDIRECT_URI"); ok {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("ORGVAULT_REDIRECT_URI must be an absolute URL, got %q", v)
		}
		cfg.RedirectURI = v
	}

	var err error
	if cfg.SettleDelay, err = durationEnv("ORGVAULT_SETTLE_DELAY", cfg.SettleDelay); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = durationEnv("ORGVAULT_RETRY_DELAY", cfg.RetryDelay); err != nil {
		return nil, err
	}
	if cfg.OAuthTimeout, err = durationEnv("ORGVAULT_OAUTH_TIMEOUT", cfg.OAuthTimeout); err != nil {
		return nil, err
	}
	if cfg.BridgeTimeout, err = durationEnv("ORGVAULT_BRIDGE_TIMEOUT", cfg.BridgeTimeout); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = durationEnv("ORGVAULT_REFRESH_INTERVAL", cfg.RefreshInterval); err != nil {
		return nil, err
	}
	if cfg.InjectAttempts, err = positiveIntEnv("ORGVAULT_INJECT_ATTEMPTS", cfg.InjectAttempts); err != nil {
		return nil, err
	}
	if cfg.KDFIterations, err = positiveIntEnv("ORGVAULT_KDF_ITERATIONS", cfg.KDFIterations); err != nil {
		return nil, err
	}
	if cfg.KDFIterations > maxKDFIterations {
		return nil, fmt.Errorf("ORGVAULT_KDF_ITERATIONS must be at most %d, got %d", maxKDFIterations, cfg.KDFIterations)
	}

	if v, ok := os.LookupEnv("ORGVAULT_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("ORGVAULT_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("ORGVAULT_LOG_FORMAT"); ok && v != "" {
		v = strings.ToLower(v)
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("ORGVAULT_LOG_FORMAT must be text or json, got %q", v)
		}
		cfg.LogFormat = v
	}

	if v, ok := os.LookupEnv("ORGVAULT_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("ORGVAULT_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("ORGVAULT_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	cfg.AllowedOrigins = listEnv("ORGVAULT_ALLOWED_ORIGINS")
	cfg.UsernameSelectors = listEnv("ORGVAULT_USERNAME_SELECTORS")
	cfg.PasswordSelectors = listEnv("ORGVAULT_PASSWORD_SELECTORS")
	cfg.SubmitSelectors = listEnv("ORGVAULT_SUBMIT_SELECTORS")

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %q", key, v)
	}
	return parsed, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}

// listEnv splits a comma-separated variable, dropping blank entries.
func listEnv(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return []string{}
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
