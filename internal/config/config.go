// Package config reads the service configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverGoogle   = "google"
)

// Config is everything cmd/server needs to assemble the service.
type Config struct {
	Port string

	// StoreDriver is postgres or memory. DatabaseURL is required for postgres.
	StoreDriver string
	DatabaseURL string
	// ProviderDriver is google or memory.
	ProviderDriver string

	// StaticTokens maps bearer tokens to user ids ("token:user").
	StaticTokens  map[string]string
	JWTHMACSecret string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	ProviderTimeout    time.Duration
	OverlayConcurrency int
	OverlapConcurrency int
	DefaultMinDuration time.Duration

	ReaderCalendarsBlockMutations bool
	WeekdayIncludesToday          bool

	LogLevel slog.Level
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads the configuration. Malformed numbers, durations and booleans
// are reported together with the variable name.
func FromEnv() (*Config, error) {
	c := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		StoreDriver:        getEnvOrDefault("STORE_DRIVER", DriverPostgres),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ProviderDriver:     getEnvOrDefault("PROVIDER_DRIVER", DriverGoogle),
		JWTHMACSecret:      strings.TrimSpace(os.Getenv("JWT_HMAC_SECRET")),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
	}

	var err error
	if c.StaticTokens, err = parseStaticTokens(os.Getenv("STATIC_TOKENS")); err != nil {
		return nil, errors.Wrap(err, "STATIC_TOKENS")
	}
	if c.ProviderTimeout, err = durationEnv("PROVIDER_TIMEOUT", time.Second, 10*time.Second); err != nil {
		return nil, err
	}
	if c.DefaultMinDuration, err = durationEnv("DEFAULT_MIN_DURATION", time.Minute, 30*time.Minute); err != nil {
		return nil, err
	}
	if c.OverlayConcurrency, err = intEnv("OVERLAY_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if c.OverlapConcurrency, err = intEnv("OVERLAP_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if c.ReaderCalendarsBlockMutations, err = boolEnv("READER_CALENDARS_BLOCK_MUTATIONS"); err != nil {
		return nil, err
	}
	if c.WeekdayIncludesToday, err = boolEnv("WEEKDAY_INCLUDES_TODAY"); err != nil {
		return nil, err
	}
	if err := c.LogLevel.UnmarshalText([]byte(getEnvOrDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, errors.Wrap(err, "LOG_LEVEL")
	}
	return c, nil
}

// Validate checks that the selected drivers have what they need.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required for the postgres store")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ProviderDriver {
	case DriverGoogle:
		if !c.GoogleConfigured() {
			return errors.New("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL required for the google provider")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown PROVIDER_DRIVER %q", c.ProviderDriver)
	}

	if len(c.StaticTokens) == 0 && c.JWTHMACSecret == "" {
		return errors.New("set STATIC_TOKENS or JWT_HMAC_SECRET")
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	if c.OverlayConcurrency < 1 || c.OverlapConcurrency < 1 {
		return errors.New("concurrency limits must be at least 1")
	}
	if c.DefaultMinDuration < 0 {
		return errors.New("DEFAULT_MIN_DURATION must not be negative")
	}
	return nil
}

func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// ClassifierConfigured reports whether the text assistant endpoint can run.
func (c *Config) ClassifierConfigured() bool {
	return c.OpenAIAPIKey != ""
}

// parseStaticTokens reads "token:user,token2:user2". A token without a user
// maps to the token itself.
func parseStaticTokens(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, user, found := strings.Cut(entry, ":")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if token == "" || (found && user == "") {
			return nil, errors.Errorf("malformed entry %q", entry)
		}
		if !found {
			user = token
		}
		out[token] = user
	}
	return out, nil
}

// durationEnv accepts a Go duration or a bare integer counted in unit.
func durationEnv(key string, unit, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return n, nil
}

func boolEnv(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s", key)
	}
	return b, nil
}
