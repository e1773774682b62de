package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "STORE_DRIVER", "DATABASE_URL", "PROVIDER_DRIVER", "STATIC_TOKENS", "JWT_HMAC_SECRET",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URL",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	"PROVIDER_TIMEOUT", "OVERLAY_CONCURRENCY", "OVERLAP_CONCURRENCY", "DEFAULT_MIN_DURATION",
	"READER_CALENDARS_BLOCK_MUTATIONS", "WEEKDAY_INCLUDES_TODAY", "LOG_LEVEL",
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, env[k])
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	setEnv(t, nil)

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, DriverPostgres, c.StoreDriver)
	assert.Equal(t, DriverGoogle, c.ProviderDriver)
	assert.Equal(t, 10*time.Second, c.ProviderTimeout)
	assert.Equal(t, 30*time.Minute, c.DefaultMinDuration)
	assert.Equal(t, 4, c.OverlayConcurrency)
	assert.Equal(t, 4, c.OverlapConcurrency)
	assert.False(t, c.ReaderCalendarsBlockMutations)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Empty(t, c.StaticTokens)
}

func TestFromEnv(t *testing.T) {
	setEnv(t, map[string]string{
		"PORT":                             "9090",
		"STORE_DRIVER":                     "memory",
		"PROVIDER_DRIVER":                  "memory",
		"STATIC_TOKENS":                    "abc:alice, def:bob,ghi",
		"PROVIDER_TIMEOUT":                 "3",
		"DEFAULT_MIN_DURATION":             "45",
		"OVERLAP_CONCURRENCY":              "8",
		"READER_CALENDARS_BLOCK_MUTATIONS": "true",
		"WEEKDAY_INCLUDES_TODAY":           "1",
		"LOG_LEVEL":                        "debug",
	})

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, map[string]string{"abc": "alice", "def": "bob", "ghi": "ghi"}, c.StaticTokens)
	assert.Equal(t, 3*time.Second, c.ProviderTimeout)
	assert.Equal(t, 45*time.Minute, c.DefaultMinDuration)
	assert.Equal(t, 8, c.OverlapConcurrency)
	assert.True(t, c.ReaderCalendarsBlockMutations)
	assert.True(t, c.WeekdayIncludesToday)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.NoError(t, c.Validate())
}

func TestFromEnv_Malformed(t *testing.T) {
	for key, value := range map[string]string{
		"PROVIDER_TIMEOUT":       "soon",
		"OVERLAY_CONCURRENCY":    "many",
		"WEEKDAY_INCLUDES_TODAY": "sometimes",
		"STATIC_TOKENS":          "abc:",
		"LOG_LEVEL":              "chatty",
	} {
		t.Run(key, func(t *testing.T) {
			setEnv(t, map[string]string{key: value})
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:        DriverPostgres,
			DatabaseURL:        "postgres://localhost/cal",
			ProviderDriver:     DriverGoogle,
			GoogleClientID:     "id",
			GoogleClientSecret: "secret",
			GoogleRedirectURL:  "http://localhost/oauth2callback",
			JWTHMACSecret:      "s3cret",
			ProviderTimeout:    time.Second,
			OverlayConcurrency: 1,
			OverlapConcurrency: 1,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"google without client", func(c *Config) { c.GoogleClientSecret = "" }, "GOOGLE_CLIENT_SECRET"},
		{"unknown provider", func(c *Config) { c.ProviderDriver = "caldav" }, "PROVIDER_DRIVER"},
		{"no auth", func(c *Config) { c.JWTHMACSecret = "" }, "STATIC_TOKENS"},
		{"zero timeout", func(c *Config) { c.ProviderTimeout = 0 }, "PROVIDER_TIMEOUT"},
		{"zero concurrency", func(c *Config) { c.OverlapConcurrency = 0 }, "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
