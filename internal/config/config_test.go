package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                      "development",
		DBSSLMode:                "disable",
		DBDriver:                 "postgres",
		JWTSecret:                "secure-secret-at-least-32-chars-long",
		DBPassword:               "secure-password",
		Port:                     "8080",
		DBConnMaxLifetimeMinutes: 1,
		TraceSampleRatio:         1,
		RedisURL:                 "redis://localhost:6379",
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with empty SSL mode", "prod", "", true},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing port", func(c *Config) { c.Port = "" }},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"negative claim ttl", func(c *Config) { c.ClaimTTLMinutes = -1 }},
		{"sample ratio above one", func(c *Config) { c.TraceSampleRatio = 1.5 }},
		{"default secret in production", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.JWTSecret = defaultJWTSecret
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := validConfig()
	c.ClaimTTLMinutes = 90
	c.ReaperIntervalSeconds = 30
	c.RequestCacheTTLSeconds = 5

	assert.Equal(t, 90*time.Minute, c.ClaimTTL())
	assert.Equal(t, 30*time.Second, c.ReaperInterval())
	assert.Equal(t, 5*time.Second, c.RequestCacheTTL())
	assert.False(t, c.KafkaEnabled())

	c.KafkaBrokers = "localhost:9092"
	assert.True(t, c.KafkaEnabled())
}

func TestLoadConfig_SSLModeNormalization(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_SSLMODE")
	defer viper.Reset()

	os.Setenv("APP_ENV", "development")
	os.Setenv("DB_SSLMODE", "  DISABLE  ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, 4, c.FanOutWorkers)
	assert.Equal(t, time.Duration(0), c.ClaimTTL())
}
