package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                "5002",
		Env:                 "development",
		StoreDriver:         StoreDriverPostgres,
		DBHost:              "localhost",
		DBName:              "codezen",
		DBPassword:          "password",
		UploadMaxSizeMB:     10,
		PostCacheTTLSeconds: 30,
		TracingSamplerRatio: 1,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Defaults are valid", func(_ *Config) {}, false},
		{"Missing port", func(c *Config) { c.Port = "" }, true},
		{"Unknown store driver", func(c *Config) { c.StoreDriver = "cassandra" }, true},
		{"SQLite without path", func(c *Config) { c.StoreDriver = StoreDriverSQLite }, true},
		{"SQLite with path", func(c *Config) { c.StoreDriver = StoreDriverSQLite; c.SQLitePath = "x.db" }, false},
		{"Mongo without database", func(c *Config) { c.StoreDriver = StoreDriverMongo; c.MongoURI = "mongodb://x" }, true},
		{"Memory store in development", func(c *Config) { c.StoreDriver = StoreDriverMemory }, false},
		{"Memory store in production", func(c *Config) { c.StoreDriver = StoreDriverMemory; c.Env = "production" }, true},
		{"Default DB password in production", func(c *Config) { c.Env = "prod" }, true},
		{"Strong DB password in production", func(c *Config) { c.Env = "production"; c.DBPassword = "s3cure-and-long" }, false},
		{"Short JWT secret in production", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "s3cure-and-long"
			c.JWTSecret = "short"
		}, true},
		{"Zero upload size", func(c *Config) { c.UploadMaxSizeMB = 0 }, true},
		{"Negative cache TTL", func(c *Config) { c.PostCacheTTLSeconds = -1 }, true},
		{"Sampler ratio above one", func(c *Config) { c.TracingSamplerRatio = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("STORE_DRIVER", "  MEMORY ")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("PORT", "9999")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, c.StoreDriver)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "9999", c.Port)
	assert.Equal(t, 10, c.UploadMaxSizeMB)
}

func TestLoadConfig_DefaultsToDocumentStore(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("STORE_DRIVER", "")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMongo, c.StoreDriver)
	assert.Equal(t, "mongodb://localhost:27017", c.MongoURI)
	assert.Equal(t, "codezen", c.MongoDatabase)
}
