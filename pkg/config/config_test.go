package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "127.0.0.1:8090", cfg.HTTP.Addr())
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "/login", cfg.Session.LoginPath)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("BACKEND_BASE_URL", "https://pos.example.com/api/")
	v.Set("BACKEND_TIMEOUT", "1500ms")
	v.Set("BACKEND_RETRY_MAX", "5")
	v.Set("SESSION_REFRESH_LEEWAY", "45")
	v.Set("STORE_DRIVER", "Redis")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "https://pos.example.com/api", cfg.Backend.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Backend.Timeout)
	assert.Equal(t, 5, cfg.Backend.RetryMax)
	assert.Equal(t, 45*time.Second, cfg.Session.RefreshLeeway)
	assert.Equal(t, "redis", cfg.Store.Driver)
}

func TestFromViper_Invalida(t *testing.T) {
	v := viper.New()
	v.Set("STORE_DRIVER", "sqlite")
	_, err := fromViper(v)
	assert.Error(t, err)

	v = viper.New()
	v.Set("BACKEND_TIMEOUT", "0s")
	_, err = fromViper(v)
	assert.Error(t, err)
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "pos", Password: "p@ss:w", DBName: "pos", SSLMode: "disable"}
	assert.Equal(t, "postgres://pos:p%40ss%3Aw@db:5432/pos?sslmode=disable", c.ConnectionString())

	c.DatabaseURL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", c.ConnectionString())
}
