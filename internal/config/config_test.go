package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "filesystem", cfg.Server.Store)
	assert.NotEmpty(t, cfg.Server.DataDir)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "Stevedore Registry", cfg.Auth.Realm)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	resetViper(t)
	viper.Set("server.store", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.store")
}

func TestLoadRejectsAuthWithoutUsers(t *testing.T) {
	resetViper(t)
	viper.Set("auth.enabled", true)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.users")
}

func TestLoadAuthUsers(t *testing.T) {
	resetViper(t)
	viper.Set("auth.enabled", true)
	viper.Set("auth.users", map[string]interface{}{
		"alice": map[string]interface{}{
			"password": "secret",
			"actions":  []string{"pull", "push"},
		},
	})

	cfg, err := Load()
	require.NoError(t, err)
	require.Contains(t, cfg.Auth.Users, "alice")
	assert.Equal(t, "secret", cfg.Auth.Users["alice"].Password)
	assert.Equal(t, []string{"pull", "push"}, cfg.Auth.Users["alice"].Actions)
}
