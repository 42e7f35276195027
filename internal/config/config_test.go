package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GOOGLE_CLIENT_ID", "real-google-id.apps.googleusercontent.com")
	t.Setenv("MICROSOFT_CLIENT_ID", "11111111-2222-3333-4444-555555555555")
	t.Setenv("OAUTH_REDIRECT_URI", "https://app.example.com/mail/v1/oauth/callback")
	t.Setenv("FRONTEND_ORIGIN", "https://app.example.com")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8086", cfg.HTTPAddr)
	assert.Equal(t, 120*time.Second, cfg.FlowTimeout)
	assert.Equal(t, time.Second, cfg.ClosePollEvery)
	assert.Equal(t, 10*time.Minute, cfg.AttemptTTL)
	assert.Equal(t, 5*time.Minute, cfg.RefreshSoonSkew)
	assert.Equal(t, 0, cfg.RedisDB)
	// the long-poll holds a response open for the whole flow window
	assert.Greater(t, cfg.HTTPWriteTimeout, cfg.FlowTimeout)
}

func TestLoad_RedisDB(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RedisDB)

	t.Setenv("REDIS_DB", "three")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_MissingSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_PlaceholderClientIDIsFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "YOUR_GOOGLE_CLIENT_ID")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholder")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FLOW_TIMEOUT", "twelve")

	_, err := Load()
	require.Error(t, err)
}

func TestIsPlaceholderClientID(t *testing.T) {
	t.Parallel()

	placeholders := []string{
		"",
		"   ",
		"YOUR_CLIENT_ID",
		"your_client_id", // case-insensitive
		"changeme",
		"CHANGE_ME-123",
		"REPLACE_ME",
		"<client-id-here>",
	}
	for _, v := range placeholders {
		assert.True(t, IsPlaceholderClientID(v), "value %q", v)
	}

	real := []string{
		"1234567890-abc.apps.googleusercontent.com",
		"11111111-2222-3333-4444-555555555555",
	}
	for _, v := range real {
		assert.False(t, IsPlaceholderClientID(v), "value %q", v)
	}
}
