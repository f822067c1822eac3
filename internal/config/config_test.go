package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"LINE_CHANNEL_SECRET":       "secret",
		"LINE_CHANNEL_ACCESS_TOKEN": "token",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "./membership.db", cfg.SQLitePath)
	assert.Equal(t, "secret", cfg.LinkSigningKey)
	assert.Equal(t, 30*time.Minute, cfg.LinkTokenTTL)
	assert.False(t, cfg.RequireSignedLinks)
	assert.False(t, cfg.AdminAuthEnabled())
}

func TestFromEnvFailsClosedOnMissingSecrets(t *testing.T) {
	_, err := FromEnv(env(map[string]string{}))
	require.ErrorIs(t, err, ErrMissingSecret)
	assert.Contains(t, err.Error(), "LINE_CHANNEL_SECRET")
	assert.Contains(t, err.Error(), "LINE_CHANNEL_ACCESS_TOKEN")

	_, err = FromEnv(env(map[string]string{"LINE_CHANNEL_SECRET": "secret"}))
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestFromEnvLegacyNames(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"YOUR_CHANNEL_SECRET":       "legacy-secret",
		"YOUR_CHANNEL_ACCESS_TOKEN": "legacy-token",
	}))
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", cfg.ChannelSecret)
	assert.Equal(t, "legacy-token", cfg.ChannelAccessToken)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"LINE_CHANNEL_SECRET":       "secret",
		"LINE_CHANNEL_ACCESS_TOKEN": "token",
		"PORT":                      "5000",
		"PUBLIC_BASE_URL":           "https://members.example.com/",
		"LINK_SIGNING_KEY":          "link-key",
		"LINK_TOKEN_TTL":            "5m",
		"REQUIRE_SIGNED_LINKS":      "true",
		"ADMIN_USER":                "admin",
		"ADMIN_PASSWORD":            "pw",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, "https://members.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "link-key", cfg.LinkSigningKey)
	assert.Equal(t, 5*time.Minute, cfg.LinkTokenTTL)
	assert.True(t, cfg.RequireSignedLinks)
	assert.True(t, cfg.AdminAuthEnabled())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	base := map[string]string{
		"LINE_CHANNEL_SECRET":       "secret",
		"LINE_CHANNEL_ACCESS_TOKEN": "token",
	}
	for key, val := range map[string]string{
		"LINK_TOKEN_TTL":       "soon",
		"REQUIRE_SIGNED_LINKS": "maybe",
		"PORT":                 "http",
		"ADMIN_USER":           "admin",
	} {
		m := map[string]string{}
		for k, v := range base {
			m[k] = v
		}
		m[key] = val
		_, err := FromEnv(env(m))
		assert.Error(t, err, key)
	}
}
