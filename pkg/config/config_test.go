package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, DiscoveryFanOut, cfg.DiscoveryStrategy)
	assert.Equal(t, 500, cfg.DiscoveryFanInLimit)
	assert.Equal(t, 5*time.Second, cfg.DiscoveryReadyTimeout)
	assert.Equal(t, 30*time.Second, cfg.PresenceHeartbeat)
	assert.Equal(t, 60*time.Second, cfg.PresenceLiveness)
	assert.Equal(t, 2*time.Second, cfg.TypingDebounce)
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL())
}

func TestLoad_SabPaisaPrefix(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SABPAISA_CLIENT_CODE", "ABC12")
	t.Setenv("SABPAISA_AUTH_KEY", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ABC12", cfg.SabPaisa.ClientCode)
	assert.Equal(t, "0123456789abcdef", cfg.SabPaisa.AuthKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"firestore without project", map[string]string{"STORE_BACKEND": "firestore", "FIREBASE_PROJECT_ID": ""}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "redis"}},
		{"unknown strategy", map[string]string{"STORE_BACKEND": "memory", "DISCOVERY_STRATEGY": "poll"}},
		{"liveness not above heartbeat", map[string]string{"STORE_BACKEND": "memory", "PRESENCE_LIVENESS": "30s"}},
		{"bad duration", map[string]string{"STORE_BACKEND": "memory", "TYPING_DEBOUNCE": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_OriginsAndCookies(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example,https://admin.example")
	t.Setenv("SECURE_COOKIES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://chat.example", "https://admin.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.SecureCookies)
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestLoad_PaymentsOptional(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	for _, key := range []string{"SABPAISA_CLIENT_CODE", "SABPAISA_TRANS_USERNAME", "SABPAISA_TRANS_PASSWORD", "SABPAISA_AUTH_KEY", "SABPAISA_AUTH_IV"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.PaymentsEnabled())

	cfg.SabPaisa = SabPaisaConfig{
		ClientCode:        "TEST1",
		TransUserName:     "merchant",
		TransUserPassword: "merchant-secret",
		AuthKey:           "0123456789abcdef",
		AuthIV:            "fedcba9876543210",
	}
	assert.True(t, cfg.PaymentsEnabled())
}
