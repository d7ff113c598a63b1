package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OFFLINE_TTL", "")
	t.Setenv("PRESENCE_PROBE_BACKOFF", "")

	cfg := Load()
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.OfflineTTL)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}, cfg.ProbeBackoff)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("PRESENCE_PROBE_BACKOFF", "50ms, 1s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("WS_RATE_BURST", "-3")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, time.Second}, cfg.ProbeBackoff)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 40, cfg.WSRateBurst)
}

func TestBadBackoffFallsBack(t *testing.T) {
	t.Setenv("PRESENCE_PROBE_BACKOFF", "100ms,soon")
	cfg := Load()
	assert.Len(t, cfg.ProbeBackoff, 3)
}
