package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MEETING_SYNC_RPS", "not-a-number")
	t.Setenv("BALANCE_CACHE_TTL", "30s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	Load()

	assert.Equal(t, "9090", AppConfig.Port)
	assert.Equal(t, "sqlite", AppConfig.DBDriver)
	assert.Equal(t, float64(5), AppConfig.MeetingSyncRPS)
	assert.Equal(t, 30*time.Second, AppConfig.BalanceCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, AppConfig.CORSOrigins)
}

func TestGetEnvAsIntFallback(t *testing.T) {
	t.Setenv("MEETING_SYNC_BURST", "abc")
	assert.Equal(t, 7, getEnvAsInt("MEETING_SYNC_BURST", 7))

	t.Setenv("MEETING_SYNC_BURST", "42")
	assert.Equal(t, 42, getEnvAsInt("MEETING_SYNC_BURST", 7))
}
