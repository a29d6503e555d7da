package config

import (
	"testing"
	"time"

	"lv-marginledger/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "postgres://localhost/ledger")
	t.Setenv("JWT_ISSUER", "ledger")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("WS_ORIGIN", "*")
	t.Setenv("PRICE_FEED_URL", "http://feed.local/market-data")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, time.Hour, c.JWTTTL)
	assert.Equal(t, "m", c.PriceSymbolSuffix)
	assert.Equal(t, 5*time.Second, c.PriceFeedTimeout)
	assert.Equal(t, 5*time.Second, c.SweepInterval)
	assert.Equal(t, time.Second, c.PriceFeedCacheTTL)
	assert.Equal(t, 10.0, c.RateLimitRPS)
	assert.Equal(t, 30, c.RateLimitBurst)
	assert.Equal(t, "text", c.LogFormat)
	assert.False(t, c.MigrateOnStart)
	assert.Equal(t, types.BookA, c.DefaultBook)
}

func TestLoadCollectsMissing(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DB_DSN", "JWT_ISSUER", "JWT_SECRET", "JWT_TTL", "WS_ORIGIN", "PRICE_FEED_URL", "STORE"} {
		t.Setenv(k, "")
	}

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_ADDR")
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "WS_ORIGIN")
}

func TestLoadMemoryStoreNeedsNoDatabase(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE", "memory")
	t.Setenv("DB_DSN", "")
	t.Setenv("PRICE_FEED_URL", "")
	t.Setenv("SWEEP_INTERVAL", "0")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Zero(t, c.SweepInterval)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"STORE":            "mongo",
		"JWT_TTL":          "soon",
		"SWEEP_INTERVAL":   "-1s",
		"LOG_FORMAT":       "xml",
		"RATE_LIMIT_BURST": "many",
		"MIGRATE_ON_START": "perhaps",
		"DEFAULT_BOOK":     "C",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDefaultBookLongForm(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_BOOK", "b book")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, types.BookB, c.DefaultBook)
}
