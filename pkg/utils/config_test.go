package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLIPKART_AFFILIATE_TOKEN", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("SCRAPE_NAV_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 30*time.Second, cfg.Scrape.NavTimeout)
	assert.Equal(t, "https://affiliate-api.flipkart.net", cfg.Affiliate.FlipkartAPIBase)
	assert.Empty(t, cfg.Affiliate.FlipkartToken)
	assert.True(t, cfg.Scrape.StaticEnabled)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTDuration)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FLIPKART_AFFILIATE_ID", "aff1")
	t.Setenv("FLIPKART_AFFILIATE_TOKEN", "tok")
	t.Setenv("FLIPKART_API_BASE", "http://127.0.0.1:9999/")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("BATCH_DELAY_MIN", "1s")
	t.Setenv("STATIC_FETCH_ENABLED", "false")
	t.Setenv("PRICEWATCH_JWT_TTL_HOURS", "2")

	cfg := Load()
	assert.Equal(t, "aff1", cfg.Affiliate.FlipkartID)
	assert.Equal(t, "tok", cfg.Affiliate.FlipkartToken)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Affiliate.FlipkartAPIBase)
	assert.Equal(t, 5, cfg.Batch.Size)
	assert.Equal(t, time.Second, cfg.Batch.DelayMin)
	assert.False(t, cfg.Scrape.StaticEnabled)
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTDuration)
}

func TestLoadMalformedFallsBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")
	t.Setenv("SCRAPE_SETTLE_DELAY", "soon")
	t.Setenv("AFFILIATE_API_RPS", "-3")

	cfg := Load()
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 600*time.Millisecond, cfg.Scrape.SettleDelay)
	assert.Equal(t, 1.0, cfg.Affiliate.APIRPS)
}

func TestLoadTimeoutsStayBounded(t *testing.T) {
	t.Setenv("SCRAPE_TIMEOUT", "0")
	t.Setenv("AFFILIATE_API_TIMEOUT", "0s")
	t.Setenv("STATIC_FETCH_TIMEOUT", "0ms")
	t.Setenv("SCRAPE_NAV_TIMEOUT", "-5s")
	t.Setenv("LOCK_TTL", "0")
	t.Setenv("SCRAPE_SETTLE_DELAY", "0")
	t.Setenv("BATCH_DELAY_MIN", "0")

	cfg := Load()
	assert.Equal(t, 45*time.Second, cfg.Scrape.CallTimeout)
	assert.Equal(t, 15*time.Second, cfg.Affiliate.APITimeout)
	assert.Equal(t, 10*time.Second, cfg.Scrape.StaticTimeout)
	assert.Equal(t, 30*time.Second, cfg.Scrape.NavTimeout)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)

	// delays may legitimately be zero
	assert.Equal(t, time.Duration(0), cfg.Scrape.SettleDelay)
	assert.Equal(t, time.Duration(0), cfg.Batch.DelayMin)
}
