package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testYAML = `
app:
  name: pricepilot-test
storage:
  backend: sqlite
  path: /tmp/pricepilot-test.db
scheduler:
  interval: 30m
fx:
  reference_currency: SEK
filters:
  include_brands: [nike, adidas]
  min_discount_pct: 15
shops:
  - slug: asos
    name: ASOS
    adapter: asos
    currency: GBP
    listing_urls:
      - https://www.asos.com/men/sale/
    filters:
      min_discount_pct: 25
`

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, testYAML))
	require.NoError(t, err)

	require.Equal(t, "pricepilot-test", cfg.App.Name)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	require.Equal(t, "SEK", cfg.FX.ReferenceCurrency)
	require.Equal(t, 15.0, cfg.Filters.MinDiscountPct)

	require.Len(t, cfg.Shops, 1)
	shop, ok := cfg.ShopBySlug("asos")
	require.True(t, ok)
	require.Equal(t, "asos", shop.Adapter)
	require.NotNil(t, shop.Filters)
	require.Equal(t, 25.0, shop.Filters.MinDiscountPct)

	// Defaults fill in what the file leaves out.
	require.Equal(t, 4, cfg.Run.Workers)
	require.Equal(t, "EUR", cfg.FX.BaseCurrency)
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, "{}\n"))
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres"; c.Storage.DSN = "" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.Path = "" }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"missing reference currency", func(c *Config) { c.FX.ReferenceCurrency = "" }},
		{"negative discount", func(c *Config) { c.Filters.MinDiscountPct = -1 }},
		{"shop without slug", func(c *Config) { c.Shops = []ShopConfig{{Adapter: "asos", ListingURLs: []string{"x"}}} }},
		{"shop without adapter", func(c *Config) { c.Shops = []ShopConfig{{Slug: "a", ListingURLs: []string{"x"}}} }},
		{"shop without listings", func(c *Config) { c.Shops = []ShopConfig{{Slug: "a", Adapter: "asos"}} }},
		{"duplicate slugs", func(c *Config) {
			shop := ShopConfig{Slug: "a", Adapter: "asos", ListingURLs: []string{"x"}}
			c.Shops = []ShopConfig{shop, shop}
		}},
		{"telegram without token", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "1"
		}},
		{"discord without webhook", func(c *Config) { c.Alerting.Discord.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeTestConfig(t, testYAML))
			require.NoError(t, err)
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
