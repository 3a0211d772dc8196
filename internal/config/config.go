package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pricepilot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Run       RunConfig       `mapstructure:"run"`
	FX        FXConfig        `mapstructure:"fx"`
	Filters   FilterConfig    `mapstructure:"filters"`
	Shops     []ShopConfig    `mapstructure:"shops"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects and tunes the state store backend.
type StorageConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs run cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	Jitter        time.Duration `mapstructure:"jitter"`
}

// RunConfig tunes a single monitoring run.
type RunConfig struct {
	Workers        int           `mapstructure:"workers"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Deadline       time.Duration `mapstructure:"deadline"`
	SampleLimit    int           `mapstructure:"sample_limit"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FXConfig covers exchange rate access and the reference currency.
type FXConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	BaseCurrency      string        `mapstructure:"base_currency"`
	ReferenceCurrency string        `mapstructure:"reference_currency"`
	Symbols           []string      `mapstructure:"symbols"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// FilterConfig holds raw filter settings, globally or per shop.
type FilterConfig struct {
	IncludeBrands      []string `mapstructure:"include_brands"`
	ExcludeBrands      []string `mapstructure:"exclude_brands"`
	MinDiscountPct     float64  `mapstructure:"min_discount_pct"`
	AlertFirstSighting bool     `mapstructure:"alert_first_sighting"`
}

// ShopConfig declares one monitored shop.
type ShopConfig struct {
	Slug         string            `mapstructure:"slug"`
	Name         string            `mapstructure:"name"`
	Adapter      string            `mapstructure:"adapter"`
	ListingURLs  []string          `mapstructure:"listing_urls"`
	Currency     string            `mapstructure:"currency"`
	SiteBase     string            `mapstructure:"site_base"`
	AbsoluteURLs bool              `mapstructure:"absolute_urls"`
	Selectors    map[string]string `mapstructure:"selectors"`
	SampleLimit  int               `mapstructure:"sample_limit"`
	Filters      *FilterConfig     `mapstructure:"filters"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig describes the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricepilot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.jitter", "0s")

	v.SetDefault("run.workers", 4)
	v.SetDefault("run.fetch_timeout", "25s")
	v.SetDefault("run.max_retries", 3)
	v.SetDefault("run.retry_base_delay", "2s")
	v.SetDefault("run.deadline", "10m")
	v.SetDefault("run.sample_limit", 30)
	v.SetDefault("run.rate_per_second", 1.0)
	v.SetDefault("run.rate_burst", 1)
	v.SetDefault("run.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36")

	v.SetDefault("fx.base_url", "https://api.exchangerate.host")
	v.SetDefault("fx.base_currency", "EUR")
	v.SetDefault("fx.reference_currency", "SEK")
	v.SetDefault("fx.symbols", []string{"SEK", "EUR", "USD", "GBP"})
	v.SetDefault("fx.refresh_ttl", "24h")
	v.SetDefault("fx.request_timeout", "20s")

	v.SetDefault("filters.min_discount_pct", 0.0)
	v.SetDefault("filters.alert_first_sighting", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"discord"})
	v.SetDefault("alerting.timeout", "15s")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.username", "PricePilot")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of postgres, sqlite, memory")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be greater than zero")
	}
	if c.Run.SampleLimit <= 0 {
		return fmt.Errorf("run.sample_limit must be greater than zero")
	}
	if c.FX.ReferenceCurrency == "" {
		return fmt.Errorf("fx.reference_currency is required")
	}
	if c.FX.RefreshTTL <= 0 {
		return fmt.Errorf("fx.refresh_ttl must be greater than zero")
	}
	if c.Filters.MinDiscountPct < 0 {
		return fmt.Errorf("filters.min_discount_pct cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	slugs := make(map[string]struct{}, len(c.Shops))
	for i := range c.Shops {
		shop := &c.Shops[i]
		if shop.Slug == "" {
			return fmt.Errorf("shops[%d].slug is required", i)
		}
		if _, dup := slugs[shop.Slug]; dup {
			return fmt.Errorf("duplicate shop slug %q", shop.Slug)
		}
		slugs[shop.Slug] = struct{}{}
		if shop.Adapter == "" {
			return fmt.Errorf("shop %q: adapter is required", shop.Slug)
		}
		if len(shop.ListingURLs) == 0 {
			return fmt.Errorf("shop %q: at least one listing url is required", shop.Slug)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url is required when discord is enabled")
	}

	return nil
}

// ShopBySlug returns the shop config matching slug.
func (c *Config) ShopBySlug(slug string) (*ShopConfig, bool) {
	for i := range c.Shops {
		if c.Shops[i].Slug == slug {
			return &c.Shops[i], true
		}
	}
	return nil, false
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// EffectiveSampleLimit resolves the per-shop sample limit.
func (c *Config) EffectiveSampleLimit(shop *ShopConfig) int {
	if shop != nil && shop.SampleLimit > 0 {
		return shop.SampleLimit
	}
	return c.Run.SampleLimit
}
