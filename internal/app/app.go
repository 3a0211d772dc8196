package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pricepilot/internal/alerting"
	"pricepilot/internal/config"
	"pricepilot/internal/filter"
	"pricepilot/internal/fx"
	"pricepilot/internal/monitor"
	"pricepilot/internal/scheduler"
	"pricepilot/internal/shop"
	"pricepilot/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newNormalizer(cache fx.CacheStore) *fx.Normalizer {
	source := fx.NewHTTPSource(fx.SourceOptions{
		BaseURL: a.Config.FX.BaseURL,
		Timeout: a.Config.FX.RequestTimeout,
	}, a.Logger)

	return fx.NewNormalizer(fx.NormalizerOptions{
		BaseCurrency:      a.Config.FX.BaseCurrency,
		ReferenceCurrency: a.Config.FX.ReferenceCurrency,
		Symbols:           a.Config.FX.Symbols,
		TTL:               a.Config.FX.RefreshTTL,
	}, source, cache, a.Logger)
}

func (a *App) newAdapter(sc *config.ShopConfig) (shop.Adapter, error) {
	client := shop.NewClient(shop.ClientOptions{
		Timeout:   a.Config.Run.FetchTimeout,
		UserAgent: a.Config.Run.UserAgent,
	}, a.Logger)

	settings := shop.Settings{
		Slug:         sc.Slug,
		Name:         sc.Name,
		ListingURLs:  sc.ListingURLs,
		Currency:     sc.Currency,
		SiteBase:     sc.SiteBase,
		AbsoluteURLs: sc.AbsoluteURLs,
		Selectors:    sc.Selectors,
		SampleLimit:  a.Config.EffectiveSampleLimit(sc),
	}
	return shop.New(sc.Adapter, settings, client, a.Logger)
}

func (a *App) buildShops() ([]monitor.Shop, error) {
	shops := make([]monitor.Shop, 0, len(a.Config.Shops))
	for i := range a.Config.Shops {
		sc := &a.Config.Shops[i]
		adapter, err := a.newAdapter(sc)
		if err != nil {
			return nil, fmt.Errorf("shop %q: %w", sc.Slug, err)
		}

		shops = append(shops, monitor.Shop{
			Slug:    sc.Slug,
			Name:    sc.Name,
			Adapter: adapter,
			Filter:  filter.FromConfig(a.Config.Filters, sc.Filters),
			Limiter: rate.NewLimiter(rate.Limit(a.Config.Run.RatePerSecond), a.Config.Run.RateBurst),
		})
	}
	return shops, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var notifiers []alerting.Notifier
	if a.Config.Alerting.Discord.Enabled {
		cfg := a.Config.Alerting.Discord
		notifiers = append(notifiers, alerting.NewDiscordNotifier(cfg.WebhookURL, cfg.Username, a.Config.Alerting.Timeout, a.Logger))
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.Timeout, a.Logger))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewMulti(notifiers...)
}

func (a *App) newEngine(store storage.Store) (*monitor.Engine, error) {
	shops, err := a.buildShops()
	if err != nil {
		return nil, err
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting disabled; alerts will only be logged and recorded")
	}

	engine := monitor.NewEngine(monitor.Options{
		Workers:        a.Config.Run.Workers,
		FetchTimeout:   a.Config.Run.FetchTimeout,
		MaxRetries:     a.Config.Run.MaxRetries,
		RetryBaseDelay: a.Config.Run.RetryBaseDelay,
		Deadline:       a.Config.Run.Deadline,
	}, shops, a.newNormalizer(store), store, notifier, a.Config.Alerting.Channels, a.Logger)
	return engine, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := a.newEngine(store)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Jitter:       a.Config.Scheduler.Jitter,
	}, a.Logger)

	a.Logger.Info().Int("shops", len(a.Config.Shops)).Msg("starting monitoring service")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := engine.RunOnce(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Shop    string
	Product string
	Limit   int
	Window  time.Duration
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Shop      string
	Product   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// CheckOptions configure the single-URL check command.
type CheckOptions struct {
	Shop   string
	URL    string
	Notify bool
}

// PruneOptions configure the retention command.
type PruneOptions struct {
	OlderThan time.Duration
	DryRun    bool
}
