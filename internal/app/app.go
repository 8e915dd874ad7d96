package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/approval"
	"fert-price-monitor/internal/cache"
	"fert-price-monitor/internal/config"
	"fert-price-monitor/internal/delivery"
	"fert-price-monitor/internal/logging"
	"fert-price-monitor/internal/maintenance"
	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/session"
	"fert-price-monitor/internal/storage"
)

// shutdownGrace bounds how long Run waits for in-flight ticks on exit.
const shutdownGrace = 15 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

// newProvider selects the market data source. "static" serves deterministic
// fixture series so the full chain can run without network access.
func (a *App) newProvider() market.Provider {
	if a.Config.Provider.Source == "static" {
		return a.newStaticProvider()
	}

	return market.NewHTTPProvider(market.HTTPOptions{
		BaseURL:   a.Config.Provider.BaseURL,
		APIKey:    a.Config.Provider.APIKey,
		Source:    a.Config.Provider.Source,
		Timeout:   a.Config.Provider.RequestTimeout,
		UserAgent: a.Config.Provider.UserAgent,
	}, a.Logger)
}

// fixtureBases are ballpark USD/ton quotes used to seed the static provider.
var fixtureBases = map[market.FertilizerType]float64{
	market.FertilizerUrea:            485,
	market.FertilizerUAN:             315,
	market.FertilizerDAP:             642,
	market.FertilizerMAP:             655,
	market.FertilizerPotash:          360,
	market.FertilizerAmmoniumSulfate: 410,
}

func (a *App) newStaticProvider() *market.StaticProvider {
	provider := market.NewStaticProvider("fixture")
	days := a.Config.Monitor.HistoryDays
	asOf := time.Now().UTC()

	regions := map[string]struct{}{"us_midwest": {}}
	for _, w := range a.Config.Watches {
		regions[w.Region] = struct{}{}
	}

	for product, base := range fixtureBases {
		series := fixtureSeries(asOf, base, days)
		for region := range regions {
			provider.SetSeries(product, region, series)
		}
	}
	return provider
}

// fixtureSeries builds a deterministic daily series: a mild upward drift
// with a repeating wiggle, ending at asOf.
func fixtureSeries(asOf time.Time, base float64, days int) []market.PricePoint {
	wiggle := []float64{0, 0.004, -0.003, 0.006, -0.005, 0.002, -0.004}
	prices := make([]float64, days+1)
	for i := range prices {
		drift := 0.06 * float64(i) / float64(days)
		prices[i] = base * (1 + drift + wiggle[i%len(wiggle)])
	}
	return market.DailySeries(asOf, prices...)
}

// newNotifiers instantiates one notifier per enabled channel backend.
func (a *App) newNotifiers() []delivery.Notifier {
	var notifiers []delivery.Notifier

	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, delivery.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if a.Config.Alerting.Webhook.Enabled {
		cfg := a.Config.Alerting.Webhook
		notifiers = append(notifiers, delivery.NewWebhookNotifier(cfg.Endpoint, cfg.RequestTimeout, a.Logger))
	}
	if a.Config.Alerting.Stream.Enabled {
		cfg := a.Config.Alerting.Stream
		notifiers = append(notifiers, delivery.NewStreamNotifier(cfg.Brokers, cfg.Topic, a.Logger))
	}

	return notifiers
}

func (a *App) newDispatcher() *delivery.Dispatcher {
	return delivery.NewDispatcher(delivery.DispatcherOptions{
		Notifiers: a.newNotifiers(),
		Logger:    a.Logger,
	})
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newCache() cache.TrendCache {
	return cache.New(cache.Options{
		Addr:      a.Config.Redis.Addr,
		Password:  a.Config.Redis.Password,
		DB:        a.Config.Redis.DB,
		TTL:       a.Config.Redis.TTL,
		KeyPrefix: a.Config.Redis.KeyPrefix,
		Logger:    a.Logger,
	})
}

func (a *App) newComposer() *alert.Composer {
	return alert.NewComposer(alert.Options{
		Cooldown: a.Config.Alerting.Cooldown,
		TTL:      a.Config.Alerting.TTL,
		Logger:   a.Logger,
	})
}

func (a *App) newApprovals() *approval.Manager {
	return approval.NewManager(approval.Options{
		Window:           a.Config.Approval.Window,
		ReminderLead:     a.Config.Approval.ReminderLead,
		ReminderInterval: a.Config.Approval.ReminderInterval,
		Logger:           a.Logger,
	})
}

func (a *App) newManager(provider market.Provider, composer *alert.Composer, approvals *approval.Manager, repo session.Repository, trends session.TrendCache, dispatcher session.Dispatcher) (*session.Manager, error) {
	return session.NewManager(session.Options{
		Provider:          provider,
		Composer:          composer,
		Approvals:         approvals,
		Repository:        repo,
		Cache:             trends,
		Dispatcher:        dispatcher,
		Channels:          a.Config.Alerting.Channels,
		HistoryDays:       a.Config.Monitor.HistoryDays,
		RecentCheckWindow: a.Config.Monitor.RecentCheckWindow,
		DefaultInterval:   a.Config.Monitor.DefaultInterval,
		MinInterval:       a.Config.Monitor.MinInterval,
		DefaultThreshold:  a.Config.Thresholds.Threshold(a.Config.Monitor.DefaultInterval),
		Intelligent:       a.Config.Monitor.Intelligent,
		Logger:            a.Logger,
	})
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	dispatcher := a.newDispatcher()
	defer dispatcher.Close()

	composer := a.newComposer()
	approvals := a.newApprovals()

	// 接口字段要避开 typed-nil: 只有真的有 store 时才填仓储。
	var repo session.Repository
	var retention maintenance.RetentionStore
	if store != nil {
		repo = store
		retention = store
	}

	manager, err := a.newManager(a.newProvider(), composer, approvals, repo, a.newCache(), dispatcher)
	if err != nil {
		return err
	}

	if len(a.Config.Watches) == 0 {
		a.Logger.Warn().Msg("no watches configured; only maintenance sweeps will run")
	}
	for i, watch := range a.Config.Watches {
		if err := a.startWatch(ctx, manager, watch); err != nil {
			a.Logger.Error().Err(err).Int("watch", i).Str("user_id", watch.UserID).Msg("failed to start monitoring session")
		}
	}

	runner, err := maintenance.NewRunner(maintenance.Options{
		Composer:          composer,
		Approvals:         approvals,
		Store:             retention,
		AlertRetention:    a.Config.Maintenance.AlertRetention,
		AlertSweepSpec:    a.Config.Maintenance.AlertSweep,
		ApprovalSweepSpec: a.Config.Maintenance.ApprovalSweep,
		BaseCtx:           ctx,
		Logger:            a.Logger,
	})
	if err != nil {
		return err
	}
	runner.Start()

	a.Logger.Info().Int("sessions", len(manager.Sessions())).Msg("monitoring service started")
	<-ctx.Done()

	runner.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("session shutdown did not drain cleanly")
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) startWatch(ctx context.Context, manager *session.Manager, watch config.WatchConfig) error {
	products, err := watch.Products()
	if err != nil {
		return err
	}

	result, err := manager.Start(ctx, session.StartRequest{
		UserID:          watch.UserID,
		FertilizerTypes: products,
		FieldIDs:        watch.FieldIDs,
		Region:          watch.Region,
		CheckInterval:   watch.CheckInterval,
	})
	if err != nil {
		return err
	}

	event := a.Logger.Info().
		Str("session_id", result.SessionID).
		Str("user_id", watch.UserID).
		Str("region", watch.Region).
		Int("products", len(products))
	if len(result.Warnings) > 0 {
		event = event.Strs("warnings", result.Warnings)
	}
	event.Msg("monitoring session started")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit         int
	Alerts        bool
	Modifications bool
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Product   market.FertilizerType
	Region    string
	Days      int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Product market.FertilizerType
	Region  string
	Days    int
	DryRun  bool
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	Product     market.FertilizerType
	Region      string
	Prices      []float64
	Intelligent bool
}
