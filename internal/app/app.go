package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"SignalMonitor/internal/config"
	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/httpapi"
	"SignalMonitor/internal/infrastructure/llm"
	"SignalMonitor/internal/infrastructure/ml"
	"SignalMonitor/internal/infrastructure/scheduler"
	"SignalMonitor/internal/infrastructure/storage"
	"SignalMonitor/internal/infrastructure/telegram"
	"SignalMonitor/internal/infrastructure/twitter"
	"SignalMonitor/internal/logging"
	"SignalMonitor/internal/provider"
	"SignalMonitor/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	Config    config.Config
	Logger    *slog.Logger
	Handles   *storage.HandleRepository
	Ledger    *storage.LedgerRepository
	Sessions  *usecase.SessionStore
	Pipeline  *usecase.Pipeline
	Scheduler *usecase.Scheduler

	db *storage.DB
}

// New opens storage and builds every adapter named in cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	handles := storage.NewHandleRepository(db)
	ledger := storage.NewLedgerRepository(db, cfg.Pipeline.MaxAttempts, baseLogger.With("component", "ledger"))

	auth := twitter.NewBrowserAuthenticator(twitter.BrowserOptions{
		LoginURL:      cfg.Source.LoginURL,
		Headless:      cfg.Source.Headless,
		Interactive:   cfg.Source.Interactive,
		ChallengeWait: cfg.Source.ChallengeWait.Std(),
		Timeout:       cfg.Source.LoginTimeout.Std(),
	}, baseLogger.With("component", "auth"))

	sessions := usecase.NewSessionStore(
		storage.NewSessionRepository(db),
		auth,
		domain.Credentials{Username: cfg.Source.Username, Password: cfg.Source.Password, Email: cfg.Source.Email},
		cfg.Source.Freshness.Std(),
		baseLogger.With("component", "session"),
	)

	scraper := twitter.NewTimelineScraper(&http.Client{Timeout: cfg.Source.Timeout.Std()}, cfg.Source.BaseURL, cfg.Source.MaxItems)
	source := twitter.NewPageSource(scraper, cfg.Source.Pages, baseLogger.With("component", "source"))

	enricher, err := buildEnricher(cfg.Enrichment)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	baseLogger.Info("enrichment provider selected", "provider", enricher.Name())

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sessions: sessions,
		Source:   source,
		Ledger:   ledger,
		Registry: handles,
		Enricher: enricher,
		Notifier: telegram.NewNotifier(cfg.Notifications.Telegram),
		Logger:   baseLogger.With("component", "pipeline"),
	}, usecase.PipelineOptions{
		Workers:       cfg.Pipeline.Workers,
		RetryWindow:   cfg.Pipeline.RetryWindow.Std(),
		Retention:     cfg.Pipeline.Retention.Std(),
		ItemTimeout:   cfg.Pipeline.ItemTimeout.Std(),
		EnrichRetries: cfg.Enrichment.Retries,
		SendRetries:   cfg.Notifications.Telegram.Retries,
		Backoff:       cfg.Pipeline.Backoff.Std(),
	})

	sched := usecase.NewScheduler(scheduler.NewJitterTicker(), pipeline, baseLogger.With("component", "scheduler"))

	return &Application{
		Config:    cfg,
		Logger:    baseLogger,
		Handles:   handles,
		Ledger:    ledger,
		Sessions:  sessions,
		Pipeline:  pipeline,
		Scheduler: sched,
		db:        db,
	}, nil
}

func buildEnricher(cfg config.EnrichmentConfig) (provider.Provider, error) {
	registry := provider.NewRegistry()
	registry.Register(llm.NewChatGPTClient(cfg.ChatGPT))
	if cfg.Service.InferenceURL != "" {
		registry.Register(ml.NewClient(cfg.Service.InferenceURL, cfg.Service.APIKey, cfg.Service.Timeout.Std()))
	}
	return registry.Resolve(cfg.Provider)
}

// Serve runs the polling loop and the management API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	api := httpapi.New(a.Config.HTTP.Addr, httpapi.Deps{
		Handles:  a.Handles,
		Poller:   a.Scheduler,
		Sessions: a.Sessions,
		Ledger:   a.Ledger,
		Logger:   a.Logger.With("component", "http"),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Scheduler.RunForever(gctx, a.Config.Scheduler.Interval.Std(), a.Config.Scheduler.Jitter)
	})
	g.Go(func() error {
		return api.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return api.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// PollOnce runs a single manual cycle.
func (a *Application) PollOnce(ctx context.Context) (domain.CycleSummary, error) {
	return a.Scheduler.TriggerNow(ctx)
}

// Close releases the database.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}

// CheckStorage pings the database.
func (a *Application) CheckStorage(ctx context.Context) error {
	return a.db.Ping(ctx)
}
