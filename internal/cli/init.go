// Package cli provides the wiring shared by the ledgerlens commands:
// environment and config loading, backend and engine construction, and
// table rendering.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/backend"
	"ledgerlens/internal/budget"
	"ledgerlens/internal/config"
	"ledgerlens/internal/core"
	"ledgerlens/internal/duplicates"
	"ledgerlens/internal/engine"
	"ledgerlens/internal/insights"
	"ledgerlens/internal/log"
	"ledgerlens/internal/normalize"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App is a ready engine with the resources it holds.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Engine    *engine.Engine
	Publisher *amqp.Client

	cleanup backend.CleanupFunc
}

// Close stops the engine and releases the backend.
func (a *App) Close() error {
	a.Engine.Close()
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}

// NewApp builds the backend selected by cfg and an engine over it.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	var budgets *config.Budgets
	if cfg.BudgetRulesFile != "" {
		var err error
		budgets, err = config.LoadRulesFile(cfg.BudgetRulesFile, budget.DefaultThresholds)
		if err != nil {
			return nil, err
		}
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	var notifier engine.Notifier
	if res.Publisher != nil {
		notifier = res.Publisher
	}
	eng, err := engine.New(EngineConfig(cfg, budgets), res.Backend, res.Backend, notifier, logger)
	if err != nil {
		_ = res.Cleanup()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Engine:    eng,
		Publisher: res.Publisher,
		cleanup:   res.Cleanup,
	}, nil
}

// EngineConfig maps the application config, and the optional rules file,
// onto engine parameters.
func EngineConfig(cfg *config.Config, budgets *config.Budgets) engine.Config {
	ec := engine.DefaultConfig()

	ec.Normalize = normalize.DefaultConfig()
	ec.Normalize.SkewTolerance = cfg.DateSkewTolerance

	ec.Duplicates = duplicates.DefaultConfig()
	ec.Duplicates.WindowDays = cfg.DuplicateWindowDays
	ec.Duplicates.LikelyScore = cfg.DuplicateLikelyScore
	ec.Duplicates.PossibleScore = cfg.DuplicatePossibleScore
	ec.Duplicates.CrossSourceFactor = cfg.DuplicateCrossSourceFactor

	ec.Insights = insights.DefaultConfig()
	ec.Insights.TrendThreshold = cfg.TrendThreshold
	ec.Insights.AnomalyK = cfg.AnomalyK
	ec.Insights.MinSamples = cfg.AnomalyMinSamples
	ec.Insights.TopMerchants = cfg.TopMerchants

	ec.StoreTimeout = cfg.StoreTimeout
	ec.CacheSize = cfg.SummaryCacheSize
	ec.CacheTTL = cfg.SummaryCacheTTL

	for _, c := range cfg.Categories {
		ec.Categories = append(ec.Categories, core.Category(c))
	}
	if budgets != nil {
		ec.Categories = append(ec.Categories, budgets.Categories...)
		ec.Rules = budgets.Rules
	}
	return ec
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
