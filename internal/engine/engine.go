// Package engine is the facade callers use to record expenses and read
// summaries, budgets, insights and duplicate previews. It owns the
// per-user write lock and the summary cache; everything it computes is
// delegated to the normalize, duplicates, budget and insights packages.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ledgerlens/internal/budget"
	"ledgerlens/internal/cache"
	"ledgerlens/internal/core"
	"ledgerlens/internal/duplicates"
	"ledgerlens/internal/insights"
	"ledgerlens/internal/log"
	"ledgerlens/internal/normalize"
	"ledgerlens/internal/records"
)

// Config wires the component parameters together.
type Config struct {
	Normalize  normalize.Config
	Duplicates duplicates.Config
	Insights   insights.Config

	// Categories seeds the budget category registry.
	Categories []core.Category
	// Rules apply to every user. A rule a user saves with the same
	// category and period replaces it for that user.
	Rules []core.BudgetRule

	// StoreTimeout bounds every store call.
	StoreTimeout time.Duration
	// HistoryDays is how far before a period GetInsights looks for the
	// anomaly baseline.
	HistoryDays int

	CacheSize int
	CacheTTL  time.Duration

	// PublishQueue is how many events may wait for the notifier. Events
	// beyond it are dropped and logged.
	PublishQueue int
	// PublishTimeout bounds each notifier call.
	PublishTimeout time.Duration

	// Now is the clock shared by every component. Defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Normalize:      normalize.DefaultConfig(),
		Duplicates:     duplicates.DefaultConfig(),
		Insights:       insights.DefaultConfig(),
		StoreTimeout:   5 * time.Second,
		HistoryDays:    365,
		CacheSize:      256,
		CacheTTL:       5 * time.Minute,
		PublishQueue:   256,
		PublishTimeout: 10 * time.Second,
		Now:            time.Now,
	}
}

type Engine struct {
	store    records.Store
	rules    records.RuleStore
	notifier Notifier
	logger   *log.Logger

	normalizer *normalize.Normalizer
	detector   *duplicates.Detector
	aggregator *insights.Aggregator

	defaults     []core.BudgetRule
	registryMu   sync.RWMutex
	categories   []core.Category
	storeTimeout time.Duration
	historyDays  int
	now          func() time.Time

	locks     *userLocks
	summaries cache.Cache[core.Summary]
	caches    *cache.Manager
	flight    singleflight.Group

	genMu sync.Mutex
	gens  map[string]uint64

	outboxMu       sync.RWMutex
	outbox         chan queuedEvent
	outboxClosed   bool
	drained        chan struct{}
	publishTimeout time.Duration
	closeOnce      sync.Once
}

// New builds an engine over store and rules. notifier may be nil. The
// default rules in cfg are validated against cfg.Categories.
func New(cfg Config, store records.Store, rules records.RuleStore, notifier Notifier, logger *log.Logger) (*Engine, error) {
	if store == nil || rules == nil {
		return nil, fmt.Errorf("engine needs a record store and a rule store")
	}
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.HistoryDays < 0 {
		cfg.HistoryDays = 0
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.PublishQueue <= 0 {
		cfg.PublishQueue = 256
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	cfg.Normalize.Now = cfg.Now
	cfg.Insights.Now = cfg.Now

	engineLogger := logger.WithComponent(log.ComponentEngine)
	e := &Engine{
		store:          store,
		rules:          rules,
		notifier:       notifier,
		logger:         engineLogger,
		normalizer:     normalize.New(cfg.Normalize, cfg.Categories, logger),
		detector:       duplicates.New(cfg.Duplicates),
		aggregator:     insights.New(cfg.Insights),
		storeTimeout:   cfg.StoreTimeout,
		historyDays:    cfg.HistoryDays,
		now:            cfg.Now,
		locks:          newUserLocks(),
		gens:           make(map[string]uint64),
		publishTimeout: cfg.PublishTimeout,
	}

	registry := budget.NewTracker(cfg.Categories, logger)
	for _, r := range cfg.Rules {
		if !r.IsGlobal() {
			registry.RegisterCategory(r.Category)
		}
		if err := registry.Register(r); err != nil {
			return nil, &Error{Op: log.OpStartup, Kind: KindConfiguration, Err: err}
		}
	}
	e.categories = registry.Categories()
	e.defaults = registry.Rules()

	lru := cache.NewLRUCache[core.Summary](cfg.CacheSize, cfg.CacheTTL)
	e.summaries = lru
	e.caches = cache.NewManager(logger)
	e.caches.Register(lru)
	e.caches.StartCleanup(cfg.CacheTTL)

	if notifier != nil {
		e.outbox = make(chan queuedEvent, cfg.PublishQueue)
		e.drained = make(chan struct{})
		go e.deliver()
	}

	return e, nil
}

// Close stops background cache maintenance and waits for queued events
// to reach the notifier. It does not close the stores. Close is safe to
// call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.caches.Stop()
		if e.outbox == nil {
			return
		}
		e.outboxMu.Lock()
		e.outboxClosed = true
		close(e.outbox)
		e.outboxMu.Unlock()
		<-e.drained
	})
}

// RegisterCategory adds c to the budget category registry.
func (e *Engine) RegisterCategory(c core.Category) {
	c = normalize.CategoryOf(string(c))
	if c == "" {
		return
	}
	e.registryMu.Lock()
	defer e.registryMu.Unlock()
	for _, known := range e.categories {
		if known == c {
			return
		}
	}
	e.categories = append(e.categories, c)
}

// Categories returns every category the engine has seen: the registry
// followed by those observed while normalizing records.
func (e *Engine) Categories() []core.Category {
	e.registryMu.RLock()
	out := append([]core.Category(nil), e.categories...)
	e.registryMu.RUnlock()
	seen := make(map[core.Category]bool, len(out))
	for _, c := range out {
		seen[c] = true
	}
	for _, c := range e.normalizer.Categories() {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// storeCtx bounds a store call by StoreTimeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

func (e *Engine) listRange(ctx context.Context, userID string, r core.PeriodRange) ([]core.Expense, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	out, err := e.store.ListRange(sctx, userID, r.Start, r.End, "")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r, err)
	}
	fields := log.NewFields().
		WithUser(userID).
		WithPeriod(r.String()).
		WithDuration(time.Since(start).Milliseconds())
	fields[log.FieldCount] = len(out)
	e.loggerFor(ctx).DebugContext(ctx, "Records loaded", fields.ToSlice()...)
	return out, nil
}

// loggerFor returns the logger carried by ctx, falling back to the
// engine's own, tagged with the engine component.
func (e *Engine) loggerFor(ctx context.Context) *log.Logger {
	return log.FromContextOr(ctx, e.logger).WithComponent(log.ComponentEngine)
}

func (e *Engine) audit(ctx context.Context) *log.StructuredLogger {
	return log.NewStructuredLogger(e.loggerFor(ctx))
}

func (e *Engine) today() core.Date {
	return core.DateOf(e.now())
}
