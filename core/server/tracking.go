package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/config"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/metrics"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors/pbstore"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors/pgstore"

	"github.com/pocketbase/pocketbase/core"
)

// Tracking bundles the visitor recording and statistics components of a site.
type Tracking struct {
	cfg      *config.Config
	loc      *time.Location
	logger   *slog.Logger
	provider visitors.Provider
	gate     *visitors.Gate
	lookup   *visitors.LookupResolver
	recorder *visitors.Recorder
	stats    *visitors.Stats
	limiter  *IPRateLimiter
	metrics  *metrics.Metrics
	closers  []io.Closer
}

// NewTracking builds the tracking stack for app from cfg. The visitors
// backend is either app's own database or PostgreSQL.
func NewTracking(ctx context.Context, app core.App, cfg *config.Config) (*Tracking, error) {
	return newTracking(ctx, app, cfg, true)
}

// OpenStats builds a read-only tracking stack without a gate or recorder,
// for commands that run next to a live server.
func OpenStats(ctx context.Context, app core.App, cfg *config.Config) (*Tracking, error) {
	return newTracking(ctx, app, cfg, false)
}

func newTracking(ctx context.Context, app core.App, cfg *config.Config, record bool) (*Tracking, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, NewConfigError("tracking_timezone", "Invalid visitors timezone", err)
	}

	t := &Tracking{
		cfg:     cfg,
		loc:     loc,
		logger:  app.Logger().With("component", "visitors"),
		limiter: NewIPRateLimiter(cfg.Visitors.RateLimit, cfg.Visitors.RateBurst),
		metrics: metrics.Default(),
	}

	if err := t.openBackend(ctx, app); err != nil {
		t.Close()
		return nil, err
	}

	t.stats = visitors.NewStats(t.provider, loc, t.logger).
		WithReadyWait(cfg.ReadyTimeout(), cfg.ReadyInterval())
	if !record {
		return t, nil
	}

	store, err := t.openGateStore(ctx)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.gate = visitors.NewGate(store, loc)

	t.lookup = visitors.NewLookupResolver(cfg.Visitors.LookupServices, cfg.LookupTimeout(), t.logger).
		WithObserver(t.metrics.ObserveLookup)

	t.recorder = visitors.NewRecorder(t.provider, t.gate, t.lookup, t.logger,
		visitors.WithReadyWait(cfg.ReadyTimeout(), cfg.ReadyInterval()),
		visitors.WithResultObserver(t.metrics.ObserveResult),
	)

	t.logger.Info("Visitor tracking configured",
		"backend", cfg.Visitors.Backend,
		"gate_store", cfg.Visitors.GateStore,
		"timezone", loc.String(),
	)

	return t, nil
}

func (t *Tracking) openBackend(ctx context.Context, app core.App) error {
	switch t.cfg.Visitors.Backend {
	case config.BackendPostgres:
		pgCfg := pgstore.DefaultConfig(t.cfg.Postgres.DSN)
		if t.cfg.Postgres.MaxOpenConns > 0 {
			pgCfg.MaxOpenConns = t.cfg.Postgres.MaxOpenConns
		}
		if t.cfg.Postgres.MaxIdleConns > 0 {
			pgCfg.MaxIdleConns = t.cfg.Postgres.MaxIdleConns
		}
		pgCfg.ConnMaxLifetime = t.cfg.ConnMaxLifetime()

		store, err := pgstore.Open(ctx, pgCfg)
		if err != nil {
			return NewDatabaseError("tracking_postgres", "Failed to open PostgreSQL visitors store", err)
		}
		t.closers = append(t.closers, store)
		t.provider = store.Provider()
	default:
		t.provider = pbstore.Provider(app)
	}
	return nil
}

func (t *Tracking) openGateStore(ctx context.Context) (visitors.DayStore, error) {
	switch t.cfg.Visitors.GateStore {
	case config.GateLevelDB:
		store, err := visitors.OpenLevelDBDayStore(t.cfg.Visitors.LevelDBPath)
		if err != nil {
			return nil, NewConfigError("tracking_gate_leveldb", "Failed to open LevelDB gate store", err)
		}
		t.closers = append(t.closers, store)
		return store, nil
	case config.GateRedis:
		store, err := visitors.DialRedisDayStore(ctx, t.cfg.Visitors.RedisURL)
		if err != nil {
			return nil, NewConfigError("tracking_gate_redis", "Failed to connect Redis gate store", err)
		}
		t.closers = append(t.closers, store)
		return store, nil
	default:
		return visitors.NewMemoryDayStore(), nil
	}
}

// Recorder returns the visit recorder.
func (t *Tracking) Recorder() *visitors.Recorder { return t.recorder }

// Stats returns the statistics reader.
func (t *Tracking) Stats() *visitors.Stats { return t.stats }

// Gate returns the once-per-day gate.
func (t *Tracking) Gate() *visitors.Gate { return t.gate }

// Location returns the site timezone.
func (t *Tracking) Location() *time.Location { return t.loc }

// Config returns the site configuration the stack was built from.
func (t *Tracking) Config() *config.Config { return t.cfg }

// Ready reports whether the visitors backend is usable right now.
func (t *Tracking) Ready(ctx context.Context) error {
	_, err := t.provider(ctx)
	return err
}

// Close releases the backend and gate connections.
func (t *Tracking) Close() error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close tracking: %w", errors.Join(errs...))
	}
	return nil
}
