package pgsnap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/snapflowio/pgsnap/config"
	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/logger"
	"github.com/snapflowio/pgsnap/metrics"
	"github.com/snapflowio/pgsnap/offset"
	"github.com/snapflowio/pgsnap/slot"
	"github.com/snapflowio/pgsnap/snapshot"
	"github.com/snapflowio/pgsnap/snapshotter"
)

// Connector drives the snapshot phase of a capture pipeline: it takes the
// configured snapshot, persists the resulting offset and reports the position
// a streaming consumer resumes from.
type Connector interface {
	// Start runs the configured snapshot and, when regular snapshots are
	// enabled, keeps re-running them on schedule until ctx is cancelled.
	Start(ctx context.Context) error

	// Snapshot runs a single snapshot under the configured policy.
	Snapshot(ctx context.Context) (snapshot.Result, error)

	// Offset returns the stored offset for the configured server, nil when no
	// run has completed yet.
	Offset(ctx context.Context) (*offset.Context, error)

	GetConfig() *config.Config
	Close()
}

type connector struct {
	// Configuration and dependencies
	cfg      *config.Config
	policy   snapshotter.Snapshotter
	rows     snapshot.Handler
	schemas  snapshot.SchemaHandler
	progress snapshot.ProgressListener
	store    offset.Store
	slot     *slot.Slot

	cron          *cron.Cron
	metricsServer *http.Server

	// Synchronization (always last)
	runMu       sync.Mutex
	slotInfo    slot.CreationResult
	slotCreated bool
	closeOnce   sync.Once
}

type ConnectorOption func(*connector)

// WithSchemaChangeHandler receives one schema event per captured table before
// any data events are produced.
func WithSchemaChangeHandler(h snapshot.SchemaHandler) ConnectorOption {
	return func(c *connector) { c.schemas = h }
}

// WithSnapshotter replaces the built-in policy selected by snapshot.mode.
func WithSnapshotter(policy snapshotter.Snapshotter) ConnectorOption {
	return func(c *connector) { c.policy = policy }
}

// WithOffsetStore replaces the store selected by offset.storage.
func WithOffsetStore(store offset.Store) ConnectorOption {
	return func(c *connector) { c.store = store }
}

// WithProgressListener replaces the default progress listener. The default
// publishes metrics when metrics are enabled and is a no-op otherwise.
func WithProgressListener(l snapshot.ProgressListener) ConnectorOption {
	return func(c *connector) { c.progress = l }
}

func NewConnector(ctx context.Context, cfg config.Config, handler snapshot.Handler, opts ...ConnectorOption) (Connector, error) {
	cfg.SetDefault()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	cfg.Print()

	logger.SetLevel(cfg.Logger.LogLevel)
	if cfg.DebugMode {
		logger.SetLevel(logrus.DebugLevel)
	}

	if handler == nil {
		return nil, errors.New("snapshot handler cannot be nil")
	}

	c := &connector{
		cfg:  &cfg,
		rows: handler,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		store, err := openOffsetStore(ctx, &cfg)
		if err != nil {
			return nil, fmt.Errorf("open offset store: %w", err)
		}
		c.store = store
	}

	if c.policy == nil {
		previous, err := c.store.Load(ctx, cfg.ServerName)
		if err != nil {
			return nil, fmt.Errorf("load offset: %w", err)
		}

		policy, err := snapshotter.ForMode(cfg.Snapshot.Mode, previous != nil)
		if err != nil {
			return nil, err
		}
		c.policy = policy
	}

	if c.progress == nil {
		if cfg.Metrics.Enabled {
			c.progress = metrics.NewListener(cfg.ServerName)
		} else {
			c.progress = snapshot.NopProgressListener()
		}
	}

	if cfg.Slot.Name != "" {
		c.slot = slot.NewSlot(cfg.ReplicationDSN(), cfg.DSN(), cfg.Slot)
	}

	return c, nil
}

func openOffsetStore(ctx context.Context, cfg *config.Config) (offset.Store, error) {
	switch cfg.Offset.Storage {
	case config.OffsetStorageMemory:
		return offset.NewMemoryStore(), nil
	default:
		return offset.NewPGStore(ctx, cfg.OffsetDSN())
	}
}

func (c *connector) Start(ctx context.Context) error {
	if c.cfg.Metrics.Enabled {
		c.startMetricsServer()
	}

	result, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.logHandoff(result)

	if !c.cfg.Snapshot.Regular.Enabled {
		return nil
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.cfg.Snapshot.Regular.Schedule, func() { c.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("schedule regular snapshots: %w", err)
	}
	c.cron.Start()
	logger.Info("[connector] regular snapshots scheduled", "schedule", c.cfg.Snapshot.Regular.Schedule)

	<-ctx.Done()
	<-c.cron.Stop().Done()
	return ctx.Err()
}

// Snapshot runs one snapshot under the configured policy and persists the
// offset it establishes. Runs are serialized.
func (c *connector) Snapshot(ctx context.Context) (snapshot.Result, error) {
	return c.snapshotWith(ctx, c.policy)
}

// runScheduled re-exports the captured tables regardless of any stored
// offset, which is the point of a scheduled run.
func (c *connector) runScheduled(ctx context.Context) {
	logger.Info("[connector] scheduled snapshot starting")
	result, err := c.snapshotWith(ctx, snapshotter.Always{})
	if err != nil {
		logger.Error("[connector] scheduled snapshot failed", "error", err)
		return
	}
	c.logHandoff(result)
}

func (c *connector) snapshotWith(ctx context.Context, policy snapshotter.Snapshotter) (snapshot.Result, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if err := c.ensureSlot(ctx); err != nil {
		return snapshot.Result{}, err
	}

	previous, err := c.store.Load(ctx, c.cfg.ServerName)
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("load offset: %w", err)
	}

	db, err := c.dialSnapshotDB(ctx)
	if err != nil {
		return snapshot.Result{}, err
	}
	defer func() {
		_ = db.Close(context.WithoutCancel(ctx))
	}()

	sourceOpts := []snapshot.Option{
		snapshot.WithCatalogName(c.cfg.Database),
		snapshot.WithServerName(c.cfg.ServerName),
		snapshot.WithTableFilter(c.cfg.Capture.Filter()),
		snapshot.WithLockTimeout(c.cfg.Snapshot.LockTimeout),
		snapshot.WithSelectOverrides(c.cfg.Snapshot.SelectOverrides),
		snapshot.WithSlotCreationResult(c.slotInfo),
		snapshot.WithPreviousOffset(previous),
		snapshot.WithRowHandler(c.rows),
		snapshot.WithProgressListener(c.progress),
	}
	if c.schemas != nil {
		sourceOpts = append(sourceOpts, snapshot.WithSchemaChangeHandler(c.schemas))
	}

	result, err := snapshot.New(db, policy, sourceOpts...).Execute(ctx)
	if err != nil {
		return result, err
	}

	if result.Status == snapshot.StatusCompleted {
		if err := c.saveOffset(ctx, result.Offset); err != nil {
			return result, err
		}
	}

	return result, nil
}

// ensureSlot creates the replication slot before the snapshot opens its
// transaction, so no WAL between the two can be lost. Pre-existing slots
// yield no creation result and the snapshot falls back to a live position.
func (c *connector) ensureSlot(ctx context.Context) error {
	if c.slot == nil || !c.cfg.Slot.CreateIfNotExists || c.slotCreated {
		return nil
	}

	info, err := c.slot.Create(ctx)
	if err != nil {
		return fmt.Errorf("create replication slot: %w", err)
	}

	c.slotInfo = info
	c.slotCreated = true
	return nil
}

func (c *connector) dialSnapshotDB(ctx context.Context) (*pg.DB, error) {
	var db *pg.DB
	err := retry.Do(
		func() error {
			var dialErr error
			db, dialErr = pg.Open(ctx, c.cfg.DSN())
			if dialErr != nil && !pg.IsTransientError(dialErr) {
				return retry.Unrecoverable(dialErr)
			}
			return dialErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("[connector] snapshot connection failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect for snapshot: %w", err)
	}

	return db, nil
}

// saveOffset persists the offset before the handoff is announced. A snapshot
// whose offset is not durable would be re-run from scratch on restart.
func (c *connector) saveOffset(ctx context.Context, o *offset.Context) error {
	if err := c.store.Save(ctx, o); err != nil {
		if c.cfg.Metrics.Enabled {
			metrics.OffsetSavesTotal.WithLabelValues(c.cfg.ServerName, "failure").Inc()
		}
		return fmt.Errorf("save offset: %w", err)
	}

	if c.cfg.Metrics.Enabled {
		metrics.OffsetSavesTotal.WithLabelValues(c.cfg.ServerName, "success").Inc()
		metrics.OffsetLSN.WithLabelValues(c.cfg.ServerName).Set(float64(o.LSN()))
	}

	return nil
}

func (c *connector) logHandoff(result snapshot.Result) {
	if result.Offset == nil {
		logger.Info("[connector] no offset established, streaming would start from scratch")
		return
	}

	if c.policy.ShouldStream() {
		logger.Info("[connector] ready to hand off to streaming",
			"status", string(result.Status),
			"lsn", result.Offset.LSN(),
			"txId", result.Offset.TxID())
	} else {
		logger.Info("[connector] snapshot finished, streaming disabled by policy",
			"status", string(result.Status))
	}
}

func (c *connector) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.NewRegistry(), promhttp.HandlerOpts{}))
	c.metricsServer = &http.Server{Addr: c.cfg.Metrics.Addr, Handler: mux}

	go func() {
		logger.Info("[connector] metrics server listening", "addr", c.cfg.Metrics.Addr)
		if err := c.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[connector] metrics server failed", "error", err)
		}
	}()
}

func (c *connector) Offset(ctx context.Context) (*offset.Context, error) {
	return c.store.Load(ctx, c.cfg.ServerName)
}

func (c *connector) GetConfig() *config.Config {
	return c.cfg
}

func (c *connector) Close() {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Debug("[connector] closing connector")

		if c.cron != nil {
			<-c.cron.Stop().Done()
		}

		if c.metricsServer != nil {
			if err := c.metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("[connector] metrics server shutdown failed", "error", err)
			}
		}

		if c.slot != nil {
			c.slot.Close(ctx)
		}

		if err := c.store.Close(ctx); err != nil {
			logger.Warn("[connector] offset store close failed", "error", err)
		}

		logger.Info("[connector] connector closed")
	})
}
