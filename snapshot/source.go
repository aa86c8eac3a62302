package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/snapflowio/pgsnap/format"
	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/logger"
	"github.com/snapflowio/pgsnap/offset"
	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
	"github.com/snapflowio/pgsnap/snapshotter"
	"github.com/snapflowio/pgsnap/value"
)

const defaultLockTimeout = 10 * time.Second

// Source produces a consistent snapshot of the captured tables and the
// offset streaming resumes from. One Source runs one snapshot.
type Source struct {
	// Configuration
	catalogName string
	serverName  string
	lockTimeout time.Duration
	overrides   map[string]string
	filter      schema.TableFilter

	// Dependencies
	db       Database
	policy   snapshotter.Snapshotter
	slotInfo slot.CreationResult
	previous *offset.Context
	cache    *schema.Cache
	coercer  *value.Coercer
	rows     Handler
	schemas  SchemaHandler
	progress ProgressListener
	now      func() time.Time
}

type Option func(*Source)

// WithCatalogName sets the database name captured tables belong to.
func WithCatalogName(name string) Option {
	return func(s *Source) { s.catalogName = name }
}

// WithServerName sets the logical server name stamped on offsets.
func WithServerName(name string) Option {
	return func(s *Source) { s.serverName = name }
}

// WithTableFilter narrows the captured tables.
func WithTableFilter(filter schema.TableFilter) Option {
	return func(s *Source) { s.filter = filter }
}

// WithLockTimeout bounds the wait for each table lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Source) { s.lockTimeout = timeout }
}

// WithSlotCreationResult passes the creation result of the replication slot
// created for this run, tying the snapshot to the slot's consistent point.
func WithSlotCreationResult(info slot.CreationResult) Option {
	return func(s *Source) { s.slotInfo = info }
}

// WithPreviousOffset seeds the run with the offset of an earlier run.
func WithPreviousOffset(prev *offset.Context) Option {
	return func(s *Source) { s.previous = prev }
}

// WithRowHandler sets the consumer of snapshot events.
func WithRowHandler(h Handler) Option {
	return func(s *Source) { s.rows = h }
}

// WithSchemaChangeHandler sets the consumer of schema change events.
func WithSchemaChangeHandler(h SchemaHandler) Option {
	return func(s *Source) { s.schemas = h }
}

// WithProgressListener sets the lifecycle observer.
func WithProgressListener(l ProgressListener) Option {
	return func(s *Source) { s.progress = l }
}

// WithSelectOverrides replaces the generated select statement for specific
// tables, keyed by "schema.table".
func WithSelectOverrides(overrides map[string]string) Option {
	return func(s *Source) { s.overrides = overrides }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func New(db Database, policy snapshotter.Snapshotter, opts ...Option) *Source {
	s := &Source{
		lockTimeout: defaultLockTimeout,
		overrides:   map[string]string{},
		filter:      schema.NewFilter(nil, nil),
		db:          db,
		policy:      policy,
		rows:        func(*format.Snapshot) error { return nil },
		schemas:     func(*format.SchemaChange) error { return nil },
		progress:    NopProgressListener(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cache = schema.NewCache(s.catalogName, s.filter)
	s.coercer = value.NewCoercer(s.cache.Types())

	return s
}

// Execute runs the snapshot to completion. On StatusCompleted the returned
// offset carries the position streaming must start from.
func (s *Source) Execute(ctx context.Context) (Result, error) {
	task := s.planTask()
	logger.Info("[snapshot] task determined",
		"policy", s.policy.Name(),
		"snapshotSchema", task.SnapshotSchema,
		"snapshotData", task.SnapshotData)

	if task.ShouldSkip() {
		logger.Info("[snapshot] nothing to snapshot, proceeding to streaming")
		return Result{Status: StatusSkipped, Offset: s.previous}, nil
	}

	sctx := newContext(s.catalogName)
	if s.previous != nil {
		sctx.Offset = s.previous.Copy()
	}

	s.progress.SnapshotStarted()
	startTime := s.now()

	result, err := s.execute(ctx, sctx, task)
	if err != nil {
		s.progress.SnapshotAborted()
		if rbErr := s.db.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Warn("[snapshot] rollback failed", "error", rbErr)
		}
		return Result{Status: StatusAborted}, err
	}

	s.progress.SnapshotCompleted()
	logger.Info("[snapshot] completed",
		"runID", sctx.RunID,
		"tables", len(sctx.CapturedTables),
		"duration", s.now().Sub(startTime))

	return result, nil
}

// planTask derives the run's task from the policy. No data snapshot means no
// schema snapshot either.
func (s *Source) planTask() Task {
	snapshotData := s.policy.ShouldSnapshot()
	if snapshotData {
		logger.Info("[snapshot] existing data will be captured")
	} else {
		logger.Info("[snapshot] existing data will not be captured")
	}

	return Task{SnapshotSchema: snapshotData, SnapshotData: snapshotData}
}

func (s *Source) execute(ctx context.Context, sctx *Context, task Task) (Result, error) {
	logger.Info("[snapshot] step 1 - preparing session", "runID", sctx.RunID)
	if err := s.prepareSession(ctx); err != nil {
		return Result{}, err
	}

	logger.Info("[snapshot] step 2 - determining captured tables")
	if err := s.determineCapturedTables(ctx, sctx); err != nil {
		return Result{}, err
	}
	s.progress.TablesDetermined(sctx.CapturedTables)

	if task.SnapshotSchema {
		logger.Info("[snapshot] step 3 - locking captured tables", "tables", len(sctx.CapturedTables))
		if err := s.lockCapturedTables(ctx, sctx); err != nil {
			return Result{}, err
		}
	}

	logger.Info("[snapshot] step 4 - determining snapshot offset")
	if err := s.determineSnapshotOffset(ctx, sctx); err != nil {
		return Result{}, err
	}

	logger.Info("[snapshot] step 5 - reading structure of captured tables")
	if err := s.readTableStructure(ctx, sctx); err != nil {
		return Result{}, err
	}

	if task.SnapshotSchema {
		logger.Info("[snapshot] step 6 - emitting schema events")
		if err := s.emitSchemaEvents(ctx, sctx); err != nil {
			return Result{}, err
		}
		s.releaseLocks()
	}

	if task.SnapshotData {
		logger.Info("[snapshot] step 7 - snapshotting data")
		if err := s.createDataEvents(ctx, sctx); err != nil {
			return Result{}, err
		}
	} else {
		logger.Info("[snapshot] step 7 - skipping data")
		sctx.Offset.MarkLastSnapshotRecord()
		sctx.Offset.PostSnapshotCompletion()
	}

	if err := s.db.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit snapshot transaction: %w", err)
	}

	return Result{Status: StatusCompleted, Offset: sctx.Offset}, nil
}

// prepareSession disables the session timeouts that could kill a long run,
// opens the frozen-view transaction and loads the type registry inside it.
func (s *Source) prepareSession(ctx context.Context) error {
	isolation := s.policy.IsolationStatement(s.slotInfo)
	logger.Info("[snapshot] opening transaction", "statement", isolation)

	if err := s.db.ExecuteWithoutCommitting(ctx,
		"SET idle_in_transaction_session_timeout = 0",
		"SET statement_timeout = 0",
		isolation,
	); err != nil {
		return fmt.Errorf("open snapshot transaction: %w", err)
	}

	if err := s.cache.Refresh(ctx, s.db); err != nil {
		return fmt.Errorf("load type registry: %w", err)
	}

	return nil
}

func (s *Source) determineCapturedTables(ctx context.Context, sctx *Context) error {
	all, err := s.db.ReadTableNames(ctx, s.catalogName, "", "", []string{"TABLE"})
	if err != nil {
		return fmt.Errorf("read table names: %w", err)
	}

	captured := make([]schema.TableID, 0, len(all))
	for _, id := range all {
		if s.filter(id) {
			captured = append(captured, id)
		} else {
			logger.Debug("[snapshot] table not captured", "table", id)
		}
	}
	schema.SortTableIDs(captured)

	sctx.CapturedTables = captured
	return nil
}

func (s *Source) lockCapturedTables(ctx context.Context, sctx *Context) error {
	stmt, ok := s.policy.LockStatement(s.lockTimeout, sctx.CapturedTables)
	if !ok {
		if !s.policy.ExportSnapshot() {
			logger.Warn("[snapshot] skipping table locks, concurrent schema changes may make the snapshot inconsistent")
		} else {
			logger.Info("[snapshot] skipping table locks inside an exported snapshot")
		}
		return nil
	}

	logger.Info("[snapshot] waiting for table locks",
		"timeout", s.lockTimeout,
		"tables", len(sctx.CapturedTables))
	if err := s.db.ExecuteWithoutCommitting(ctx, stmt); err != nil {
		if pg.IsLockNotAvailable(err) {
			return fmt.Errorf("table locks not acquired within %s: %w", s.lockTimeout, err)
		}
		return fmt.Errorf("lock captured tables: %w", err)
	}

	// Locks may race with their own acquisition ordering; reload the
	// metadata read before them now that they are held.
	if err := s.cache.Refresh(ctx, s.db); err != nil {
		return fmt.Errorf("refresh metadata under locks: %w", err)
	}

	return nil
}

// releaseLocks runs once schema events are out. ACCESS SHARE locks are only
// released when the snapshot transaction ends, so no statement is issued
// here.
func (s *Source) releaseLocks() {
	logger.Debug("[snapshot] schema locks persist until the snapshot transaction ends")
}

func (s *Source) determineSnapshotOffset(ctx context.Context, sctx *Context) error {
	xlogStart, err := s.transactionStartLSN(ctx)
	if err != nil {
		return err
	}

	txID, err := s.db.CurrentTransactionID(ctx)
	if err != nil {
		return fmt.Errorf("read current transaction id: %w", err)
	}

	logger.Info("[snapshot] read transaction start position", "lsn", xlogStart, "txID", txID)

	if sctx.Offset == nil {
		initial, err := offset.Initial(ctx, s.db, s.serverName, s.now())
		if err != nil {
			return fmt.Errorf("create initial offset: %w", err)
		}
		sctx.Offset = initial
	}

	// The xmin horizon of the previous offset is carried over untouched.
	sctx.Offset.UpdateWALPosition(xlogStart, txID, s.now())
	sctx.Offset.SetRunID(sctx.RunID.String())
	return nil
}

// transactionStartLSN picks the position streaming resumes from. A slot
// created just before an exported snapshot pins it to the slot's consistent
// point so changes made mid-snapshot are replayed rather than lost.
func (s *Source) transactionStartLSN(ctx context.Context) (pg.LSN, error) {
	if s.policy.ExportSnapshot() && s.slotInfo.Valid {
		return s.slotInfo.ConsistentPoint, nil
	}

	lsn, err := s.db.CurrentXLogPos(ctx)
	if err != nil {
		return 0, fmt.Errorf("read current wal position: %w", err)
	}

	return lsn, nil
}

// readTableStructure loads column metadata for the distinct namespaces of the
// captured tables. Reading whole namespaces instead of single tables keeps
// the number of catalog queries down.
func (s *Source) readTableStructure(ctx context.Context, sctx *Context) error {
	for _, ns := range schema.DistinctSchemas(sctx.CapturedTables) {
		if ctx.Err() != nil {
			return fmt.Errorf("reading structure of schema %s: %w", ns, ErrInterrupted)
		}

		logger.Info("[snapshot] reading structure", "schema", ns)
		if err := s.db.ReadSchema(ctx, s.cache.Tables(), s.catalogName, ns, s.filter); err != nil {
			return fmt.Errorf("read structure of schema %s: %w", ns, err)
		}
	}

	if err := s.cache.Refresh(ctx, s.db); err != nil {
		return fmt.Errorf("refresh metadata: %w", err)
	}

	return nil
}

func (s *Source) emitSchemaEvents(ctx context.Context, sctx *Context) error {
	for _, id := range sctx.CapturedTables {
		if ctx.Err() != nil {
			return fmt.Errorf("emitting schema events: %w", ErrInterrupted)
		}

		table, ok := s.cache.Tables().Get(id)
		if !ok {
			logger.Warn("[snapshot] captured table missing from metadata", "table", id)
			continue
		}

		event := &format.SchemaChange{
			ServerTime: s.now(),
			Partition:  sctx.Offset.Partition(),
			Offset:     sctx.Offset.Offset(),
			Database:   s.catalogName,
			Schema:     id.Schema,
			Table:      table,
			Type:       format.SchemaChangeCreate,
			Snapshot:   true,
		}
		if err := s.schemas(event); err != nil {
			return fmt.Errorf("schema change handler: %w", err)
		}
	}

	return nil
}

func (s *Source) createDataEvents(ctx context.Context, sctx *Context) error {
	sctx.Offset.PreSnapshotStart()

	if err := s.rows(s.boundaryEvent(sctx, format.SnapshotEventTypeBegin, 0)); err != nil {
		return fmt.Errorf("row handler: %w", err)
	}

	// Events are held back one delivery across the whole run so the final
	// row can be flagged before it goes out, whichever table produced it.
	var pending *format.Snapshot
	hold := func(event *format.Snapshot) error {
		prev := pending
		pending = event
		if prev == nil {
			return nil
		}
		return s.rows(prev)
	}

	var totalRows int64
	for _, id := range sctx.CapturedTables {
		if ctx.Err() != nil {
			return fmt.Errorf("snapshotting table %s: %w", id, ErrInterrupted)
		}

		rows, err := s.snapshotTable(ctx, sctx, id, hold, &totalRows)
		if err != nil {
			return err
		}

		logger.Info("[snapshot] table exported", "table", id, "rows", rows)
		s.progress.TableScanCompleted(id, rows)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("delivering final snapshot row: %w", ErrInterrupted)
	}

	// Marking before the flush also covers runs that produced no rows at all.
	sctx.Offset.MarkLastSnapshotRecord()
	if pending != nil {
		pending.Offset = sctx.Offset.Offset()
		pending.IsLast = true
		if err := s.rows(pending); err != nil {
			return fmt.Errorf("row handler: %w", err)
		}
	}

	if err := s.rows(s.boundaryEvent(sctx, format.SnapshotEventTypeEnd, totalRows)); err != nil {
		return fmt.Errorf("row handler: %w", err)
	}

	sctx.Offset.PostSnapshotCompletion()
	return nil
}

// snapshotTable streams one table, handing each row event to emit.
func (s *Source) snapshotTable(ctx context.Context, sctx *Context, id schema.TableID, emit func(*format.Snapshot) error, totalRows *int64) (int64, error) {
	query, ok := s.snapshotQuery(id)
	if !ok {
		logger.Warn("[snapshot] skipping table, policy produced no select statement", "table", id)
		return 0, nil
	}

	table, ok := s.cache.Tables().Get(id)
	if !ok {
		return 0, fmt.Errorf("table %s missing from metadata", id)
	}

	logger.Info("[snapshot] exporting table", "table", id, "query", query)

	rows, err := s.db.StreamRows(ctx, query, func(fields []pgconn.FieldDescription, values [][]byte) error {
		event, err := s.rowEvent(sctx, table, fields, values)
		if err != nil {
			return err
		}

		*totalRows++
		event.TotalRows = *totalRows
		return emit(event)
	})
	if err != nil {
		return rows, fmt.Errorf("snapshot table %s: %w", id, err)
	}

	return rows, nil
}

func (s *Source) snapshotQuery(id schema.TableID) (string, bool) {
	if override, ok := s.overrides[id.String()]; ok {
		return override, true
	}

	return s.policy.BuildSnapshotQuery(id)
}

func (s *Source) rowEvent(sctx *Context, table *schema.Table, fields []pgconn.FieldDescription, values [][]byte) (*format.Snapshot, error) {
	data := make(map[string]any, len(fields))
	for i, field := range fields {
		if i >= len(values) {
			break
		}

		v, err := s.coercer.Coerce(field.Name, field.DataTypeOID, values[i])
		if err != nil {
			logger.Debug("[snapshot] coercion failed, keeping text form", "column", field.Name, "error", err)
			v = string(values[i])
		}
		data[field.Name] = v
	}

	w2j, err := format.BuildWAL2JSON(format.ActionRead, table, s.cache.Types(), data)
	if err != nil {
		return nil, fmt.Errorf("build row message for %s: %w", table.ID, err)
	}

	return &format.Snapshot{
		EventType:  format.SnapshotEventTypeData,
		ServerTime: s.now(),
		Partition:  sctx.Offset.Partition(),
		Offset:     sctx.Offset.Offset(),
		Data:       data,
		WAL2JSON:   w2j,
		RunID:      sctx.RunID.String(),
		Table:      table.ID.Name,
		Schema:     table.ID.Schema,
		LSN:        sctx.Offset.LSN(),
		TxID:       sctx.Offset.TxID(),
	}, nil
}

func (s *Source) boundaryEvent(sctx *Context, typ format.SnapshotEventType, totalRows int64) *format.Snapshot {
	return &format.Snapshot{
		EventType:  typ,
		ServerTime: s.now(),
		Partition:  sctx.Offset.Partition(),
		Offset:     sctx.Offset.Offset(),
		RunID:      sctx.RunID.String(),
		LSN:        sctx.Offset.LSN(),
		TxID:       sctx.Offset.TxID(),
		TotalRows:  totalRows,
	}
}
