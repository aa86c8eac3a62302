package snapshot

import (
	"context"
	"errors"

	"github.com/snapflowio/pgsnap/format"
	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/schema"
)

// ErrInterrupted is returned when a run stops at a cooperative cancellation
// point. Work finished before the interruption stays valid.
var ErrInterrupted = errors.New("snapshot interrupted")

// Handler receives the events of a snapshot run in order.
type Handler func(event *format.Snapshot) error

// SchemaHandler receives one schema change per captured table before any row
// event is produced.
type SchemaHandler func(event *format.SchemaChange) error

// Database is the session a snapshot runs on. Statements execute on a single
// connection, so everything issued after the opening BEGIN observes the same
// frozen view.
type Database interface {
	ExecuteWithoutCommitting(ctx context.Context, statements ...string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	CurrentXLogPos(ctx context.Context) (pg.LSN, error)
	CurrentTransactionID(ctx context.Context) (pg.XID, error)

	ReadTableNames(ctx context.Context, catalog, schemaPattern, tablePattern string, types []string) ([]schema.TableID, error)
	ReadSchema(ctx context.Context, tables *schema.Tables, catalog, schemaName string, filter schema.TableFilter) error
	ReadTypes(ctx context.Context) ([]schema.Type, error)

	StreamRows(ctx context.Context, query string, fn pg.RowFunc) (int64, error)
}

// ProgressListener observes the lifecycle of a run. Implementations must not
// block; they are invoked inline from the snapshot loop.
type ProgressListener interface {
	SnapshotStarted()
	TablesDetermined(ids []schema.TableID)
	TableScanCompleted(id schema.TableID, rows int64)
	SnapshotCompleted()
	SnapshotAborted()
}

type nopProgressListener struct{}

func (nopProgressListener) SnapshotStarted()                          {}
func (nopProgressListener) TablesDetermined([]schema.TableID)         {}
func (nopProgressListener) TableScanCompleted(schema.TableID, int64)  {}
func (nopProgressListener) SnapshotCompleted()                        {}
func (nopProgressListener) SnapshotAborted()                          {}

// NopProgressListener returns a listener that ignores all notifications.
func NopProgressListener() ProgressListener {
	return nopProgressListener{}
}
