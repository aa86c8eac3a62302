package snapshotter

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
)

// Snapshotter decides whether and how the snapshot phase runs. Built-in
// policies cover the snapshot modes; a custom implementation can be supplied
// through config for anything else.
type Snapshotter interface {
	// Name returns the mode name for logs.
	Name() string

	// ShouldSnapshot reports whether existing data should be captured.
	ShouldSnapshot() bool

	// ShouldStream reports whether streaming follows the snapshot phase.
	ShouldStream() bool

	// ExportSnapshot reports whether the snapshot consistency point is tied
	// to the replication slot created for this run.
	ExportSnapshot() bool

	// IsolationStatement returns the statement that opens the frozen-view
	// transaction. slotCreated carries the creation result when a slot was
	// created just before the snapshot.
	IsolationStatement(slotCreated slot.CreationResult) string

	// LockStatement returns the statement locking every captured table for
	// schema capture, bounded by timeout. The second return is false when
	// this policy does not lock.
	LockStatement(timeout time.Duration, ids []schema.TableID) (string, bool)

	// BuildSnapshotQuery returns the row select statement for one table. The
	// second return is false when the table's data should be skipped.
	BuildSnapshotQuery(id schema.TableID) (string, bool)
}

type Mode string

const (
	ModeAlways      Mode = "always"
	ModeInitial     Mode = "initial"
	ModeInitialOnly Mode = "initial_only"
	ModeNever       Mode = "never"
	ModeExported    Mode = "exported"
)

// ForMode returns the built-in policy for mode. offsetExists reports whether
// a prior offset was found, which decides the initial and exported modes.
func ForMode(mode Mode, offsetExists bool) (Snapshotter, error) {
	switch mode {
	case ModeAlways:
		return Always{}, nil
	case ModeInitial:
		return Initial{OffsetExists: offsetExists}, nil
	case ModeInitialOnly:
		return InitialOnly{OffsetExists: offsetExists}, nil
	case ModeNever:
		return Never{}, nil
	case ModeExported:
		return Exported{OffsetExists: offsetExists}, nil
	default:
		return nil, fmt.Errorf("unknown snapshot mode %q", mode)
	}
}

const defaultIsolation = "BEGIN TRANSACTION ISOLATION LEVEL SERIALIZABLE, READ ONLY, DEFERRABLE"

// buildLockStatement bounds the total wait with lock_timeout, then takes a
// shared lock on every captured table so concurrent DDL cannot slip between
// structure capture and row reads.
func buildLockStatement(timeout time.Duration, ids []schema.TableID) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SET lock_timeout = %d;\n", timeout.Milliseconds())
	for _, id := range ids {
		fmt.Fprintf(&sb, "LOCK TABLE %s.%s IN ACCESS SHARE MODE;\n",
			pq.QuoteIdentifier(id.Schema), pq.QuoteIdentifier(id.Name))
	}

	return sb.String()
}

func buildSelectAll(id schema.TableID) string {
	return fmt.Sprintf("SELECT * FROM %s.%s",
		pq.QuoteIdentifier(id.Schema), pq.QuoteIdentifier(id.Name))
}
