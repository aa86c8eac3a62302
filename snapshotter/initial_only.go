package snapshotter

import (
	"time"

	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
)

// InitialOnly captures existing data when no prior offset exists and stops
// without streaming.
type InitialOnly struct {
	OffsetExists bool
}

func (InitialOnly) Name() string {
	return string(ModeInitialOnly)
}

func (s InitialOnly) ShouldSnapshot() bool {
	return !s.OffsetExists
}

func (InitialOnly) ShouldStream() bool {
	return false
}

func (InitialOnly) ExportSnapshot() bool {
	return false
}

func (InitialOnly) IsolationStatement(slot.CreationResult) string {
	return defaultIsolation
}

func (InitialOnly) LockStatement(timeout time.Duration, ids []schema.TableID) (string, bool) {
	return buildLockStatement(timeout, ids), true
}

func (InitialOnly) BuildSnapshotQuery(id schema.TableID) (string, bool) {
	return buildSelectAll(id), true
}
