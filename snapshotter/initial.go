package snapshotter

import (
	"time"

	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
)

// Initial captures existing data only when no prior offset exists, then
// hands off to streaming.
type Initial struct {
	OffsetExists bool
}

func (Initial) Name() string {
	return string(ModeInitial)
}

func (s Initial) ShouldSnapshot() bool {
	return !s.OffsetExists
}

func (Initial) ShouldStream() bool {
	return true
}

func (Initial) ExportSnapshot() bool {
	return false
}

func (Initial) IsolationStatement(slot.CreationResult) string {
	return defaultIsolation
}

func (Initial) LockStatement(timeout time.Duration, ids []schema.TableID) (string, bool) {
	return buildLockStatement(timeout, ids), true
}

func (Initial) BuildSnapshotQuery(id schema.TableID) (string, bool) {
	return buildSelectAll(id), true
}
