package snapshotter

import (
	"time"

	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
)

// Always captures existing data on every start, then hands off to streaming.
type Always struct{}

func (Always) Name() string {
	return string(ModeAlways)
}

func (Always) ShouldSnapshot() bool {
	return true
}

func (Always) ShouldStream() bool {
	return true
}

func (Always) ExportSnapshot() bool {
	return false
}

func (Always) IsolationStatement(slot.CreationResult) string {
	return defaultIsolation
}

func (Always) LockStatement(timeout time.Duration, ids []schema.TableID) (string, bool) {
	return buildLockStatement(timeout, ids), true
}

func (Always) BuildSnapshotQuery(id schema.TableID) (string, bool) {
	return buildSelectAll(id), true
}
