package snapshotter

import (
	"time"

	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
)

// Never skips the snapshot phase entirely and streams from the current
// position.
type Never struct{}

func (Never) Name() string {
	return string(ModeNever)
}

func (Never) ShouldSnapshot() bool {
	return false
}

func (Never) ShouldStream() bool {
	return true
}

func (Never) ExportSnapshot() bool {
	return false
}

func (Never) IsolationStatement(slot.CreationResult) string {
	return defaultIsolation
}

func (Never) LockStatement(time.Duration, []schema.TableID) (string, bool) {
	return "", false
}

func (Never) BuildSnapshotQuery(schema.TableID) (string, bool) {
	return "", false
}
