package snapshotter

import (
	"fmt"
	"time"

	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
)

// Exported ties the snapshot consistency point to the replication slot
// created for this run: the frozen view imports the snapshot the server
// exported at slot creation, so no locking is needed and the handoff
// position is the slot's consistent point.
type Exported struct {
	OffsetExists bool
}

func (Exported) Name() string {
	return string(ModeExported)
}

func (s Exported) ShouldSnapshot() bool {
	return !s.OffsetExists
}

func (Exported) ShouldStream() bool {
	return true
}

func (Exported) ExportSnapshot() bool {
	return true
}

// IsolationStatement imports the exported snapshot when one is available.
// Without a creation result (pre-existing slot) it falls back to the
// strictest isolation a fresh transaction can get.
func (Exported) IsolationStatement(slotCreated slot.CreationResult) string {
	if slotCreated.Valid && slotCreated.SnapshotName != "" {
		return fmt.Sprintf("BEGIN TRANSACTION ISOLATION LEVEL REPEATABLE READ; SET TRANSACTION SNAPSHOT '%s'", slotCreated.SnapshotName)
	}

	return defaultIsolation
}

func (Exported) LockStatement(time.Duration, []schema.TableID) (string, bool) {
	return "", false
}

func (Exported) BuildSnapshotQuery(id schema.TableID) (string, bool) {
	return buildSelectAll(id), true
}
