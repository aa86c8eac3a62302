package format

import (
	"time"

	"github.com/snapflowio/pgsnap/internal/pg"
)

type SnapshotEventType string

const (
	SnapshotEventTypeBegin SnapshotEventType = "BEGIN"
	SnapshotEventTypeData  SnapshotEventType = "DATA"
	SnapshotEventTypeEnd   SnapshotEventType = "END"
)

// Snapshot is one event of a snapshot run. A run produces a single BEGIN,
// one DATA event per row and a single END. IsLast is set on the final DATA
// event so consumers know the offset that follows belongs to streaming.
type Snapshot struct {
	ServerTime time.Time
	Partition  map[string]string
	Offset     map[string]any
	Data       map[string]any
	WAL2JSON   *WAL2JSONMessage
	EventType  SnapshotEventType
	RunID      string
	Table      string
	Schema     string
	LSN        pg.LSN
	TxID       pg.XID
	TotalRows  int64
	IsLast     bool
}
