package format

import (
	"time"

	"github.com/snapflowio/pgsnap/schema"
)

type SchemaChangeType string

const (
	SchemaChangeCreate SchemaChangeType = "CREATE"
	SchemaChangeAlter  SchemaChangeType = "ALTER"
	SchemaChangeDrop   SchemaChangeType = "DROP"
)

// SchemaChange describes the structure of a captured table. Snapshot runs
// emit one CREATE change per captured table before any row is produced.
type SchemaChange struct {
	ServerTime time.Time
	Partition  map[string]string
	Offset     map[string]any
	Table      *schema.Table
	Database   string
	Schema     string
	Type       SchemaChangeType
	Snapshot   bool
}
