package snapshot

import "fmt"

// Task says which parts of a run are wanted. When no data snapshot is wanted
// the schema snapshot is dropped with it, so both flags are false for runs
// that go straight to streaming.
type Task struct {
	SnapshotSchema bool
	SnapshotData   bool
}

// ShouldSkip reports whether there is nothing to do.
func (t Task) ShouldSkip() bool {
	return !t.SnapshotSchema && !t.SnapshotData
}

func (t Task) String() string {
	return fmt.Sprintf("snapshot task [schema=%t, data=%t]", t.SnapshotSchema, t.SnapshotData)
}
