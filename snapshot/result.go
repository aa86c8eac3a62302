package snapshot

import "github.com/snapflowio/pgsnap/offset"

type Status string

const (
	// StatusCompleted means the run produced a consistent snapshot and an
	// offset streaming can resume from.
	StatusCompleted Status = "completed"
	// StatusSkipped means the configured policy asked for no snapshot.
	StatusSkipped Status = "skipped"
	// StatusAborted means the run stopped early. Nothing it produced should
	// be treated as a complete snapshot.
	StatusAborted Status = "aborted"
)

type Result struct {
	Status Status
	Offset *offset.Context
}
