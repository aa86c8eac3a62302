package slot

import "github.com/snapflowio/pgsnap/internal/pg"

const (
	Logical  Type = "logical"
	Physical Type = "physical"
)

type Type string

type Info struct {
	Name              string `json:"name"`
	Type              Type   `json:"type"`
	WalStatus         string `json:"walStatus"`
	RestartLSN        pg.LSN `json:"restartLSN"`
	ConfirmedFlushLSN pg.LSN `json:"confirmedFlushLSN"`
	CurrentLSN        pg.LSN `json:"currentLSN"`
	RetainedWALSize   pg.LSN `json:"retainedWALSize"`
	Lag               pg.LSN `json:"lag"`
	ActivePID         int32  `json:"activePID"`
	Active            bool   `json:"active"`
}

// CreationResult carries what the server reported when the slot was created:
// the consistent point all later changes are ordered after, and the name of
// the exported snapshot that observes exactly that point. Valid is false when
// this run created no slot (pre-existing slot, or slotless snapshot).
type CreationResult struct {
	SlotName        string `json:"slotName"`
	ConsistentPoint pg.LSN `json:"consistentPoint"`
	SnapshotName    string `json:"snapshotName"`
	OutputPlugin    string `json:"outputPlugin"`
	Valid           bool   `json:"-"`
}
