package offset

import (
	"context"
	"fmt"
	"time"

	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/logger"
)

// Map keys published alongside every change event. Consumers use them to
// resume streaming from the position a snapshot established.
const (
	KeyLSN                = "lsn"
	KeyTxID               = "txId"
	KeyTimestampUsec      = "ts_usec"
	KeyXmin               = "xmin"
	KeySnapshot           = "snapshot"
	KeyLastSnapshotRecord = "last_snapshot_record"

	partitionServerKey = "server"
)

// PositionReader provides the server positions an initial offset is seeded
// from. It must be backed by the transaction whose view the offset describes.
type PositionReader interface {
	CurrentXLogPos(ctx context.Context) (pg.LSN, error)
	CurrentTransactionID(ctx context.Context) (pg.XID, error)
}

// Context tracks the WAL position a capture run has reached for one logical
// server. During a snapshot it additionally carries markers telling consumers
// that records belong to the snapshot rather than the stream.
type Context struct {
	serverName string
	runID      string

	lsn       pg.LSN
	txID      pg.XID
	timestamp time.Time

	// xmin is only maintained by streaming xmin recovery. Snapshot runs carry
	// it through unchanged.
	xmin      pg.XID
	xminValid bool

	inSnapshot         bool
	lastSnapshotRecord bool
}

func New(serverName string) *Context {
	return &Context{serverName: serverName}
}

// Initial seeds a new offset from the positions visible to the reader's open
// transaction.
func Initial(ctx context.Context, reader PositionReader, serverName string, now time.Time) (*Context, error) {
	lsn, err := reader.CurrentXLogPos(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current wal position: %w", err)
	}

	txID, err := reader.CurrentTransactionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current transaction id: %w", err)
	}

	logger.Debug("[offset] initial context", "server", serverName, "lsn", lsn, "txID", txID)

	c := New(serverName)
	c.UpdateWALPosition(lsn, txID, now)
	return c, nil
}

func (c *Context) ServerName() string {
	return c.serverName
}

func (c *Context) LSN() pg.LSN {
	return c.lsn
}

func (c *Context) TxID() pg.XID {
	return c.txID
}

func (c *Context) Timestamp() time.Time {
	return c.timestamp
}

// Xmin reports the xmin horizon and whether one is being tracked.
func (c *Context) Xmin() (pg.XID, bool) {
	return c.xmin, c.xminValid
}

func (c *Context) SetXmin(xmin pg.XID) {
	c.xmin = xmin
	c.xminValid = true
}

func (c *Context) ClearXmin() {
	c.xmin = 0
	c.xminValid = false
}

func (c *Context) RunID() string {
	return c.runID
}

func (c *Context) SetRunID(runID string) {
	c.runID = runID
}

// UpdateWALPosition moves the offset to a new position. The xmin horizon is
// deliberately left alone so a snapshot cannot clobber a value the streaming
// side is maintaining.
func (c *Context) UpdateWALPosition(lsn pg.LSN, txID pg.XID, ts time.Time) {
	c.lsn = lsn
	c.txID = txID
	c.timestamp = ts
}

// PreSnapshotStart marks all following records as snapshot records.
func (c *Context) PreSnapshotStart() {
	c.inSnapshot = true
	c.lastSnapshotRecord = false
}

// MarkLastSnapshotRecord flags the record about to be produced as the final
// one of the snapshot.
func (c *Context) MarkLastSnapshotRecord() {
	c.lastSnapshotRecord = true
}

// PostSnapshotCompletion clears the snapshot marker once the run has finished.
func (c *Context) PostSnapshotCompletion() {
	c.inSnapshot = false
}

func (c *Context) InSnapshot() bool {
	return c.inSnapshot
}

func (c *Context) IsLastSnapshotRecord() bool {
	return c.inSnapshot && c.lastSnapshotRecord
}

// Partition identifies the logical server this offset belongs to.
func (c *Context) Partition() map[string]string {
	return map[string]string{partitionServerKey: c.serverName}
}

// Offset renders the position as the key set published with change events.
// The xmin key is only present when a horizon is tracked, and the snapshot
// keys only while a snapshot is in progress.
func (c *Context) Offset() map[string]any {
	m := map[string]any{
		KeyLSN:           uint64(c.lsn),
		KeyTxID:          uint64(c.txID),
		KeyTimestampUsec: c.timestamp.UnixMicro(),
	}

	if c.xminValid {
		m[KeyXmin] = uint64(c.xmin)
	}

	if c.inSnapshot {
		m[KeySnapshot] = true
		m[KeyLastSnapshotRecord] = c.lastSnapshotRecord
	}

	return m
}

// Copy returns an independent copy of the offset.
func (c *Context) Copy() *Context {
	clone := *c
	return &clone
}
