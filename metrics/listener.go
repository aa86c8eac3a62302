package metrics

import (
	"time"

	"github.com/snapflowio/pgsnap/schema"
)

// Listener publishes snapshot progress to the pgsnap metrics. It implements
// the snapshot progress listener interface and expects the same inline,
// single-goroutine delivery.
type Listener struct {
	serverName string
	started    time.Time
}

func NewListener(serverName string) *Listener {
	return &Listener{serverName: serverName}
}

func (l *Listener) SnapshotStarted() {
	l.started = time.Now()
	SnapshotInProgress.WithLabelValues(l.serverName).Set(1)
}

func (l *Listener) TablesDetermined(ids []schema.TableID) {
	SnapshotTablesCaptured.WithLabelValues(l.serverName).Set(float64(len(ids)))
}

func (l *Listener) TableScanCompleted(id schema.TableID, rows int64) {
	SnapshotTablesCompleted.WithLabelValues(l.serverName).Inc()
	SnapshotRowsTotal.WithLabelValues(l.serverName, id.String()).Add(float64(rows))
}

func (l *Listener) SnapshotCompleted() {
	SnapshotInProgress.WithLabelValues(l.serverName).Set(0)
	SnapshotRunsTotal.WithLabelValues(l.serverName, "completed").Inc()
	SnapshotDurationSeconds.WithLabelValues(l.serverName).Observe(time.Since(l.started).Seconds())
}

func (l *Listener) SnapshotAborted() {
	SnapshotInProgress.WithLabelValues(l.serverName).Set(0)
	SnapshotRunsTotal.WithLabelValues(l.serverName, "aborted").Inc()
}
