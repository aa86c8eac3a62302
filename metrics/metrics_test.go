package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snapflowio/pgsnap/schema"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	// Go runtime metrics plus our own.
	if len(mfs) == 0 {
		t.Error("expected metrics to be registered, got none")
	}
}

func TestRegisterWith(t *testing.T) {
	reg := prometheus.NewRegistry()

	RegisterWith(reg)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expectedCount := 8
	if len(allMetrics) != expectedCount {
		t.Errorf("expected %d metrics in allMetrics, got %d", expectedCount, len(allMetrics))
	}
}

func TestMetricLabels(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{
			name: "SnapshotRunsTotal",
			fn: func() {
				SnapshotRunsTotal.WithLabelValues("orders-db", "completed").Inc()
			},
		},
		{
			name: "SnapshotInProgress",
			fn: func() {
				SnapshotInProgress.WithLabelValues("orders-db").Set(1)
			},
		},
		{
			name: "SnapshotTablesCaptured",
			fn: func() {
				SnapshotTablesCaptured.WithLabelValues("orders-db").Set(12)
			},
		},
		{
			name: "SnapshotTablesCompleted",
			fn: func() {
				SnapshotTablesCompleted.WithLabelValues("orders-db").Inc()
			},
		},
		{
			name: "SnapshotRowsTotal",
			fn: func() {
				SnapshotRowsTotal.WithLabelValues("orders-db", "public.users").Add(500)
			},
		},
		{
			name: "SnapshotDurationSeconds",
			fn: func() {
				SnapshotDurationSeconds.WithLabelValues("orders-db").Observe(42.5)
			},
		},
		{
			name: "OffsetSavesTotal",
			fn: func() {
				OffsetSavesTotal.WithLabelValues("orders-db", "success").Inc()
			},
		},
		{
			name: "OffsetLSN",
			fn: func() {
				OffsetLSN.WithLabelValues("orders-db").Set(23803720)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			tt.fn()
		})
	}
}

func TestListenerLifecycle(t *testing.T) {
	l := NewListener("listener-test")
	l.SnapshotStarted()

	if got := testutil.ToFloat64(SnapshotInProgress.WithLabelValues("listener-test")); got != 1 {
		t.Fatalf("in_progress after start = %v, want 1", got)
	}

	users := schema.TableID{Schema: "public", Name: "users"}
	l.TablesDetermined([]schema.TableID{users})
	l.TableScanCompleted(users, 250)
	l.SnapshotCompleted()

	if got := testutil.ToFloat64(SnapshotInProgress.WithLabelValues("listener-test")); got != 0 {
		t.Fatalf("in_progress after completion = %v, want 0", got)
	}
	if got := testutil.ToFloat64(SnapshotTablesCaptured.WithLabelValues("listener-test")); got != 1 {
		t.Fatalf("tables_captured = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SnapshotRowsTotal.WithLabelValues("listener-test", "public.users")); got != 250 {
		t.Fatalf("rows_total = %v, want 250", got)
	}
	if got := testutil.ToFloat64(SnapshotRunsTotal.WithLabelValues("listener-test", "completed")); got != 1 {
		t.Fatalf("completed runs = %v, want 1", got)
	}
}

func TestListenerAborted(t *testing.T) {
	l := NewListener("listener-abort-test")
	l.SnapshotStarted()
	l.SnapshotAborted()

	if got := testutil.ToFloat64(SnapshotRunsTotal.WithLabelValues("listener-abort-test", "aborted")); got != 1 {
		t.Fatalf("aborted runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SnapshotInProgress.WithLabelValues("listener-abort-test")); got != 0 {
		t.Fatalf("in_progress after abort = %v, want 0", got)
	}
}
