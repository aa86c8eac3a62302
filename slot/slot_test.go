package slot

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDecodeCreationResult(t *testing.T) {
	result := &pgconn.Result{
		FieldDescriptions: []pgconn.FieldDescription{
			{Name: "slot_name"},
			{Name: "consistent_point"},
			{Name: "snapshot_name"},
			{Name: "output_plugin"},
		},
		Rows: [][][]byte{{
			[]byte("pgsnap_slot"),
			[]byte("2/3000170"),
			[]byte("00000003-00000002-1"),
			[]byte("pgoutput"),
		}},
	}

	res, err := decodeCreationResult(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Valid {
		t.Error("expected creation result to be valid")
	}
	if res.SlotName != "pgsnap_slot" {
		t.Errorf("slot name = %s", res.SlotName)
	}
	if res.ConsistentPoint.String() != "2/3000170" {
		t.Errorf("consistent point = %s", res.ConsistentPoint)
	}
	if res.SnapshotName != "00000003-00000002-1" {
		t.Errorf("snapshot name = %s", res.SnapshotName)
	}
	if res.OutputPlugin != "pgoutput" {
		t.Errorf("output plugin = %s", res.OutputPlugin)
	}
}

func TestDecodeCreationResult_BadConsistentPoint(t *testing.T) {
	result := &pgconn.Result{
		FieldDescriptions: []pgconn.FieldDescription{{Name: "consistent_point"}},
		Rows:              [][][]byte{{[]byte("nonsense")}},
	}

	if _, err := decodeCreationResult(result); err == nil {
		t.Fatal("expected error for unparseable consistent point")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Name: "pgsnap_slot_1"}, false},
		{"empty name", Config{}, true},
		{"uppercase rejected", Config{Name: "PgSnap"}, true},
		{"dash rejected", Config{Name: "pgsnap-slot"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestCreationError(t *testing.T) {
	err := creationError(errors.New("ERROR: permission denied to create replication slot"))
	if !strings.Contains(err.Error(), "REPLICATION privilege") {
		t.Errorf("expected privilege hint, got: %v", err)
	}

	err = creationError(errors.New("ERROR: logical decoding requires wal_level >= logical"))
	if !strings.Contains(err.Error(), "wal_level") {
		t.Errorf("expected wal_level hint, got: %v", err)
	}

	plain := errors.New("connection refused")
	err = creationError(plain)
	if !errors.Is(err, plain) {
		t.Error("expected plain errors to be wrapped")
	}
}
