package offset

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/snapflowio/pgsnap/internal/pg"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if loaded, err := store.Load(ctx, "orders-db"); err != nil || loaded != nil {
		t.Fatalf("Load on empty store = (%v, %v), want (nil, nil)", loaded, err)
	}

	c := New("orders-db")
	c.UpdateWALPosition(pg.LSN(0x16B3748), pg.XID(565), time.Now())
	if err := store.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the saved offset must not affect the stored copy.
	c.UpdateWALPosition(pg.LSN(0xFFFF), pg.XID(999), time.Now())

	loaded, err := store.Load(ctx, "orders-db")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for a saved offset")
	}
	if loaded.LSN() != pg.LSN(0x16B3748) {
		t.Errorf("loaded LSN = %s, want %s", loaded.LSN(), pg.LSN(0x16B3748))
	}
	if loaded.TxID() != pg.XID(565) {
		t.Errorf("loaded TxID = %d, want 565", loaded.TxID())
	}
}

func TestBuildSaveQuery(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	c := New("orders-db")
	c.UpdateWALPosition(pg.LSN(0x16B3748), pg.XID(565), ts)
	c.SetRunID("1b4e28ba-2fa1-11d2-883f-0016d3cca427")

	query := buildSaveQuery(c, ts)

	for _, want := range []string{
		"INSERT INTO pgsnap_offsets",
		"'orders-db'",
		"'0/16B3748'",
		"565",
		"ON CONFLICT (server_name) DO UPDATE",
		"'1b4e28ba-2fa1-11d2-883f-0016d3cca427'",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q:\n%s", want, query)
		}
	}

	if !strings.Contains(query, "NULL") {
		t.Errorf("expected NULL xmin for an untracked horizon:\n%s", query)
	}
}

func TestDecodeOffsetRow(t *testing.T) {
	row := [][]byte{
		[]byte("0/16B3748"),
		[]byte("565"),
		[]byte("801"),
		[]byte("1741944600000000"),
		[]byte("t"),
		[]byte("f"),
		[]byte("1b4e28ba-2fa1-11d2-883f-0016d3cca427"),
	}

	c, err := decodeOffsetRow("orders-db", row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.LSN() != pg.LSN(0x16B3748) {
		t.Errorf("LSN = %s, want 0/16B3748", c.LSN())
	}
	if c.TxID() != pg.XID(565) {
		t.Errorf("TxID = %d, want 565", c.TxID())
	}
	if xmin, ok := c.Xmin(); !ok || xmin != pg.XID(801) {
		t.Errorf("Xmin = (%d, %v), want (801, true)", xmin, ok)
	}
	if !c.InSnapshot() {
		t.Error("expected in-snapshot marker restored")
	}
	if c.IsLastSnapshotRecord() {
		t.Error("unexpected last snapshot record marker")
	}
	if c.RunID() != "1b4e28ba-2fa1-11d2-883f-0016d3cca427" {
		t.Errorf("RunID = %q", c.RunID())
	}
}

func TestDecodeOffsetRow_NullXmin(t *testing.T) {
	row := [][]byte{
		[]byte("0/16B3748"),
		[]byte("565"),
		nil,
		[]byte("1741944600000000"),
		[]byte("f"),
		[]byte("f"),
		nil,
	}

	c, err := decodeOffsetRow("orders-db", row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := c.Xmin(); ok {
		t.Error("expected no xmin for NULL column")
	}
	if c.InSnapshot() {
		t.Error("unexpected snapshot marker")
	}
}

func TestDecodeOffsetRow_BadLSN(t *testing.T) {
	row := [][]byte{
		[]byte("garbage"),
		[]byte("565"),
		nil,
		[]byte("1741944600000000"),
		[]byte("f"),
		[]byte("f"),
		nil,
	}

	if _, err := decodeOffsetRow("orders-db", row); err == nil {
		t.Fatal("expected error for malformed lsn")
	}
}
