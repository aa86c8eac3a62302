package format

import (
	"encoding/json"
	"testing"

	"github.com/snapflowio/pgsnap/schema"
)

func testTable() *schema.Table {
	return &schema.Table{
		ID: schema.TableID{Schema: "public", Name: "users"},
		Columns: []schema.Column{
			{Name: "id", TypeName: "int4", TypeOID: 23, Position: 1},
			{Name: "name", TypeName: "text", TypeOID: 25, Position: 2},
			{Name: "balance", TypeName: "numeric", TypeOID: 1700, Position: 3},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestBuildWAL2JSON(t *testing.T) {
	msg, err := BuildWAL2JSON(ActionRead, testTable(), nil, map[string]any{
		"id":      int32(7),
		"name":    []byte("ada"),
		"balance": "10.50",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Action != "R" {
		t.Errorf("Action = %q, want R", msg.Action)
	}
	if msg.Schema != "public" || msg.Table != "users" {
		t.Errorf("target = %s.%s, want public.users", msg.Schema, msg.Table)
	}

	if len(msg.Columns) != 3 {
		t.Fatalf("got %d columns, want 3", len(msg.Columns))
	}
	if msg.Columns[1].Value != "ada" {
		t.Errorf("expected []byte value converted to string, got %T %v", msg.Columns[1].Value, msg.Columns[1].Value)
	}
	if msg.Columns[2].Type != "numeric" {
		t.Errorf("balance type = %q, want numeric", msg.Columns[2].Type)
	}

	if len(msg.PK) != 1 || msg.PK[0].Name != "id" {
		t.Errorf("PK = %v, want [{id}]", msg.PK)
	}
}

func TestBuildWAL2JSON_NilTable(t *testing.T) {
	if _, err := BuildWAL2JSON(ActionRead, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil table")
	}
}

func TestBuildWAL2JSON_TypeNameFallback(t *testing.T) {
	registry := schema.NewTypeRegistry()
	registry.Replace([]schema.Type{{OID: 3802, Name: "jsonb", Category: "U"}})

	table := &schema.Table{
		ID:      schema.TableID{Schema: "public", Name: "docs"},
		Columns: []schema.Column{{Name: "payload", TypeOID: 3802, Position: 1}},
	}

	msg, err := BuildWAL2JSON(ActionRead, table, registry, map[string]any{"payload": "{}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Columns[0].Type != "jsonb" {
		t.Errorf("type = %q, want jsonb from registry", msg.Columns[0].Type)
	}
}

func TestWAL2JSONMessageToJSON(t *testing.T) {
	msg, err := BuildWAL2JSON(ActionRead, testTable(), nil, map[string]any{
		"id":   int32(7),
		"name": "ada",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}

	if decoded["action"] != "R" {
		t.Errorf("action = %v, want R", decoded["action"])
	}
	if decoded["table"] != "users" {
		t.Errorf("table = %v, want users", decoded["table"])
	}
}
