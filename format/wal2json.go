package format

import (
	"encoding/json"
	"fmt"

	"github.com/snapflowio/pgsnap/schema"
)

// ActionRead marks rows that were read from a consistent snapshot rather
// than decoded from the WAL.
const ActionRead = "R"

type WAL2JSONColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	TypeOID uint32 `json:"typeoid"`
	Value   any    `json:"value"`
}

type WAL2JSONPrimaryKey struct {
	Name string `json:"name"`
}

type WAL2JSONMessage struct {
	Action  string               `json:"action"`
	Schema  string               `json:"schema"`
	Table   string               `json:"table"`
	Columns []WAL2JSONColumn     `json:"columns"`
	PK      []WAL2JSONPrimaryKey `json:"pk"`
}

// ToMap converts WAL2JSONMessage to map[string]any for easy JSON marshaling
func (w *WAL2JSONMessage) ToMap() map[string]any {
	return map[string]any{
		"action":  w.Action,
		"schema":  w.Schema,
		"table":   w.Table,
		"columns": w.Columns,
		"pk":      w.PK,
	}
}

// ToJSON converts WAL2JSONMessage to JSON bytes
func (w *WAL2JSONMessage) ToJSON() ([]byte, error) {
	return json.Marshal(w.ToMap())
}

// BuildWAL2JSON builds a wal2json message for one row of a table. Column
// type names come from the table metadata, falling back to the type registry
// for columns whose name was not resolved.
func BuildWAL2JSON(action string, table *schema.Table, types *schema.TypeRegistry, data map[string]any) (*WAL2JSONMessage, error) {
	if table == nil {
		return nil, fmt.Errorf("table is nil")
	}

	pkColumns := make(map[string]struct{}, len(table.PrimaryKey))
	for _, name := range table.PrimaryKey {
		pkColumns[name] = struct{}{}
	}

	columns := make([]WAL2JSONColumn, 0, len(table.Columns))
	pk := make([]WAL2JSONPrimaryKey, 0)

	for _, col := range table.Columns {
		value := data[col.Name]

		// Convert []byte to string for better JSON compatibility
		if bytesVal, ok := value.([]byte); ok {
			value = string(bytesVal)
		}

		columns = append(columns, WAL2JSONColumn{
			Name:    col.Name,
			Type:    typeName(col, types),
			TypeOID: col.TypeOID,
			Value:   value,
		})

		if _, ok := pkColumns[col.Name]; ok {
			pk = append(pk, WAL2JSONPrimaryKey{Name: col.Name})
		}
	}

	return &WAL2JSONMessage{
		Action:  action,
		Schema:  table.ID.Schema,
		Table:   table.ID.Name,
		Columns: columns,
		PK:      pk,
	}, nil
}

func typeName(col schema.Column, types *schema.TypeRegistry) string {
	if col.TypeName != "" {
		return col.TypeName
	}

	if types != nil {
		if t, ok := types.ByOID(col.TypeOID); ok {
			return t.Name
		}
	}

	return "unknown"
}
