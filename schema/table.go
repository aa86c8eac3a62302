package schema

import "sort"

// TableID is a qualified table identifier. Values are compared as-is, so
// callers normalize case and schema before constructing one.
type TableID struct {
	Catalog string
	Schema  string
	Name    string
}

func (t TableID) String() string {
	return t.Schema + "." + t.Name
}

type Column struct {
	Name       string
	TypeName   string
	TypeOID    uint32
	Modifier   int32
	Position   int
	Nullable   bool
	Default    string
	HasDefault bool
}

type Table struct {
	ID         TableID
	Columns    []Column
	PrimaryKey []string
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}

	return Column{}, false
}

// Tables is the mutable metadata container populated by structure reads.
type Tables struct {
	m map[TableID]*Table
}

func NewTables() *Tables {
	return &Tables{m: make(map[TableID]*Table)}
}

// Overwrite stores t, replacing any previous structure for the same id.
func (ts *Tables) Overwrite(t *Table) {
	ts.m[t.ID] = t
}

func (ts *Tables) Get(id TableID) (*Table, bool) {
	t, ok := ts.m[id]
	return t, ok
}

func (ts *Tables) Len() int {
	return len(ts.m)
}

func (ts *Tables) IDs() []TableID {
	ids := make([]TableID, 0, len(ts.m))
	for id := range ts.m {
		ids = append(ids, id)
	}
	SortTableIDs(ids)

	return ids
}

// Schemas returns the distinct schema names present, sorted.
func (ts *Tables) Schemas() []string {
	ids := make([]TableID, 0, len(ts.m))
	for id := range ts.m {
		ids = append(ids, id)
	}

	return DistinctSchemas(ids)
}

func SortTableIDs(ids []TableID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Schema != ids[j].Schema {
			return ids[i].Schema < ids[j].Schema
		}
		return ids[i].Name < ids[j].Name
	})
}

// DistinctSchemas returns the distinct schema names among ids, sorted.
func DistinctSchemas(ids []TableID) []string {
	seen := make(map[string]struct{}, len(ids))
	schemas := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id.Schema]; ok {
			continue
		}
		seen[id.Schema] = struct{}{}
		schemas = append(schemas, id.Schema)
	}
	sort.Strings(schemas)

	return schemas
}
