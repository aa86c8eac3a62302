package pg

import (
	"strings"
	"testing"
)

// Enumeration goes through information_schema, which reports a declaratively
// partitioned parent as BASE TABLE. The structure read must accept relkind
// 'p' alongside 'r', or a captured parent would be enumerated and then turn
// up missing from metadata.
func TestTableQueriesAgreeOnPartitionedTables(t *testing.T) {
	names := readTableNamesQuery("appdb", "", "", []string{"TABLE"})
	if !strings.Contains(names, "table_type IN ('BASE TABLE')") {
		t.Fatalf("names query = %s, want a BASE TABLE filter", names)
	}

	structure := readSchemaQuery("public")
	if !strings.Contains(structure, "c.relkind IN ('r', 'p')") {
		t.Fatalf("structure query = %s, want ordinary and partitioned relkinds", structure)
	}
}

func TestReadTableNamesQuery(t *testing.T) {
	q := readTableNamesQuery("appdb", "public", "users", []string{"TABLE", "VIEW"})
	for _, want := range []string{
		"table_catalog = 'appdb'",
		"table_schema = 'public'",
		"table_name = 'users'",
		"table_type IN ('BASE TABLE', 'VIEW')",
		"ORDER BY table_schema, table_name",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query = %s, missing %q", q, want)
		}
	}

	if unfiltered := readTableNamesQuery("", "", "", nil); strings.Contains(unfiltered, "WHERE") {
		t.Errorf("query = %s, want no conditions", unfiltered)
	}
}

func TestReadSchemaQueryQuotesSchemaName(t *testing.T) {
	q := readSchemaQuery("od'd")
	if !strings.Contains(q, "n.nspname = 'od''d'") {
		t.Fatalf("query = %s, want quoted schema literal", q)
	}
}
