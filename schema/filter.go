package schema

import "strings"

// TableFilter selects the tables to capture out of the candidate universe.
type TableFilter func(TableID) bool

// IsSystemSchema reports whether name belongs to the server rather than user
// data. System schemas are never captured.
func IsSystemSchema(name string) bool {
	return name == "information_schema" || strings.HasPrefix(name, "pg_")
}

// NewFilter builds a TableFilter from include and exclude lists of
// schema-qualified names ("schema.table"). An empty include list captures
// every non-system table; exclusions win over inclusions.
func NewFilter(include, exclude []string) TableFilter {
	inc := toSet(include)
	exc := toSet(exclude)

	return func(id TableID) bool {
		if IsSystemSchema(id.Schema) {
			return false
		}

		key := id.Schema + "." + id.Name
		if _, ok := exc[key]; ok {
			return false
		}

		if len(inc) == 0 {
			return true
		}

		_, ok := inc[key]
		return ok
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}

	return set
}
