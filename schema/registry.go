package schema

// Type is a pg_type row reduced to what value coercion needs.
type Type struct {
	OID        uint32
	Name       string
	Category   string
	ElementOID uint32
	ArrayOID   uint32
}

// IsArray reports whether the type is an array type (category "A").
func (t Type) IsArray() bool {
	return t.Category == "A"
}

// TypeRegistry maps engine type names and OIDs to semantic type descriptors.
// It is populated during schema refresh and read-only during value coercion.
type TypeRegistry struct {
	byOID  map[uint32]Type
	byName map[string]Type
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byOID:  make(map[uint32]Type),
		byName: make(map[string]Type),
	}
}

// Replace swaps the registry contents wholesale.
func (r *TypeRegistry) Replace(types []Type) {
	byOID := make(map[uint32]Type, len(types))
	byName := make(map[string]Type, len(types))
	for _, t := range types {
		byOID[t.OID] = t
		byName[t.Name] = t
	}

	r.byOID = byOID
	r.byName = byName
}

func (r *TypeRegistry) ByOID(oid uint32) (Type, bool) {
	t, ok := r.byOID[oid]
	return t, ok
}

func (r *TypeRegistry) ByName(name string) (Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *TypeRegistry) Len() int {
	return len(r.byOID)
}
