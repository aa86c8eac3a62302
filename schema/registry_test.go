package schema

import "testing"

func TestTypeRegistry_Replace(t *testing.T) {
	registry := NewTypeRegistry()
	registry.Replace([]Type{
		{OID: 23, Name: "int4", Category: "N", ArrayOID: 1007},
		{OID: 1007, Name: "_int4", Category: "A", ElementOID: 23},
	})

	if registry.Len() != 2 {
		t.Fatalf("expected 2 types, got %d", registry.Len())
	}

	typ, ok := registry.ByOID(1007)
	if !ok {
		t.Fatal("expected _int4 by oid")
	}
	if !typ.IsArray() {
		t.Error("expected _int4 to be an array type")
	}
	if typ.ElementOID != 23 {
		t.Errorf("expected element oid 23, got %d", typ.ElementOID)
	}

	typ, ok = registry.ByName("int4")
	if !ok {
		t.Fatal("expected int4 by name")
	}
	if typ.IsArray() {
		t.Error("expected int4 to be scalar")
	}

	// Replace swaps contents wholesale.
	registry.Replace([]Type{{OID: 25, Name: "text", Category: "S"}})
	if registry.Len() != 1 {
		t.Errorf("expected 1 type after replace, got %d", registry.Len())
	}
	if _, ok := registry.ByOID(23); ok {
		t.Error("expected int4 to be gone after replace")
	}
}
