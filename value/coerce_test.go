package value

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/snapflowio/pgsnap/schema"
)

func testRegistry() *schema.TypeRegistry {
	r := schema.NewTypeRegistry()
	r.Replace([]schema.Type{
		{OID: 16, Name: "bool", Category: "B"},
		{OID: 23, Name: "int4", Category: "N", ArrayOID: 1007},
		{OID: 25, Name: "text", Category: "S", ArrayOID: 1009},
		{OID: 790, Name: "money", Category: "N"},
		{OID: 1007, Name: "_int4", Category: "A", ElementOID: 23},
		{OID: 1083, Name: "time", Category: "D"},
		{OID: 1266, Name: "timetz", Category: "D"},
		{OID: 1560, Name: "bit", Category: "V"},
		{OID: 1562, Name: "varbit", Category: "V"},
		{OID: 1700, Name: "numeric", Category: "N", ArrayOID: 1231},
	})
	return r
}

func TestCoerceNull(t *testing.T) {
	c := NewCoercer(testRegistry())

	got, err := c.Coerce("name", 25, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("NULL coerced to %v, want nil", got)
	}
}

func TestCoerceMoney(t *testing.T) {
	c := NewCoercer(testRegistry())

	got, err := c.Coerce("price", 790, []byte("$12.34"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, ok := got.(Decimal)
	if !ok {
		t.Fatalf("money coerced to %T, want Decimal", got)
	}
	if d.String() != "12.34" {
		t.Errorf("money = %s, want 12.34", d)
	}
}

func TestCoerceBitPreservesText(t *testing.T) {
	c := NewCoercer(testRegistry())

	for _, oid := range []uint32{1560, 1562} {
		got, err := c.Coerce("flags", oid, []byte("0010"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "0010" {
			t.Errorf("bit string coerced to %v (%T), want 0010 unchanged", got, got)
		}
	}
}

func TestCoerceNumeric(t *testing.T) {
	c := NewCoercer(testRegistry())

	got, err := c.Coerce("balance", 1700, []byte("10.50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := got.(Decimal)
	if !ok {
		t.Fatalf("numeric coerced to %T, want Decimal", got)
	}
	if d.Kind != DecimalExact || d.String() != "10.50" {
		t.Errorf("numeric = %s (kind %v), want exact 10.50", d, d.Kind)
	}

	got, err = c.Coerce("balance", 1700, []byte("NaN"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok = got.(Decimal)
	if !ok {
		t.Fatalf("NaN coerced to %T, want Decimal", got)
	}
	if d.Kind != DecimalNaN {
		t.Errorf("NaN kind = %v, want DecimalNaN", d.Kind)
	}
}

func TestCoerceTimePassthrough(t *testing.T) {
	c := NewCoercer(testRegistry())

	// 24:00:00 is a valid TIME value the generic codecs cannot represent.
	got, err := c.Coerce("closes_at", 1083, []byte("24:00:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "24:00:00" {
		t.Errorf("time coerced to %v, want 24:00:00 unchanged", got)
	}

	got, err = c.Coerce("closes_at", 1266, []byte("17:30:00.123456+02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "17:30:00.123456+02" {
		t.Errorf("timetz coerced to %v, want unchanged text", got)
	}
}

func TestCoerceArray(t *testing.T) {
	c := NewCoercer(testRegistry())

	got, err := c.Coerce("scores", 1007, []byte("{1,2,3}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := reflect.ValueOf(got)
	if v.Kind() != reflect.Slice {
		t.Fatalf("array coerced to %T, want a slice", got)
	}
	if v.Len() != 3 {
		t.Errorf("array length = %d, want 3", v.Len())
	}
	if s := fmt.Sprint(got); s != "[1 2 3]" {
		t.Errorf("array = %s, want [1 2 3]", s)
	}
}

func TestCoerceGenericDefault(t *testing.T) {
	c := NewCoercer(testRegistry())

	got, err := c.Coerce("id", 23, []byte("42"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int32(42) {
		t.Errorf("int4 coerced to %v (%T), want int32 42", got, got)
	}

	got, err = c.Coerce("active", 16, []byte("t"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != true {
		t.Errorf("bool coerced to %v, want true", got)
	}
}

func TestCoerceUnknownTypeFallsBack(t *testing.T) {
	c := NewCoercer(testRegistry())

	// OID absent from the registry and from the pgtype codecs.
	got, err := c.Coerce("custom", 999999, []byte("anything"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "anything" {
		t.Errorf("unknown type coerced to %v, want raw text", got)
	}
}

func TestDecoderCacheReuse(t *testing.T) {
	cache := newDecoderCache()

	for i := 0; i < 3; i++ {
		if _, err := cache.decode(23, []byte("7")); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if _, err := cache.decode(25, []byte("x")); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if cache.size() != 2 {
		t.Errorf("cache size = %d, want 2", cache.size())
	}
}
