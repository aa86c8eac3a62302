package value

import (
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/logger"
	"github.com/snapflowio/pgsnap/schema"
)

// Coercer turns the text wire form of a column into a Go value. A few types
// need special handling because their driver-level representation is lossy,
// everything else goes through the generic pgtype codecs. Types the registry
// does not know fall back to generic decoding as well.
type Coercer struct {
	types      *schema.TypeRegistry
	decoders   *decoderCache
	strategies map[uint32]func(data []byte) (any, error)
}

func NewCoercer(types *schema.TypeRegistry) *Coercer {
	c := &Coercer{
		types:    types,
		decoders: newDecoderCache(),
	}

	c.strategies = map[uint32]func(data []byte) (any, error){
		pg.OIDMoney:   c.coerceMoney,
		pg.OIDBit:     c.coerceString,
		pg.OIDVarbit:  c.coerceString,
		pg.OIDNumeric: c.coerceNumeric,
		pg.OIDTime:    c.coerceString,
		pg.OIDTimetz:  c.coerceString,
	}

	return c
}

// Coerce converts one column value. A nil input is SQL NULL and stays nil.
func (c *Coercer) Coerce(columnName string, oid uint32, data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}

	t, known := c.types.ByOID(oid)
	if !known {
		logger.Debug("[value] unknown type, decoding generically", "column", columnName, "oid", oid)
		return c.decoders.decode(oid, data)
	}

	if t.IsArray() {
		return c.decoders.decode(oid, data)
	}

	if strategy, ok := c.strategies[t.OID]; ok {
		value, err := strategy(data)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columnName, err)
		}
		return value, nil
	}

	return c.decoders.decode(oid, data)
}

func (c *Coercer) coerceString(data []byte) (any, error) {
	return string(data), nil
}

func (c *Coercer) coerceNumeric(data []byte) (any, error) {
	d, err := ParseDecimal(string(data))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *Coercer) coerceMoney(data []byte) (any, error) {
	d, err := ParseMoney(string(data))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// decoderCache resolves pgtype codecs by OID once and reuses them across
// rows. OIDs without a registered codec decode to plain strings.
type decoderCache struct {
	typeMap *pgtype.Map

	// Synchronization (always last)
	mu    sync.RWMutex
	cache map[uint32]*pgtype.Type
}

func newDecoderCache() *decoderCache {
	return &decoderCache{
		typeMap: pgtype.NewMap(),
		cache:   make(map[uint32]*pgtype.Type, 50),
	}
}

func (c *decoderCache) decode(oid uint32, data []byte) (any, error) {
	dt := c.lookup(oid)
	if dt == nil {
		return string(data), nil
	}

	return dt.Codec.DecodeValue(c.typeMap, oid, pgtype.TextFormatCode, data)
}

func (c *decoderCache) lookup(oid uint32) *pgtype.Type {
	c.mu.RLock()
	dt, exists := c.cache[oid]
	c.mu.RUnlock()

	if exists {
		return dt
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if dt, exists := c.cache[oid]; exists {
		return dt
	}

	dt, _ = c.typeMap.TypeForOID(oid)
	c.cache[oid] = dt

	return dt
}

func (c *decoderCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
