package schema

import (
	"context"
	"fmt"
)

// MetadataReader supplies catalog metadata for refreshes.
type MetadataReader interface {
	ReadSchema(ctx context.Context, tables *Tables, catalog, schemaName string, filter TableFilter) error
	ReadTypes(ctx context.Context) ([]Type, error)
}

// Cache holds table structures and the type registry for the capture set.
// Refresh re-reads the type registry and every namespace already present so
// reads that follow observe a consistent view.
type Cache struct {
	catalog string
	filter  TableFilter
	tables  *Tables
	types   *TypeRegistry
}

func NewCache(catalog string, filter TableFilter) *Cache {
	return &Cache{
		catalog: catalog,
		filter:  filter,
		tables:  NewTables(),
		types:   NewTypeRegistry(),
	}
}

func (c *Cache) Tables() *Tables {
	return c.tables
}

func (c *Cache) Types() *TypeRegistry {
	return c.types
}

func (c *Cache) Refresh(ctx context.Context, reader MetadataReader) error {
	types, err := reader.ReadTypes(ctx)
	if err != nil {
		return fmt.Errorf("refresh type registry: %w", err)
	}
	c.types.Replace(types)

	for _, ns := range c.tables.Schemas() {
		if err := reader.ReadSchema(ctx, c.tables, c.catalog, ns, c.filter); err != nil {
			return fmt.Errorf("refresh schema %s: %w", ns, err)
		}
	}

	return nil
}
