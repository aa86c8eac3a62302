package snapshot

import (
	"github.com/google/uuid"

	"github.com/snapflowio/pgsnap/offset"
	"github.com/snapflowio/pgsnap/schema"
)

// Context is the mutable state populated in the course of one run.
type Context struct {
	CatalogName    string
	RunID          uuid.UUID
	CapturedTables []schema.TableID
	Offset         *offset.Context
}

func newContext(catalogName string) *Context {
	return &Context{
		CatalogName: catalogName,
		RunID:       uuid.New(),
	}
}
