package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Connection is a thin wrapper over pgconn giving the rest of the module a
// single surface for simple-protocol execution and streaming row reads.
type Connection interface {
	Connect(ctx context.Context) error
	Exec(ctx context.Context, sql string) *pgconn.MultiResultReader
	Query(ctx context.Context, sql string) *pgconn.ResultReader
	IsClosed() bool
	Close(ctx context.Context) error
}

type connection struct {
	conn *pgconn.PgConn
	dsn  string
}

// NewConnection connects immediately and returns the established connection.
func NewConnection(ctx context.Context, dsn string) (Connection, error) {
	c := &connection{dsn: dsn}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// NewConnectionTemplate returns an unconnected connection bound to dsn.
// Connect must be called before use.
func NewConnectionTemplate(dsn string) Connection {
	return &connection{dsn: dsn}
}

func (c *connection) Connect(ctx context.Context) error {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := pgconn.Connect(ctx, c.dsn)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}

	c.conn = conn
	return nil
}

func (c *connection) Exec(ctx context.Context, sql string) *pgconn.MultiResultReader {
	return c.conn.Exec(ctx, sql)
}

// Query runs sql through the extended protocol so results stream row by row
// in text format instead of being buffered.
func (c *connection) Query(ctx context.Context, sql string) *pgconn.ResultReader {
	return c.conn.ExecParams(ctx, sql, nil, nil, nil, nil)
}

func (c *connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

func (c *connection) Close(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}

	return c.conn.Close(ctx)
}
