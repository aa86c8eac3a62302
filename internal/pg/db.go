package pg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/snapflowio/pgsnap/schema"
)

// RowFunc receives one streamed row. Field values are only valid for the
// duration of the call.
type RowFunc func(fields []pgconn.FieldDescription, values [][]byte) error

// DB provides the typed operations the snapshot phase needs. Every operation
// runs on the single underlying connection, so reads issued inside the open
// snapshot transaction observe the frozen view.
type DB struct {
	conn Connection
}

func NewDB(conn Connection) *DB {
	return &DB{conn: conn}
}

func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := NewConnection(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.conn.Close(ctx)
}

func (db *DB) execSQL(ctx context.Context, sql string) error {
	resultReader := db.conn.Exec(ctx, sql)
	_, err := resultReader.ReadAll()
	if err != nil {
		return err
	}

	return resultReader.Close()
}

func (db *DB) execQuery(ctx context.Context, query string) ([]*pgconn.Result, error) {
	resultReader := db.conn.Exec(ctx, query)
	results, err := resultReader.ReadAll()
	if err != nil {
		return nil, err
	}

	if err = resultReader.Close(); err != nil {
		return nil, err
	}

	return results, nil
}

// ExecuteWithoutCommitting runs statements in order on the snapshot
// connection, leaving any transaction they open or join uncommitted.
func (db *DB) ExecuteWithoutCommitting(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if err := db.execSQL(ctx, stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}

	return nil
}

func (db *DB) Commit(ctx context.Context) error {
	return db.execSQL(ctx, "COMMIT")
}

func (db *DB) Rollback(ctx context.Context) error {
	return db.execSQL(ctx, "ROLLBACK")
}

// CurrentXLogPos reads the live WAL write position.
func (db *DB) CurrentXLogPos(ctx context.Context) (LSN, error) {
	value, err := db.queryScalar(ctx, "SELECT pg_current_wal_lsn()")
	if err != nil {
		return 0, fmt.Errorf("current wal position: %w", err)
	}

	lsn, err := ParseLSN(value)
	if err != nil {
		return 0, fmt.Errorf("current wal position: %w", err)
	}

	return lsn, nil
}

// CurrentTransactionID reads the id of the open transaction, assigning one if
// the transaction has not been assigned an id yet.
func (db *DB) CurrentTransactionID(ctx context.Context) (XID, error) {
	value, err := db.queryScalar(ctx, "SELECT txid_current()")
	if err != nil {
		return 0, fmt.Errorf("current transaction id: %w", err)
	}

	xid, err := ParseXID(value)
	if err != nil {
		return 0, fmt.Errorf("current transaction id: %w", err)
	}

	return xid, nil
}

func (db *DB) queryScalar(ctx context.Context, query string) (string, error) {
	results, err := db.execQuery(ctx, query)
	if err != nil {
		return "", err
	}

	if len(results) == 0 || len(results[0].Rows) == 0 || len(results[0].Rows[0]) == 0 {
		return "", fmt.Errorf("no rows returned")
	}

	return string(results[0].Rows[0][0]), nil
}

// ReadTableNames lists tables in the catalog. Empty patterns match
// everything; types narrows by table type ("TABLE", "VIEW").
func (db *DB) ReadTableNames(ctx context.Context, catalog, schemaPattern, tablePattern string, types []string) ([]schema.TableID, error) {
	results, err := db.execQuery(ctx, readTableNamesQuery(catalog, schemaPattern, tablePattern, types))
	if err != nil {
		return nil, fmt.Errorf("read table names: %w", err)
	}

	var ids []schema.TableID
	for _, result := range results {
		for _, row := range result.Rows {
			if len(row) < 3 {
				continue
			}
			ids = append(ids, schema.TableID{
				Catalog: string(row[0]),
				Schema:  string(row[1]),
				Name:    string(row[2]),
			})
		}
	}

	return ids, nil
}

func readTableNamesQuery(catalog, schemaPattern, tablePattern string, types []string) string {
	var sb strings.Builder
	sb.WriteString("SELECT table_catalog, table_schema, table_name FROM information_schema.tables")

	var conds []string
	if catalog != "" {
		conds = append(conds, "table_catalog = "+QuoteLiteral(catalog))
	}
	if schemaPattern != "" {
		conds = append(conds, "table_schema = "+QuoteLiteral(schemaPattern))
	}
	if tablePattern != "" {
		conds = append(conds, "table_name = "+QuoteLiteral(tablePattern))
	}
	if len(types) > 0 {
		quoted := make([]string, 0, len(types))
		for _, t := range types {
			quoted = append(quoted, QuoteLiteral(tableTypeName(t)))
		}
		conds = append(conds, "table_type IN ("+strings.Join(quoted, ", ")+")")
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY table_schema, table_name")

	return sb.String()
}

func tableTypeName(t string) string {
	if t == "TABLE" {
		return "BASE TABLE"
	}

	return t
}

// readSchemaQuery accepts relkind 'p' alongside 'r' because
// information_schema reports declaratively partitioned parents as BASE TABLE,
// so they are valid captures and need structure like any ordinary table.
func readSchemaQuery(schemaName string) string {
	return fmt.Sprintf(`
		SELECT c.relname, a.attname, a.attnum, t.typname, a.atttypid, a.atttypmod,
		       NOT a.attnotnull, pg_get_expr(d.adbin, d.adrelid)
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
		JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
		LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = c.oid AND d.adnum = a.attnum
		WHERE n.nspname = %s AND c.relkind IN ('r', 'p') AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum
	`, QuoteLiteral(schemaName))
}

// ReadSchema reads the structure of every table in schemaName that passes
// filter into tables, replacing previous entries for the same table.
func (db *DB) ReadSchema(ctx context.Context, tables *schema.Tables, catalog, schemaName string, filter schema.TableFilter) error {
	results, err := db.execQuery(ctx, readSchemaQuery(schemaName))
	if err != nil {
		return fmt.Errorf("read schema %s: %w", schemaName, err)
	}

	byTable := make(map[schema.TableID][]schema.Column)
	var order []schema.TableID
	for _, result := range results {
		for _, row := range result.Rows {
			if len(row) < 8 {
				continue
			}

			id := schema.TableID{Catalog: catalog, Schema: schemaName, Name: string(row[0])}
			if !filter(id) {
				continue
			}

			position, _ := strconv.Atoi(string(row[2]))
			oid, _ := strconv.ParseUint(string(row[4]), 10, 32)
			modifier, _ := strconv.ParseInt(string(row[5]), 10, 32)

			col := schema.Column{
				Name:     string(row[1]),
				TypeName: string(row[3]),
				TypeOID:  uint32(oid),
				Modifier: int32(modifier),
				Position: position,
				Nullable: parseBoolText(row[6]),
			}
			if row[7] != nil {
				col.Default = string(row[7])
				col.HasDefault = true
			}

			if _, ok := byTable[id]; !ok {
				order = append(order, id)
			}
			byTable[id] = append(byTable[id], col)
		}
	}

	for _, id := range order {
		pk, err := db.primaryKeyColumns(ctx, id)
		if err != nil {
			return fmt.Errorf("read primary key %s: %w", id, err)
		}

		tables.Overwrite(&schema.Table{ID: id, Columns: byTable[id], PrimaryKey: pk})
	}

	return nil
}

func (db *DB) primaryKeyColumns(ctx context.Context, id schema.TableID) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = %s::regclass AND i.indisprimary
		ORDER BY a.attnum
	`, QuoteLiteral(QuoteQualified(id.Schema, id.Name)))

	results, err := db.execQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var columns []string
	for _, result := range results {
		for _, row := range result.Rows {
			if len(row) == 0 {
				continue
			}
			columns = append(columns, string(row[0]))
		}
	}

	return columns, nil
}

// ReadTypes loads the server type registry, excluding toast internals.
func (db *DB) ReadTypes(ctx context.Context) ([]schema.Type, error) {
	query := `
		SELECT t.oid, t.typname, t.typcategory, t.typelem, t.typarray
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname != 'pg_toast'
	`

	results, err := db.execQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read types: %w", err)
	}

	var types []schema.Type
	for _, result := range results {
		for _, row := range result.Rows {
			if len(row) < 5 {
				continue
			}

			oid, err := strconv.ParseUint(string(row[0]), 10, 32)
			if err != nil {
				continue
			}
			elem, _ := strconv.ParseUint(string(row[3]), 10, 32)
			arr, _ := strconv.ParseUint(string(row[4]), 10, 32)

			types = append(types, schema.Type{
				OID:        uint32(oid),
				Name:       string(row[1]),
				Category:   string(row[2]),
				ElementOID: uint32(elem),
				ArrayOID:   uint32(arr),
			})
		}
	}

	return types, nil
}

// StreamRows runs query through the streaming protocol, invoking fn once per
// row as it arrives.
func (db *DB) StreamRows(ctx context.Context, query string, fn RowFunc) (int64, error) {
	resultReader := db.conn.Query(ctx, query)

	var count int64
	for resultReader.NextRow() {
		count++
		if err := fn(resultReader.FieldDescriptions(), resultReader.Values()); err != nil {
			_, _ = resultReader.Close()
			return count, err
		}
	}

	if _, err := resultReader.Close(); err != nil {
		return count, err
	}

	return count, nil
}

func parseBoolText(value []byte) bool {
	s := string(value)
	return s == "t" || s == "true"
}

// QuoteQualified returns the double-quoted schema-qualified name of a table.
func QuoteQualified(schemaName, name string) string {
	return pq.QuoteIdentifier(schemaName) + "." + pq.QuoteIdentifier(name)
}
