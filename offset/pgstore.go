package offset

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/logger"
)

const (
	offsetsTableName = "pgsnap_offsets"

	postgresTimestampFormat = "2006-01-02 15:04:05"
)

// PGStore persists offsets in a metadata table on a Postgres database, so a
// restarted connector can resume without external offset storage. The table
// is created on first use.
type PGStore struct {
	conn pg.Connection
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	conn, err := pg.NewConnection(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect offset store: %w", err)
	}

	s := &PGStore{conn: conn}
	if err := s.initTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}

	return s, nil
}

func (s *PGStore) Load(ctx context.Context, serverName string) (*Context, error) {
	var loaded *Context

	err := s.retryOperation(ctx, "load", func() error {
		query := fmt.Sprintf(`
			SELECT lsn, tx_id, xmin, ts_usec, in_snapshot, last_snapshot_record, run_id
			FROM %s WHERE server_name = %s
		`, offsetsTableName, pg.QuoteLiteral(serverName))

		results, err := s.execQuery(ctx, query)
		if err != nil {
			return fmt.Errorf("load offset: %w", err)
		}

		if len(results) == 0 || len(results[0].Rows) == 0 {
			loaded = nil
			return nil
		}

		loaded, err = decodeOffsetRow(serverName, results[0].Rows[0])
		if err != nil {
			return retry.Unrecoverable(err)
		}

		return nil
	})

	return loaded, err
}

func (s *PGStore) Save(ctx context.Context, offset *Context) error {
	return s.retryOperation(ctx, "save", func() error {
		if err := s.execSQL(ctx, buildSaveQuery(offset, time.Now().UTC())); err != nil {
			return fmt.Errorf("save offset: %w", err)
		}

		logger.Debug("[offset] saved",
			"server", offset.ServerName(),
			"lsn", offset.LSN(),
			"txID", offset.TxID())
		return nil
	})
}

func (s *PGStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *PGStore) initTable(ctx context.Context) error {
	exists, err := s.tableExists(ctx, offsetsTableName)
	if err != nil {
		return fmt.Errorf("check offsets table existence: %w", err)
	}

	if exists {
		logger.Debug("[offset] offsets table already exists, skipping creation")
		return nil
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE %s (
			server_name TEXT PRIMARY KEY,
			lsn TEXT NOT NULL,
			tx_id BIGINT NOT NULL,
			xmin BIGINT,
			ts_usec BIGINT NOT NULL,
			in_snapshot BOOLEAN DEFAULT FALSE,
			last_snapshot_record BOOLEAN DEFAULT FALSE,
			run_id TEXT,
			updated_at TIMESTAMP NOT NULL
		)
	`, offsetsTableName)

	if err := s.execSQL(ctx, createSQL); err != nil {
		return fmt.Errorf("create offsets table: %w", err)
	}

	logger.Debug("[offset] offsets table created")
	return nil
}

func (s *PGStore) tableExists(ctx context.Context, tableName string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = '%s'
		)
	`, tableName)

	results, err := s.execQuery(ctx, query)
	if err != nil {
		return false, fmt.Errorf("query table existence: %w", err)
	}

	if len(results) == 0 || len(results[0].Rows) == 0 || len(results[0].Rows[0]) == 0 {
		return false, fmt.Errorf("no result returned from table existence check")
	}

	return string(results[0].Rows[0][0]) == "t", nil
}

func (s *PGStore) execSQL(ctx context.Context, sql string) error {
	resultReader := s.conn.Exec(ctx, sql)
	if _, err := resultReader.ReadAll(); err != nil {
		return err
	}

	return resultReader.Close()
}

func (s *PGStore) execQuery(ctx context.Context, query string) ([]*pgconn.Result, error) {
	resultReader := s.conn.Exec(ctx, query)
	results, err := resultReader.ReadAll()
	if err != nil {
		return nil, err
	}

	if err = resultReader.Close(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *PGStore) retryOperation(ctx context.Context, name string, op func() error) error {
	return retry.Do(
		func() error {
			err := op()
			if err == nil {
				return nil
			}
			if pg.IsTransientError(err) {
				return err
			}
			return retry.Unrecoverable(err)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("[offset] retrying store operation", "operation", name, "attempt", n+1, "error", err)
		}),
	)
}

func buildSaveQuery(offset *Context, now time.Time) string {
	xmin := "NULL"
	if v, ok := offset.Xmin(); ok {
		xmin = strconv.FormatUint(uint64(v), 10)
	}

	runID := "NULL"
	if offset.RunID() != "" {
		runID = pg.QuoteLiteral(offset.RunID())
	}

	return fmt.Sprintf(`
		INSERT INTO %s (
			server_name, lsn, tx_id, xmin, ts_usec,
			in_snapshot, last_snapshot_record, run_id, updated_at
		) VALUES (%s, '%s', %d, %s, %d, %t, %t, %s, '%s')
		ON CONFLICT (server_name) DO UPDATE SET
			lsn = EXCLUDED.lsn,
			tx_id = EXCLUDED.tx_id,
			xmin = EXCLUDED.xmin,
			ts_usec = EXCLUDED.ts_usec,
			in_snapshot = EXCLUDED.in_snapshot,
			last_snapshot_record = EXCLUDED.last_snapshot_record,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at
	`, offsetsTableName,
		pg.QuoteLiteral(offset.ServerName()),
		offset.LSN().String(),
		uint64(offset.TxID()),
		xmin,
		offset.Timestamp().UnixMicro(),
		offset.InSnapshot(),
		offset.IsLastSnapshotRecord(),
		runID,
		now.Format(postgresTimestampFormat),
	)
}

func decodeOffsetRow(serverName string, row [][]byte) (*Context, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("invalid offset row")
	}

	lsn, err := pg.ParseLSN(string(row[0]))
	if err != nil {
		return nil, fmt.Errorf("parse stored lsn: %w", err)
	}

	txID, err := pg.ParseXID(string(row[1]))
	if err != nil {
		return nil, fmt.Errorf("parse stored transaction id: %w", err)
	}

	tsUsec, err := strconv.ParseInt(string(row[3]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse stored timestamp: %w", err)
	}

	c := New(serverName)
	c.UpdateWALPosition(lsn, txID, time.UnixMicro(tsUsec).UTC())

	if len(row[2]) > 0 {
		xmin, err := pg.ParseXID(string(row[2]))
		if err != nil {
			return nil, fmt.Errorf("parse stored xmin: %w", err)
		}
		c.SetXmin(xmin)
	}

	if parseBool(row[4]) {
		c.PreSnapshotStart()
		if parseBool(row[5]) {
			c.MarkLastSnapshotRecord()
		}
	}

	if len(row) > 6 && len(row[6]) > 0 {
		c.SetRunID(string(row[6]))
	}

	return c, nil
}

func parseBool(value []byte) bool {
	s := string(value)
	return s == "t" || s == "true"
}
