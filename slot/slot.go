package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snapflowio/pgsnap/internal/pg"
	"github.com/snapflowio/pgsnap/logger"
)

var (
	ErrSlotNotExists = errors.New("slot does not exist")
	ErrSlotClosed    = errors.New("slot is closed")
)

var typeMap = pgtype.NewMap()

type Slot struct {
	// Configuration
	cfg       Config
	statusSQL string

	// Dependencies
	conn            pg.Connection
	replicationConn pg.Connection

	// Synchronization (always last)
	mu     sync.Mutex
	closed atomic.Bool
}

func NewSlot(replicationDSN, standardDSN string, cfg Config) *Slot {
	query := fmt.Sprintf("SELECT slot_name, slot_type, active, active_pid, restart_lsn, confirmed_flush_lsn, wal_status, PG_CURRENT_WAL_LSN() AS current_lsn FROM pg_replication_slots WHERE slot_name = '%s';", cfg.Name)

	return &Slot{
		cfg:             cfg,
		conn:            pg.NewConnectionTemplate(standardDSN),
		replicationConn: pg.NewConnectionTemplate(replicationDSN),
		statusSQL:       query,
	}
}

// Create creates the replication slot unless it already exists. The returned
// result is only valid when the slot was created in this call; a pre-existing
// slot yields an invalid result, since its exported snapshot is long gone.
func (s *Slot) Create(ctx context.Context) (CreationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Connect(ctx); err != nil {
		return CreationResult{}, fmt.Errorf("slot connect: %w", err)
	}

	defer func() {
		_ = s.conn.Close(ctx)
	}()

	info, err := s.infoLocked(ctx)
	if err != nil {
		if !errors.Is(err, ErrSlotNotExists) || !s.cfg.CreateIfNotExists {
			return CreationResult{}, fmt.Errorf("replication slot info: %w", err)
		}
	} else {
		logger.Warn("replication slot already exists", "name", info.Name)
		return CreationResult{}, nil
	}

	result, err := s.createSlotWithReplicationConn(ctx)
	if err != nil {
		return CreationResult{}, err
	}

	logger.Info("replication slot created",
		"name", result.SlotName,
		"consistentPoint", result.ConsistentPoint.String(),
		"snapshot", result.SnapshotName)

	return result, nil
}

func (s *Slot) createSlotWithReplicationConn(ctx context.Context) (CreationResult, error) {
	if err := s.replicationConn.Connect(ctx); err != nil {
		return CreationResult{}, fmt.Errorf("slot replication connect: %w", err)
	}

	temporary := ""
	if s.cfg.Temporary {
		temporary = "TEMPORARY "
	}

	sql := fmt.Sprintf("CREATE_REPLICATION_SLOT %s %sLOGICAL pgoutput", s.cfg.Name, temporary)
	resultReader := s.replicationConn.Exec(ctx, sql)
	results, err := resultReader.ReadAll()
	if err != nil {
		_ = resultReader.Close()
		s.closeReplicationConn(ctx)
		return CreationResult{}, creationError(err)
	}

	if err = resultReader.Close(); err != nil {
		s.closeReplicationConn(ctx)
		return CreationResult{}, fmt.Errorf("replication slot create result reader close: %w", err)
	}

	// A temporary slot lives only as long as the session that created it, so
	// the replication connection stays open until Close.
	if !s.cfg.Temporary {
		s.closeReplicationConn(ctx)
	}

	if len(results) == 0 || len(results[0].Rows) == 0 {
		return CreationResult{}, fmt.Errorf("replication slot create returned no rows")
	}

	return decodeCreationResult(results[0])
}

func (s *Slot) closeReplicationConn(ctx context.Context) {
	if !s.replicationConn.IsClosed() {
		_ = s.replicationConn.Close(ctx)
	}
}

func (s *Slot) Info(ctx context.Context) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSlotClosed
	}

	if err := s.conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("slot connect: %w", err)
	}

	return s.infoLocked(ctx)
}

func (s *Slot) infoLocked(ctx context.Context) (*Info, error) {
	resultReader := s.conn.Exec(ctx, s.statusSQL)
	results, err := resultReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("replication slot info result: %w", err)
	}

	if len(results) == 0 || results[0].CommandTag.String() == "SELECT 0" {
		return nil, ErrSlotNotExists
	}

	slotInfo, err := decodeSlotInfoResult(results[0])
	if err != nil {
		return nil, fmt.Errorf("replication slot info result decode: %w", err)
	}

	if slotInfo.Type != Logical {
		return nil, fmt.Errorf("'%s' replication slot must be logical but it is %s", slotInfo.Name, slotInfo.Type)
	}

	return slotInfo, nil
}

func (s *Slot) Close(ctx context.Context) {
	s.closed.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsClosed() {
		_ = s.conn.Close(ctx)
	}
	s.closeReplicationConn(ctx)
}

func creationError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission denied") {
		return fmt.Errorf("replication slot create requires the REPLICATION privilege. Run: ALTER USER your_user WITH REPLICATION")
	}

	if strings.Contains(msg, "wal_level") {
		return fmt.Errorf("replication slot create requires wal_level='logical'. Set in postgresql.conf and restart")
	}

	return fmt.Errorf("replication slot create: %w", err)
}

func decodeCreationResult(result *pgconn.Result) (CreationResult, error) {
	res := CreationResult{Valid: true}
	for i, fd := range result.FieldDescriptions {
		if i >= len(result.Rows[0]) {
			break
		}

		value := result.Rows[0][i]
		if value == nil {
			continue
		}

		switch fd.Name {
		case "slot_name":
			res.SlotName = string(value)
		case "consistent_point":
			lsn, err := pg.ParseLSN(string(value))
			if err != nil {
				return CreationResult{}, fmt.Errorf("consistent point parse: %w", err)
			}
			res.ConsistentPoint = lsn
		case "snapshot_name":
			res.SnapshotName = string(value)
		case "output_plugin":
			res.OutputPlugin = string(value)
		}
	}

	return res, nil
}

func decodeSlotInfoResult(result *pgconn.Result) (*Info, error) {
	var slotInfo Info
	for i, fd := range result.FieldDescriptions {
		v, err := decodeTextColumnData(result.Rows[0][i], fd.DataTypeOID)
		if err != nil {
			return nil, err
		}

		if v == nil {
			continue
		}

		switch fd.Name {
		case "slot_name":
			slotInfo.Name = v.(string)
		case "slot_type":
			slotInfo.Type = Type(v.(string))
		case "active":
			slotInfo.Active = v.(bool)
		case "active_pid":
			slotInfo.ActivePID = v.(int32)
		case "restart_lsn":
			slotInfo.RestartLSN, _ = pg.ParseLSN(v.(string))
		case "confirmed_flush_lsn":
			slotInfo.ConfirmedFlushLSN, _ = pg.ParseLSN(v.(string))
		case "wal_status":
			slotInfo.WalStatus = v.(string)
		case "current_lsn":
			slotInfo.CurrentLSN, _ = pg.ParseLSN(v.(string))
		}
	}

	slotInfo.RetainedWALSize = slotInfo.CurrentLSN - slotInfo.RestartLSN
	slotInfo.Lag = slotInfo.CurrentLSN - slotInfo.ConfirmedFlushLSN

	return &slotInfo, nil
}

func decodeTextColumnData(data []byte, dataType uint32) (any, error) {
	if dt, ok := typeMap.TypeForOID(dataType); ok {
		return dt.Codec.DecodeValue(typeMap, dataType, pgtype.TextFormatCode, data)
	}

	return string(data), nil
}
