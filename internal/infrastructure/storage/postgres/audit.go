// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used for a snapshot.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

var (
	_ audit.Writer = (*MovementLogRepo)(nil)
	_ audit.Reader = (*MovementLogRepo)(nil)
)

// movementLogRow is the stock_movement_logs row as stored.
type movementLogRow struct {
	entity.MovementLog
	SnapshotRaw        []byte          `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
}

// MovementLogRepo appends and reads the movement log.
// Snapshots above the threshold are stored zstd-compressed.
type MovementLogRepo struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes, default 10KB
}

// NewMovementLogRepo creates a movement log repository.
func NewMovementLogRepo(txManager *TxManager) (*MovementLogRepo, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &MovementLogRepo{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Append inserts one log row in the caller's transaction.
func (r *MovementLogRepo) Append(ctx context.Context, entry *entity.MovementLog) error {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}

	raw, compressed, algo := r.encodeSnapshot(entry.Snapshot)

	sql := `
		INSERT INTO stock_movement_logs (
			id, movement_id, action, before_qty, after_qty, profit, payment_method,
			changed_by, changed_by_name, changed_at,
			snapshot, snapshot_compressed, compression_algo
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.MovementID, entry.Action, entry.BeforeQty, entry.AfterQty,
		entry.Profit, entry.PaymentMethod,
		entry.ChangedBy, entry.ChangedByName, entry.ChangedAt,
		raw, compressed, algo,
	)
	if err != nil {
		return fmt.Errorf("insert movement log: %w", err)
	}
	return nil
}

// ListByMovement returns the log of one movement, newest first.
func (r *MovementLogRepo) ListByMovement(ctx context.Context, movementID id.ID) ([]entity.MovementLog, error) {
	sql := `
		SELECT id, movement_id, action, before_qty, after_qty, profit, payment_method,
			   changed_by, changed_by_name, changed_at,
			   snapshot, snapshot_compressed, compression_algo
		FROM stock_movement_logs
		WHERE movement_id = $1
		ORDER BY changed_at DESC, id DESC
	`

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, movementID)
	if err != nil {
		return nil, fmt.Errorf("query movement log: %w", err)
	}
	defer rows.Close()

	entries := []entity.MovementLog{}
	for rows.Next() {
		var row movementLogRow
		err := rows.Scan(
			&row.ID, &row.MovementID, &row.Action, &row.BeforeQty, &row.AfterQty,
			&row.Profit, &row.PaymentMethod,
			&row.ChangedBy, &row.ChangedByName, &row.ChangedAt,
			&row.SnapshotRaw, &row.SnapshotCompressed, &row.CompressionAlgo,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movement log: %w", err)
		}

		snapshot, err := r.decodeSnapshot(row.SnapshotRaw, row.SnapshotCompressed, row.CompressionAlgo)
		if err != nil {
			return nil, err
		}
		row.Snapshot = snapshot

		entries = append(entries, row.MovementLog)
	}

	return entries, rows.Err()
}

func (r *MovementLogRepo) encodeSnapshot(snapshot json.RawMessage) ([]byte, []byte, CompressionAlgo) {
	if len(snapshot) == 0 {
		return nil, nil, CompressionNone
	}
	if len(snapshot) > r.compressThreshold {
		return nil, r.encoder.EncodeAll(snapshot, nil), CompressionZstd
	}
	return snapshot, nil, CompressionNone
}

func (r *MovementLogRepo) decodeSnapshot(raw, compressed []byte, algo CompressionAlgo) (json.RawMessage, error) {
	switch algo {
	case CompressionZstd:
		if len(compressed) == 0 {
			return nil, nil
		}
		decompressed, err := r.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
		return decompressed, nil
	case CompressionNone, "":
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown snapshot compression %q", algo)
	}
}
