package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"retailstock/internal/core/apperror"
	"retailstock/internal/infrastructure/idempotency"
)

var (
	_ idempotency.Store   = (*IdempotencyStore)(nil)
	_ idempotency.Cleaner = (*IdempotencyStore)(nil)
)

// IdempotencyRecord stores the result of an idempotent operation.
type IdempotencyRecord struct {
	Key         string             `db:"idempotency_key"`
	UserID      string             `db:"user_id"`
	Operation   string             `db:"operation"`
	Status      idempotency.Status `db:"status"`
	RequestHash string             `db:"request_hash"`
	Response    []byte             `db:"response"`
	StatusCode  int                `db:"response_status"`
	ContentType string             `db:"response_content_type"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
	ExpiresAt   time.Time          `db:"expires_at"`
}

// IdempotencyStore keeps idempotency keys in sys_idempotency, one row per
// (user_id, idempotency_key).
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager: txManager,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	now := s.now()
	q := s.txManager.GetQuerier(ctx)

	// Expired keys are free again.
	if _, err := q.Exec(ctx, `DELETE FROM sys_idempotency WHERE user_id = $1 AND idempotency_key = $2 AND expires_at < $3`, req.UserID, req.Key, now); err != nil {
		return nil, fmt.Errorf("expire idempotency key: %w", err)
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`, req.Key, req.UserID, req.Operation, idempotency.StatusPending, req.RequestHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	var record IdempotencyRecord
	err = q.QueryRow(ctx, `
		SELECT idempotency_key, user_id, operation, status, request_hash,
		       response, response_status, response_content_type, created_at, updated_at, expires_at
		FROM sys_idempotency
		WHERE user_id = $1 AND idempotency_key = $2
	`, req.UserID, req.Key).Scan(
		&record.Key, &record.UserID, &record.Operation, &record.Status,
		&record.RequestHash, &record.Response, &record.StatusCode, &record.ContentType,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Released between our insert and select.
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}

	return s.resolve(ctx, q, req, record, now)
}

func (s *IdempotencyStore) resolve(ctx context.Context, q Querier, req idempotency.Request, record IdempotencyRecord, now time.Time) (*idempotency.Replay, error) {
	if record.Operation != req.Operation || record.RequestHash != req.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", req.Operation)
	}

	switch record.Status {
	case idempotency.StatusSuccess, idempotency.StatusFailed:
		replay := &idempotency.Replay{
			StatusCode:  record.StatusCode,
			ContentType: record.ContentType,
			Body:        record.Response,
		}
		return replay.Normalize(), nil

	case idempotency.StatusPending:
		if now.Sub(record.UpdatedAt) <= idempotency.StaleAfter {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		// Reclaim stale key (likely crashed request).
		tag, err := q.Exec(ctx, `
			UPDATE sys_idempotency
			SET updated_at = $1
			WHERE user_id = $2 AND idempotency_key = $3 AND status = $4 AND updated_at = $5
		`, now, req.UserID, req.Key, idempotency.StatusPending, record.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unknown idempotency status %q", record.Status)
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, req idempotency.Request, resp idempotency.Replay) error {
	return s.finish(ctx, req, idempotency.StatusSuccess, resp)
}

// Fail implements idempotency.Store.
func (s *IdempotencyStore) Fail(ctx context.Context, req idempotency.Request, resp idempotency.Replay) error {
	return s.finish(ctx, req, idempotency.StatusFailed, resp)
}

func (s *IdempotencyStore) finish(ctx context.Context, req idempotency.Request, status idempotency.Status, resp idempotency.Replay) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE user_id = $6 AND idempotency_key = $7
	`, status, resp.Body, resp.StatusCode, resp.ContentType, s.now(), req.UserID, req.Key)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

// Release implements idempotency.Store.
func (s *IdempotencyStore) Release(ctx context.Context, req idempotency.Request) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE user_id = $1 AND idempotency_key = $2`, req.UserID, req.Key)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired implements idempotency.Cleaner.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}
