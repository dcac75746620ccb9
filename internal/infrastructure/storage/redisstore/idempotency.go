// Package redisstore keeps idempotency keys in Redis so several server
// instances share them.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"retailstock/internal/core/apperror"
	"retailstock/internal/infrastructure/idempotency"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

const defaultKeyPrefix = "retailstock:idempotency:"

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type record struct {
	UserID      string             `json:"uid"`
	Operation   string             `json:"op"`
	Status      idempotency.Status `json:"status"`
	RequestHash string             `json:"hash"`
	Response    []byte             `json:"body,omitempty"`
	StatusCode  int                `json:"code,omitempty"`
	ContentType string             `json:"ct,omitempty"`
	UpdatedAt   time.Time          `json:"updated"`
}

// IdempotencyStore implements idempotency.Store with one JSON value per key.
// The key's TTL is its expiry.
type IdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a store on client. An empty prefix uses the default.
func NewIdempotencyStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *IdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &IdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// slotKey is <prefix><user id>:<idempotency key>.
func (s *IdempotencyStore) slotKey(req idempotency.Request) string {
	return s.keyPrefix + req.UserID + ":" + req.Key
}

// Acquire implements idempotency.Store. SETNX claims a new key; an existing
// stale pending key is reclaimed under WATCH.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	key := s.slotKey(req)
	now := s.now()

	pending, err := json.Marshal(record{
		UserID:      req.UserID,
		Operation:   req.Operation,
		Status:      idempotency.StatusPending,
		RequestHash: req.RequestHash,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal idempotency record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, key, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	var replay *idempotency.Replay
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired or released meanwhile.
			return apperror.NewIdempotencyConflict(req.Key)
		}
		if err != nil {
			return fmt.Errorf("load idempotency key: %w", err)
		}

		var stored record
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode idempotency record: %w", err)
		}
		if stored.UserID != req.UserID || stored.Operation != req.Operation || stored.RequestHash != req.RequestHash {
			return apperror.NewIdempotencyMismatch(req.Key).
				WithDetail("stored_operation", stored.Operation).
				WithDetail("request_operation", req.Operation)
		}

		switch stored.Status {
		case idempotency.StatusSuccess, idempotency.StatusFailed:
			replay = (&idempotency.Replay{
				StatusCode:  stored.StatusCode,
				ContentType: stored.ContentType,
				Body:        stored.Response,
			}).Normalize()
			return nil
		case idempotency.StatusPending:
			if now.Sub(stored.UpdatedAt) <= idempotency.StaleAfter {
				return apperror.NewIdempotencyConflict(req.Key)
			}
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, pending, redis.KeepTTL)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
	if err != nil {
		return nil, err
	}
	return replay, nil
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, req idempotency.Request, resp idempotency.Replay) error {
	return s.finish(ctx, s.slotKey(req), idempotency.StatusSuccess, resp)
}

// Fail implements idempotency.Store.
func (s *IdempotencyStore) Fail(ctx context.Context, req idempotency.Request, resp idempotency.Replay) error {
	return s.finish(ctx, s.slotKey(req), idempotency.StatusFailed, resp)
}

func (s *IdempotencyStore) finish(ctx context.Context, full string, status idempotency.Status, resp idempotency.Replay) error {

	raw, err := s.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load idempotency key: %w", err)
	}

	var stored record
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("decode idempotency record: %w", err)
	}
	stored.Status = status
	stored.Response = resp.Body
	stored.StatusCode = resp.StatusCode
	stored.ContentType = resp.ContentType
	stored.UpdatedAt = s.now()

	value, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, full, value, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

// Release implements idempotency.Store.
func (s *IdempotencyStore) Release(ctx context.Context, req idempotency.Request) error {
	if err := s.client.Del(ctx, s.slotKey(req)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
