// Package idempotency defines the store behind the X-Idempotency-Key header.
// A replayed key returns the stored response instead of re-running the
// request, so a retried CreateMovement is not applied twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"retailstock/pkg/logger"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may stay unfinished before another
// request may reclaim it.
const StaleAfter = time.Minute

// Request identifies one idempotent call. Keys are owned per user: the same
// key sent by two users names two independent slots.
type Request struct {
	Key         string
	UserID      string
	Operation   string // "POST /api/v1/movements"
	RequestHash string // SHA256 of request body
}

// Replay is the cached HTTP response returned for a completed key.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys. The slot of a request is
// (req.UserID, req.Key).
type Store interface {
	// Acquire claims the slot of req. It returns (nil, nil) when the caller
	// owns it and must run the request, a Replay when the slot already
	// finished, IDEMPOTENCY_CONFLICT while another request holds it, and
	// IDEMPOTENCY_MISMATCH when the key was used for a different request.
	Acquire(ctx context.Context, req Request) (*Replay, error)

	// Complete stores a successful response for replay.
	Complete(ctx context.Context, req Request, resp Replay) error

	// Fail stores a rejected (4xx) response for replay.
	Fail(ctx context.Context, req Request, resp Replay) error

	// Release forgets the slot so the request may be retried.
	Release(ctx context.Context, req Request) error
}

// Cleaner is a Store that must purge expired slots itself.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// RunCleanup calls c.CleanupExpired every interval until ctx is done.
func RunCleanup(ctx context.Context, c Cleaner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.CleanupExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn(ctx, "idempotency cleanup failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Debug(ctx, "expired idempotency keys removed", "count", n)
			}
		}
	}
}

// HashBody returns the hex SHA256 of body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Normalize fills defaults of replays stored without status or content type.
func (r *Replay) Normalize() *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}
