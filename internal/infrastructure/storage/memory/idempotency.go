package memory

import (
	"context"
	"sync"
	"time"

	"retailstock/internal/core/apperror"
	"retailstock/internal/infrastructure/idempotency"
)

var (
	_ idempotency.Store   = (*IdempotencyStore)(nil)
	_ idempotency.Cleaner = (*IdempotencyStore)(nil)
)

type idemSlot struct {
	userID string
	key    string
}

func slotOf(req idempotency.Request) idemSlot {
	return idemSlot{userID: req.UserID, key: req.Key}
}

type idemEntry struct {
	req       idempotency.Request
	status    idempotency.Status
	replay    idempotency.Replay
	updatedAt time.Time
	expiresAt time.Time
}

// IdempotencyStore is a single-process idempotency.Store.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[idemSlot]*idemEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewIdempotencyStore creates an empty store whose keys live for ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[idemSlot]*idemEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(_ context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	slot := slotOf(req)
	e, ok := s.entries[slot]
	if !ok || now.After(e.expiresAt) {
		s.entries[slot] = &idemEntry{
			req:       req,
			status:    idempotency.StatusPending,
			updatedAt: now,
			expiresAt: now.Add(s.ttl),
		}
		return nil, nil
	}

	if e.req != req {
		return nil, apperror.NewIdempotencyMismatch(req.Key)
	}
	if e.status != idempotency.StatusPending {
		replay := e.replay
		return replay.Normalize(), nil
	}
	if now.Sub(e.updatedAt) <= idempotency.StaleAfter {
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
	e.updatedAt = now
	return nil, nil
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(_ context.Context, req idempotency.Request, resp idempotency.Replay) error {
	s.finish(slotOf(req), idempotency.StatusSuccess, resp)
	return nil
}

// Fail implements idempotency.Store.
func (s *IdempotencyStore) Fail(_ context.Context, req idempotency.Request, resp idempotency.Replay) error {
	s.finish(slotOf(req), idempotency.StatusFailed, resp)
	return nil
}

func (s *IdempotencyStore) finish(slot idemSlot, status idempotency.Status, resp idempotency.Replay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[slot]; ok {
		e.status = status
		e.replay = resp
		e.updatedAt = s.now()
	}
}

// Release implements idempotency.Store.
func (s *IdempotencyStore) Release(_ context.Context, req idempotency.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, slotOf(req))
	return nil
}

// CleanupExpired implements idempotency.Cleaner.
func (s *IdempotencyStore) CleanupExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for slot, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, slot)
			n++
		}
	}
	return n, nil
}
