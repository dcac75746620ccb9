// Package audit defines the append-only movement log.
package audit

import (
	"context"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
)

// Writer appends movement log rows. Append runs inside the caller's
// transaction and is always the last write of a ledger mutation.
type Writer interface {
	Append(ctx context.Context, entry *entity.MovementLog) error
}

// Reader reads the movement log.
type Reader interface {
	// ListByMovement returns the log of one movement, newest first.
	// Rows outlive the movement, so a deleted movement still has a history.
	ListByMovement(ctx context.Context, movementID id.ID) ([]entity.MovementLog, error)
}
