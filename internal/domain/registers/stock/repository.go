// Package stock provides the stock level register: the per-(product, branch)
// derived quantity maintained by the ledger engine.
package stock

import (
	"context"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
)

// Repository defines persistence for stock levels.
// All methods run on the transaction carried by ctx when there is one.
type Repository interface {
	// GetForUpdate returns the level for key with a row lock held until the
	// transaction ends. A missing level is created at quantity 0 first, so two
	// first movements against the same key serialize on the same row.
	GetForUpdate(ctx context.Context, key entity.StockKey) (entity.StockLevel, error)

	// Get returns the current level without locking.
	// A missing level returns NOT_FOUND.
	Get(ctx context.Context, key entity.StockKey) (entity.StockLevel, error)

	// Save persists quantity and last_updated of an already locked level.
	Save(ctx context.Context, level entity.StockLevel) error

	// List returns levels matching filter ordered by product, branch.
	List(ctx context.Context, filter LevelFilter) ([]entity.StockLevel, error)

	// Delete removes an empty level row.
	Delete(ctx context.Context, key entity.StockKey) error
}

// LevelFilter restricts List. Nil fields are not applied.
type LevelFilter struct {
	AccountID   *id.ID
	BranchID    *id.ID
	ProductID   *id.ID
	ExcludeZero bool
}
