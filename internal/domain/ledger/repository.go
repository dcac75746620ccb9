package ledger

import (
	"context"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
)

// MovementRepository persists movement rows.
type MovementRepository interface {
	Create(ctx context.Context, m *entity.StockMovement) error

	// GetByID returns the movement or NOT_FOUND.
	GetByID(ctx context.Context, movementID id.ID) (*entity.StockMovement, error)

	// GetForUpdate returns the movement with a row lock held until the
	// transaction ends, so concurrent edits of one movement serialize.
	GetForUpdate(ctx context.Context, movementID id.ID) (*entity.StockMovement, error)

	Update(ctx context.Context, m *entity.StockMovement) error
	Delete(ctx context.Context, movementID id.ID) error
}

// ProductRef is the part of a product the engine needs.
type ProductRef struct {
	ID        id.ID       `db:"id"`
	AccountID id.ID       `db:"account_id"`
	BranchID  id.ID       `db:"branch_id"`
	Name      string      `db:"name"`
	CostPrice types.Money `db:"cost_price"`
}

// BranchRef is the part of a branch the engine needs.
type BranchRef struct {
	ID        id.ID  `db:"id"`
	AccountID id.ID  `db:"account_id"`
	Name      string `db:"name"`
}

// CatalogLookup resolves the catalog rows a movement refers to.
// Both methods return NOT_FOUND for unknown ids.
type CatalogLookup interface {
	GetProductRef(ctx context.Context, productID id.ID) (ProductRef, error)
	GetBranchRef(ctx context.Context, branchID id.ID) (BranchRef, error)
}
