package ledger

import (
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
)

// MovementFields are the caller-supplied attributes of a movement.
// Profit, creator and timestamps are never supplied; the engine derives them.
type MovementFields struct {
	ProductID     id.ID
	BranchID      id.ID
	Type          entity.MovementType
	Quantity      int64
	SellingAmount *types.Money
	PaymentMethod *entity.PaymentMethod
	Notes         string
}

// Key returns the (product, branch) key the fields target.
func (f MovementFields) Key() entity.StockKey {
	return entity.StockKey{ProductID: f.ProductID, BranchID: f.BranchID}
}

// CreateRequest is the input of CreateMovement.
type CreateRequest struct {
	MovementFields
}

// UpdateRequest is the input of UpdateMovement. All fields are replaced;
// an update is a full re-statement of the movement, not a delta.
type UpdateRequest struct {
	MovementFields
}

// Result describes a committed mutation.
type Result struct {
	MovementID id.ID       `json:"movementId"`
	Profit     types.Money `json:"profit"`
	// Before and After are the stock level around the mutation on the
	// movement's (new) key, as written to the movement log.
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}
