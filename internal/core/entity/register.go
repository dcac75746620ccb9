// Package entity provides core domain entities.
package entity

import (
	"encoding/json"
	"time"

	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
)

// MovementType defines movement direction for the stock ledger.
type MovementType string

const (
	// MovementIn adds units to the branch (purchase, transfer in).
	MovementIn MovementType = "IN"
	// MovementOut removes units from the branch (sale).
	MovementOut MovementType = "OUT"
)

// Valid reports whether t is IN or OUT.
func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// PaymentMethod records how a sale was paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentMomo PaymentMethod = "momo"
)

// Valid reports whether p is a supported payment method.
func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentMomo
}

// Actor identifies who performed a ledger mutation.
// It is passed explicitly to every engine call.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StockKey is the (product, branch) pair a stock level and its movements are keyed by.
type StockKey struct {
	ProductID id.ID
	BranchID  id.ID
}

// Less orders keys by product then branch; used to lock keys deterministically.
func (k StockKey) Less(other StockKey) bool {
	if c := id.Compare(k.ProductID, other.ProductID); c != 0 {
		return c < 0
	}
	return id.Compare(k.BranchID, other.BranchID) < 0
}

// StockLevel is the current on-hand quantity of a product at a branch.
// Rows are created lazily at 0 on the first movement for the key.
type StockLevel struct {
	ProductID   id.ID     `db:"product_id" json:"productId"`
	BranchID    id.ID     `db:"branch_id" json:"branchId"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	LastUpdated time.Time `db:"last_updated" json:"lastUpdated"`
}

// Key returns the level's (product, branch) key.
func (l *StockLevel) Key() StockKey {
	return StockKey{ProductID: l.ProductID, BranchID: l.BranchID}
}

// StockMovement is one IN or OUT entry in the ledger.
// Unlike the stock level it is editable; every edit re-runs reconciliation.
type StockMovement struct {
	ID        id.ID        `db:"id" json:"id"`
	AccountID id.ID        `db:"account_id" json:"accountId"`
	ProductID id.ID        `db:"product_id" json:"productId"`
	BranchID  id.ID        `db:"branch_id" json:"branchId"`
	Type      MovementType `db:"movement_type" json:"movementType"`
	Quantity  int64        `db:"quantity" json:"quantity"`

	// SellingAmount is the total sale value, required for OUT.
	SellingAmount *types.Money `db:"selling_amount" json:"sellingAmount,omitempty"`

	// Profit is derived: sellingAmount - costPrice*quantity for OUT, 0 for IN.
	Profit types.Money `db:"profit" json:"profit"`

	PaymentMethod *PaymentMethod `db:"payment_method" json:"paymentMethod,omitempty"`
	Notes         string         `db:"notes" json:"notes,omitempty"`
	CreatedBy     string         `db:"created_by" json:"createdBy"`
	CreatedByName string         `db:"created_by_name" json:"createdByName"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
}

// Key returns the movement's (product, branch) key.
func (m *StockMovement) Key() StockKey {
	return StockKey{ProductID: m.ProductID, BranchID: m.BranchID}
}

// SignedQuantity returns quantity with sign based on movement type.
// IN = positive, OUT = negative.
func (m *StockMovement) SignedQuantity() int64 {
	if m.Type == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

// LogAction names the mutation a movement log row records.
type LogAction string

const (
	LogActionCreate LogAction = "create"
	LogActionUpdate LogAction = "update"
	LogActionDelete LogAction = "delete"
)

// MovementLog is an immutable audit row written for every movement mutation.
// It keeps the movement id after the movement itself is deleted.
type MovementLog struct {
	ID            id.ID          `db:"id" json:"id"`
	MovementID    id.ID          `db:"movement_id" json:"movementId"`
	Action        LogAction      `db:"action" json:"action"`
	BeforeQty     int64          `db:"before_qty" json:"beforeQty"`
	AfterQty      int64          `db:"after_qty" json:"afterQty"`
	Profit        types.Money    `db:"profit" json:"profit"`
	PaymentMethod *PaymentMethod `db:"payment_method" json:"paymentMethod,omitempty"`
	ChangedBy     string         `db:"changed_by" json:"changedBy"`
	ChangedByName string         `db:"changed_by_name" json:"changedByName"`
	ChangedAt     time.Time      `db:"changed_at" json:"changedAt"`

	// Snapshot is the movement as it was after the mutation (before, for delete).
	Snapshot json.RawMessage `db:"-" json:"snapshot,omitempty"`
}
