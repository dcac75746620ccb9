package dto

import (
	"strings"
	"time"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/ledger"
)

// MovementRequest creates or re-states a movement. Type is IN or OUT in
// any case; OUT requires sellingAmount and paymentMethod.
type MovementRequest struct {
	ProductID     string       `json:"productId" binding:"required"`
	BranchID      string       `json:"branchId" binding:"required"`
	Type          string       `json:"type" binding:"required"`
	Quantity      int64        `json:"quantity"`
	SellingAmount *types.Money `json:"sellingAmount"`
	PaymentMethod *string      `json:"paymentMethod"`
	Notes         string       `json:"notes"`
}

// ToFields converts to ledger fields. Range and consistency checks are the
// engine's; only ids are validated here.
func (r MovementRequest) ToFields() (ledger.MovementFields, error) {
	productID, err := id.ParseField("productId", r.ProductID)
	if err != nil {
		return ledger.MovementFields{}, err
	}
	branchID, err := id.ParseField("branchId", r.BranchID)
	if err != nil {
		return ledger.MovementFields{}, err
	}

	f := ledger.MovementFields{
		ProductID:     productID,
		BranchID:      branchID,
		Type:          entity.MovementType(strings.ToUpper(strings.TrimSpace(r.Type))),
		Quantity:      r.Quantity,
		SellingAmount: r.SellingAmount,
		Notes:         r.Notes,
	}
	if r.PaymentMethod != nil {
		pm := entity.PaymentMethod(strings.ToLower(strings.TrimSpace(*r.PaymentMethod)))
		f.PaymentMethod = &pm
	}
	return f, nil
}

// MovementResultResponse describes a committed ledger mutation.
type MovementResultResponse struct {
	MovementID  string      `json:"movementId"`
	Profit      types.Money `json:"profit"`
	StockBefore int64       `json:"stockBefore"`
	StockAfter  int64       `json:"stockAfter"`
}

// FromResult creates response from a ledger result.
func FromResult(r ledger.Result) MovementResultResponse {
	return MovementResultResponse{
		MovementID:  r.MovementID.String(),
		Profit:      r.Profit,
		StockBefore: r.Before,
		StockAfter:  r.After,
	}
}

// MovementListRequest binds GET /movements query parameters.
type MovementListRequest struct {
	Recent    bool       `form:"recent"`
	ProductID string     `form:"productId"`
	BranchID  string     `form:"branchId"`
	Type      string     `form:"type"`
	Since     *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until     *time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int        `form:"offset" binding:"omitempty,min=0"`
}

// StockLevelResponse represents one stock level row.
type StockLevelResponse struct {
	ProductID   string    `json:"productId"`
	BranchID    string    `json:"branchId"`
	Quantity    int64     `json:"quantity"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// FromStockLevel creates response from a stock level.
func FromStockLevel(l entity.StockLevel) StockLevelResponse {
	return StockLevelResponse{
		ProductID:   l.ProductID.String(),
		BranchID:    l.BranchID.String(),
		Quantity:    l.Quantity,
		LastUpdated: l.LastUpdated,
	}
}
