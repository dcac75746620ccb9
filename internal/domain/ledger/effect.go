package ledger

import (
	"time"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/types"
)

// applyEffect applies a movement's delta to a loaded stock level and returns
// the new level. OUT fails with INSUFFICIENT_STOCK when it asks for more than
// the level holds.
func applyEffect(level entity.StockLevel, typ entity.MovementType, qty int64, now time.Time) (entity.StockLevel, error) {
	switch typ {
	case entity.MovementIn:
		level.Quantity += qty
	case entity.MovementOut:
		if qty > level.Quantity {
			return level, apperror.NewInsufficientStock(
				level.ProductID.String(), level.BranchID.String(), qty, max(level.Quantity, 0),
			)
		}
		level.Quantity -= qty
	default:
		return level, apperror.NewValidation("invalid movement type").WithDetail("movementType", typ)
	}
	level.LastUpdated = now
	return level, nil
}

// reverseEffect undoes what applyEffect did for m. Reversing an OUT always
// succeeds. Reversing an IN returns NEGATIVE_STOCK when the units were
// already sold, unless allowNegative is set (the caller re-applies on the
// same key and checks the final quantity itself).
func reverseEffect(level entity.StockLevel, m *entity.StockMovement, allowNegative bool, now time.Time) (entity.StockLevel, error) {
	switch m.Type {
	case entity.MovementIn:
		if !allowNegative && level.Quantity-m.Quantity < 0 {
			return level, apperror.NewNegativeStock(
				level.ProductID.String(), level.BranchID.String(), m.Quantity, level.Quantity,
			)
		}
		level.Quantity -= m.Quantity
	case entity.MovementOut:
		level.Quantity += m.Quantity
	default:
		return level, apperror.NewValidation("invalid movement type").WithDetail("movementType", m.Type)
	}
	level.LastUpdated = now
	return level, nil
}

// calculateProfit returns sellingAmount - costPrice*qty for OUT and zero for IN,
// kept at two decimals. A nil selling amount counts as zero.
func calculateProfit(typ entity.MovementType, sellingAmount *types.Money, costPrice types.Money, qty int64) types.Money {
	if typ != entity.MovementOut {
		return types.Zero()
	}
	selling := types.Zero()
	if sellingAmount != nil {
		selling = *sellingAmount
	}
	return types.RoundMoney(selling.Sub(types.MulQty(costPrice, qty)))
}

// validateFields checks the request preconditions that need no store access.
func validateFields(f MovementFields) error {
	if !f.Type.Valid() {
		return apperror.NewValidation("movement type must be IN or OUT").
			WithDetail("field", "movementType").
			WithDetail("value", f.Type)
	}
	if f.Quantity <= 0 {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", f.Quantity)
	}
	if f.PaymentMethod != nil && !f.PaymentMethod.Valid() {
		return apperror.NewValidation("unsupported payment method").
			WithDetail("field", "paymentMethod").
			WithDetail("value", *f.PaymentMethod)
	}
	if f.SellingAmount != nil {
		if f.SellingAmount.IsNegative() {
			return apperror.NewValidation("selling amount cannot be negative").WithDetail("field", "sellingAmount")
		}
		if !types.HasAtMostScale(*f.SellingAmount) {
			return apperror.NewValidation("selling amount has more than two decimals").WithDetail("field", "sellingAmount")
		}
	}

	if f.Type == entity.MovementOut {
		if f.PaymentMethod == nil {
			return apperror.NewMissingPaymentMethod()
		}
		if f.SellingAmount == nil {
			return apperror.NewValidation("selling amount is required for stock out").
				WithDetail("field", "sellingAmount")
		}
	}
	return nil
}

// normalize drops sale-only fields from IN movements so they are stored as NULL.
func normalize(f MovementFields) MovementFields {
	if f.Type == entity.MovementIn {
		f.SellingAmount = nil
		f.PaymentMethod = nil
	}
	return f
}
