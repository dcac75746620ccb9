// Package product provides the Product catalog.
package product

import (
	"context"
	"strings"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
)

// Product is an item sold at one branch.
// Names are unique per branch regardless of case.
type Product struct {
	entity.BaseEntity

	AccountID    id.ID       `db:"account_id" json:"accountId"`
	BranchID     id.ID       `db:"branch_id" json:"branchId"`
	Name         string      `db:"name" json:"name"`
	Category     string      `db:"category" json:"category"`
	CostPrice    types.Money `db:"cost_price" json:"costPrice"`
	SellingPrice types.Money `db:"selling_price" json:"sellingPrice"`
}

// NewProduct creates a product stocked at branchID.
func NewProduct(accountID, branchID id.ID, name, category string, cost, selling types.Money) *Product {
	return &Product{
		BaseEntity:   entity.NewBaseEntity(),
		AccountID:    accountID,
		BranchID:     branchID,
		Name:         strings.TrimSpace(name),
		Category:     strings.TrimSpace(category),
		CostPrice:    cost,
		SellingPrice: selling,
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(_ context.Context) error {
	if id.IsNil(p.AccountID) {
		return apperror.NewValidation("account is required").WithDetail("field", "accountId")
	}
	if id.IsNil(p.BranchID) {
		return apperror.NewValidation("branch is required").WithDetail("field", "branchId")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if len(p.Name) > 100 {
		return apperror.NewValidation("name is too long").WithDetail("field", "name").WithDetail("max", 100)
	}
	if len(p.Category) > 50 {
		return apperror.NewValidation("category is too long").WithDetail("field", "category").WithDetail("max", 50)
	}
	if err := validatePrice("costPrice", p.CostPrice); err != nil {
		return err
	}
	return validatePrice("sellingPrice", p.SellingPrice)
}

func validatePrice(field string, v types.Money) error {
	if v.IsNegative() {
		return apperror.NewValidation("price cannot be negative").WithDetail("field", field)
	}
	if !types.HasAtMostScale(v) {
		return apperror.NewValidation("price has more than two decimals").WithDetail("field", field)
	}
	return nil
}
