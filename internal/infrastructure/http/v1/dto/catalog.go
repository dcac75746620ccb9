package dto

import (
	"time"

	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
)

// --- Account ---

// CreateAccountRequest for creating an account.
type CreateAccountRequest struct {
	Name    string  `json:"name" binding:"required"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

// ToEntity converts to a domain account.
func (r CreateAccountRequest) ToEntity() *account.Account {
	a := account.NewAccount(r.Name)
	a.Address = r.Address
	a.Phone = r.Phone
	return a
}

// AccountResponse represents an account.
type AccountResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromAccount creates response from domain account.
func FromAccount(a *account.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID.String(),
		Name:      a.Name,
		Address:   a.Address,
		Phone:     a.Phone,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}

// --- Branch ---

// CreateBranchRequest for creating a branch. AccountID may be omitted by
// managers, who create branches in their own account.
type CreateBranchRequest struct {
	AccountID string  `json:"accountId"`
	Name      string  `json:"name" binding:"required"`
	ManagerID *string `json:"managerId"`
}

// ToEntity converts to a domain branch owned by accountID.
func (r CreateBranchRequest) ToEntity(accountID id.ID) (*branch.Branch, error) {
	b := branch.NewBranch(accountID, r.Name)
	if r.ManagerID != nil {
		managerID, err := id.ParseOptional("managerId", *r.ManagerID)
		if err != nil {
			return nil, err
		}
		b.ManagerID = managerID
	}
	return b, nil
}

// BranchResponse represents a branch.
type BranchResponse struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Name      string    `json:"name"`
	ManagerID *string   `json:"managerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromBranch creates response from domain branch.
func FromBranch(b *branch.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID.String(),
		AccountID: b.AccountID.String(),
		Name:      b.Name,
		ManagerID: optionalID(b.ManagerID),
		CreatedAt: b.CreatedAt,
	}
}

// --- Product ---

// CreateProductRequest for creating a product. Prices accept JSON numbers or
// decimal strings.
type CreateProductRequest struct {
	BranchID     string      `json:"branchId" binding:"required"`
	Name         string      `json:"name" binding:"required"`
	Category     string      `json:"category"`
	CostPrice    types.Money `json:"costPrice"`
	SellingPrice types.Money `json:"sellingPrice"`
}

// ToEntity converts to a domain product of the branch's account.
func (r CreateProductRequest) ToEntity(accountID, branchID id.ID) *product.Product {
	return product.NewProduct(accountID, branchID, r.Name, r.Category, r.CostPrice, r.SellingPrice)
}

// ProductResponse represents a product.
type ProductResponse struct {
	ID           string      `json:"id"`
	AccountID    string      `json:"accountId"`
	BranchID     string      `json:"branchId"`
	Name         string      `json:"name"`
	Category     string      `json:"category"`
	CostPrice    types.Money `json:"costPrice"`
	SellingPrice types.Money `json:"sellingPrice"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// FromProduct creates response from domain product.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:           p.ID.String(),
		AccountID:    p.AccountID.String(),
		BranchID:     p.BranchID.String(),
		Name:         p.Name,
		Category:     p.Category,
		CostPrice:    p.CostPrice,
		SellingPrice: p.SellingPrice,
		CreatedAt:    p.CreatedAt,
	}
}
