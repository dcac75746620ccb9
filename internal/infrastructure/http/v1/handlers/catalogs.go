package handlers

import (
	"context"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/infrastructure/http/v1/dto"
)

// AccountHandler serves /accounts.
type AccountHandler = CatalogHandler[*account.Account, dto.CreateAccountRequest]

// BranchHandler serves /branches.
type BranchHandler = CatalogHandler[*branch.Branch, dto.CreateBranchRequest]

// ProductHandler serves /products.
type ProductHandler = CatalogHandler[*product.Product, dto.CreateProductRequest]

// NewAccountHandler creates the account handler. Only admins create or
// delete accounts.
func NewAccountHandler(base *BaseHandler, svc *account.Service) *AccountHandler {
	return NewCatalogHandler(base, CatalogHandlerConfig[*account.Account, dto.CreateAccountRequest]{
		Service:    svc,
		EntityName: "account",
		AdminOnly:  true,
		MapCreateDTO: func(_ context.Context, _ security.Scope, req dto.CreateAccountRequest) (*account.Account, error) {
			return req.ToEntity(), nil
		},
		MapToDTO: func(a *account.Account) any { return dto.FromAccount(a) },
		Owner:    func(a *account.Account) (id.ID, id.ID) { return a.ID, id.Nil() },
	})
}

// NewBranchHandler creates the branch handler. Managers may omit the
// account, which then defaults to their own.
func NewBranchHandler(base *BaseHandler, svc *branch.Service) *BranchHandler {
	return NewCatalogHandler(base, CatalogHandlerConfig[*branch.Branch, dto.CreateBranchRequest]{
		Service:    svc,
		EntityName: "branch",
		MapCreateDTO: func(_ context.Context, scope security.Scope, req dto.CreateBranchRequest) (*branch.Branch, error) {
			accountID, err := requestAccount(scope, req.AccountID)
			if err != nil {
				return nil, err
			}
			return req.ToEntity(accountID)
		},
		MapToDTO: func(b *branch.Branch) any { return dto.FromBranch(b) },
		Owner:    func(b *branch.Branch) (id.ID, id.ID) { return b.AccountID, b.ID },
	})
}

// NewProductHandler creates the product handler. A product takes the
// account of its branch.
func NewProductHandler(base *BaseHandler, svc *product.Service, branches *branch.Service) *ProductHandler {
	return NewCatalogHandler(base, CatalogHandlerConfig[*product.Product, dto.CreateProductRequest]{
		Service:    svc,
		EntityName: "product",
		MapCreateDTO: func(ctx context.Context, _ security.Scope, req dto.CreateProductRequest) (*product.Product, error) {
			branchID, err := id.ParseField("branchId", req.BranchID)
			if err != nil {
				return nil, err
			}
			b, err := branches.GetByID(ctx, branchID)
			if err != nil {
				return nil, err
			}
			return req.ToEntity(b.AccountID, b.ID), nil
		},
		MapToDTO: func(p *product.Product) any { return dto.FromProduct(p) },
		Owner:    func(p *product.Product) (id.ID, id.ID) { return p.AccountID, p.BranchID },
	})
}

// requestAccount resolves the account a write targets: the explicit value
// when given, otherwise the caller's own account.
func requestAccount(scope security.Scope, raw string) (id.ID, error) {
	if raw != "" {
		return id.ParseField("accountId", raw)
	}
	if scope.Kind == security.ScopeAll || id.IsNil(scope.AccountID) {
		return id.Nil(), apperror.NewValidation("accountId is required").WithDetail("field", "accountId")
	}
	return scope.AccountID, nil
}
