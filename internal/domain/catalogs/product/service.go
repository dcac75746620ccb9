package product

import (
	"context"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/core/tx"
	"retailstock/internal/domain"
)

// BranchLookup resolves the owning account of a branch.
type BranchLookup interface {
	AccountOf(ctx context.Context, branchID id.ID) (id.ID, error)
}

// Service provides business logic for the Product catalog.
type Service struct {
	*domain.CatalogService[*Product]
	repo     Repository
	branches BranchLookup
}

// NewService creates a new Product service.
func NewService(repo Repository, txm tx.Manager, branches BranchLookup) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txm,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		branches:       branches,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)

	return svc
}

// prepareForCreate checks branch ownership and name uniqueness. The unique
// index on (branch_id, lower(name)) backs this up under concurrency.
func (s *Service) prepareForCreate(ctx context.Context, p *Product) error {
	accountID, err := s.branches.AccountOf(ctx, p.BranchID)
	if err != nil {
		return err
	}
	if accountID != p.AccountID {
		return apperror.NewValidation("branch belongs to another account").WithDetail("field", "branchId")
	}

	exists, err := s.repo.ExistsByName(ctx, p.BranchID, p.Name)
	if err != nil {
		return err
	}
	if exists {
		return apperror.NewDuplicate("product", "name", p.Name)
	}
	return nil
}
