package branch

import (
	"context"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/core/tx"
	"retailstock/internal/domain"
)

// AccountChecker reports whether an account exists.
type AccountChecker interface {
	Exists(ctx context.Context, accountID id.ID) (bool, error)
}

// ManagerChecker resolves the account and role of a user.
type ManagerChecker interface {
	AccountAndRole(ctx context.Context, userID id.ID) (accountID *id.ID, role string, err error)
}

// Service provides business logic for the Branch catalog.
type Service struct {
	*domain.CatalogService[*Branch]
	accounts AccountChecker
	managers ManagerChecker
}

// NewService creates a new Branch service. managers may be nil, in which
// case manager assignment is not checked.
func NewService(repo Repository, txm tx.Manager, accounts AccountChecker, managers ManagerChecker) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Branch]{
		Repo:       repo,
		TxManager:  txm,
		EntityName: "branch",
	})

	svc := &Service{
		CatalogService: base,
		accounts:       accounts,
		managers:       managers,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)

	return svc
}

// prepareForCreate checks the owning account and the optional manager.
func (s *Service) prepareForCreate(ctx context.Context, b *Branch) error {
	ok, err := s.accounts.Exists(ctx, b.AccountID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewNotFound("account", b.AccountID.String())
	}

	if b.ManagerID == nil || s.managers == nil {
		return nil
	}
	accountID, role, err := s.managers.AccountAndRole(ctx, *b.ManagerID)
	if err != nil {
		return err
	}
	if accountID == nil || *accountID != b.AccountID || role != "manager" {
		return apperror.NewValidation("manager must be a manager of the same account").
			WithDetail("field", "managerId")
	}
	return nil
}
