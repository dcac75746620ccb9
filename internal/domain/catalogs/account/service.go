package account

import (
	"retailstock/internal/core/tx"
	"retailstock/internal/domain"
)

// Service provides business logic for the Account catalog.
type Service struct {
	*domain.CatalogService[*Account]
}

// NewService creates a new Account service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{
		CatalogService: domain.NewCatalogService(domain.CatalogServiceConfig[*Account]{
			Repo:       repo,
			TxManager:  txm,
			EntityName: "account",
		}),
	}
}
