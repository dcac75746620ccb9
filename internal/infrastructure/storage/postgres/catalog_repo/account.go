package catalog_repo

import (
	"context"

	"retailstock/internal/core/id"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/infrastructure/storage/postgres"
)

var _ account.Repository = (*AccountRepo)(nil)

var accountDependents = map[string]string{
	"users":     `SELECT COUNT(*) FROM users WHERE account_id = $1`,
	"branches":  `SELECT COUNT(*) FROM branches WHERE account_id = $1`,
	"products":  `SELECT COUNT(*) FROM products WHERE account_id = $1`,
	"movements": `SELECT COUNT(*) FROM stock_movements WHERE account_id = $1`,
}

// AccountRepo implements account.Repository.
type AccountRepo struct {
	*BaseCatalogRepo[*account.Account]
}

// NewAccountRepo creates a new account repository.
func NewAccountRepo(txm *postgres.TxManager) *AccountRepo {
	return &AccountRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			"accounts",
			postgres.ExtractDBColumns[account.Account](),
			ScopeColumns{Account: "id"},
			func() *account.Account { return &account.Account{} },
		),
	}
}

// CountDependents counts rows owned by the account.
func (r *AccountRepo) CountDependents(ctx context.Context, accountID id.ID) (map[string]int64, error) {
	return r.countDependents(ctx, accountID, accountDependents)
}
