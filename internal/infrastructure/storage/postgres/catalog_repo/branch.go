package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/infrastructure/storage/postgres"
)

var _ branch.Repository = (*BranchRepo)(nil)

var branchDependents = map[string]string{
	"users":        `SELECT COUNT(*) FROM users WHERE branch_id = $1`,
	"products":     `SELECT COUNT(*) FROM products WHERE branch_id = $1`,
	"stock_levels": `SELECT COUNT(*) FROM stock_levels WHERE branch_id = $1`,
	"movements":    `SELECT COUNT(*) FROM stock_movements WHERE branch_id = $1`,
}

// BranchRepo implements branch.Repository.
// It also resolves branch ownership for the product, user and ledger services.
type BranchRepo struct {
	*BaseCatalogRepo[*branch.Branch]
}

// NewBranchRepo creates a new branch repository.
func NewBranchRepo(txm *postgres.TxManager) *BranchRepo {
	return &BranchRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			"branches",
			postgres.ExtractDBColumns[branch.Branch](),
			ScopeColumns{Account: "account_id", Branch: "id"},
			func() *branch.Branch { return &branch.Branch{} },
		),
	}
}

// CountDependents counts rows that still reference the branch.
// Any stock level row blocks, including one a deleted movement brought back to zero.
func (r *BranchRepo) CountDependents(ctx context.Context, branchID id.ID) (map[string]int64, error) {
	return r.countDependents(ctx, branchID, branchDependents)
}

// AccountOf returns the owning account of a branch.
func (r *BranchRepo) AccountOf(ctx context.Context, branchID id.ID) (id.ID, error) {
	ref, err := r.GetBranchRef(ctx, branchID)
	if err != nil {
		return id.Nil(), err
	}
	return ref.AccountID, nil
}

// GetBranchRef returns the branch fields the ledger engine needs.
func (r *BranchRepo) GetBranchRef(ctx context.Context, branchID id.ID) (ledger.BranchRef, error) {
	var ref ledger.BranchRef

	sql, args, err := r.Builder().
		Select("id", "account_id", "name").
		From(r.tableName).
		Where(squirrel.Eq{"id": branchID}).
		ToSql()
	if err != nil {
		return ref, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.Querier(ctx), &ref, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ref, apperror.NewNotFound("branch", branchID.String())
		}
		return ref, fmt.Errorf("get branch ref: %w", err)
	}
	return ref, nil
}
