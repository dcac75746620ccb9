package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/infrastructure/storage/postgres"
)

const productNameKey = "products_branch_name_key"

var _ product.Repository = (*ProductRepo)(nil)

var productDependents = map[string]string{
	"stock_levels": `SELECT COUNT(*) FROM stock_levels WHERE product_id = $1`,
	"movements":    `SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`,
}

// ProductRepo implements product.Repository.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			"products",
			postgres.ExtractDBColumns[product.Product](),
			ScopeColumns{Account: "account_id", Branch: "branch_id"},
			func() *product.Product { return &product.Product{} },
		),
	}
}

// Create inserts a product. A concurrent insert of the same name in the
// same branch loses on the unique index and reports DUPLICATE_ENTRY.
func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	err := r.BaseCatalogRepo.Create(ctx, p)
	if postgres.IsUniqueViolation(err, productNameKey) {
		return apperror.NewDuplicate("product", "name", p.Name)
	}
	return err
}

// ExistsByName reports whether branchID has a product named name, case-insensitively.
func (r *ProductRepo) ExistsByName(ctx context.Context, branchID id.ID, name string) (bool, error) {
	q := r.Builder().
		Select("1").
		From(r.tableName).
		Where(squirrel.Eq{"branch_id": branchID}).
		Where(squirrel.Expr("lower(name) = lower(?)", name)).
		Limit(1)

	return r.exists(ctx, q)
}

// CountDependents counts rows that still reference the product.
func (r *ProductRepo) CountDependents(ctx context.Context, productID id.ID) (map[string]int64, error) {
	return r.countDependents(ctx, productID, productDependents)
}

// GetProductRef returns the product fields the ledger engine needs.
func (r *ProductRepo) GetProductRef(ctx context.Context, productID id.ID) (ledger.ProductRef, error) {
	var ref ledger.ProductRef

	sql, args, err := r.Builder().
		Select("id", "account_id", "branch_id", "name", "cost_price").
		From(r.tableName).
		Where(squirrel.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return ref, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.Querier(ctx), &ref, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ref, apperror.NewNotFound("product", productID.String())
		}
		return ref, fmt.Errorf("get product ref: %w", err)
	}
	return ref, nil
}

// CatalogLookup combines the product and branch repos into ledger.CatalogLookup.
type CatalogLookup struct {
	*ProductRepo
	Branches *BranchRepo
}

var _ ledger.CatalogLookup = CatalogLookup{}

// GetBranchRef delegates to the branch repo.
func (c CatalogLookup) GetBranchRef(ctx context.Context, branchID id.ID) (ledger.BranchRef, error) {
	return c.Branches.GetBranchRef(ctx, branchID)
}
