// Package report_repo provides PostgreSQL implementations for report repositories.
package report_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/domain/reports"
	"retailstock/internal/infrastructure/storage/postgres"
)

// signedQuantity is the stock delta of one movement row aliased m.
const signedQuantity = "CASE WHEN m.movement_type = 'IN' THEN m.quantity ELSE -m.quantity END"

var _ reports.Repository = (*ReportRepo)(nil)

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txm *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// applyScope restricts q to the rows visible in scope.
// branchCol may be empty for tables that are not owned by a branch.
func applyScope(q squirrel.SelectBuilder, scope security.Scope, accountCol, branchCol string) squirrel.SelectBuilder {
	switch scope.Kind {
	case security.ScopeAll:
		return q
	case security.ScopeAccount:
		return q.Where(squirrel.Eq{accountCol: scope.AccountID})
	case security.ScopeBranch:
		q = q.Where(squirrel.Eq{accountCol: scope.AccountID})
		if branchCol != "" {
			q = q.Where(squirrel.Eq{branchCol: scope.BranchID})
		}
		return q
	}
	return q.Where("FALSE")
}

func (r *ReportRepo) stockByKeyQuery(scope security.Scope) squirrel.SelectBuilder {
	q := r.builder.Select(
		"m.product_id",
		"p.name AS product_name",
		"m.branch_id",
		"b.name AS branch_name",
		"SUM("+signedQuantity+")::bigint AS quantity",
		"p.cost_price",
	).
		From("stock_movements m").
		Join("products p ON p.id = m.product_id").
		Join("branches b ON b.id = m.branch_id")

	return applyScope(q, scope, "m.account_id", "m.branch_id").
		GroupBy("m.product_id", "p.name", "m.branch_id", "b.name", "p.cost_price").
		OrderBy("m.product_id", "m.branch_id")
}

// StockByKey sums signed movement deltas per (product, branch).
func (r *ReportRepo) StockByKey(ctx context.Context, scope security.Scope) ([]reports.StockSummaryItem, error) {
	items := []reports.StockSummaryItem{}
	if err := r.selectInto(ctx, &items, r.stockByKeyQuery(scope)); err != nil {
		return nil, fmt.Errorf("stock by key: %w", err)
	}
	return items, nil
}

// ListBranches returns the branches in scope ordered by name.
func (r *ReportRepo) ListBranches(ctx context.Context, scope security.Scope) ([]reports.BranchRow, error) {
	q := applyScope(r.builder.Select("b.id", "b.name").From("branches b"), scope, "b.account_id", "b.id").
		OrderBy("lower(b.name)", "b.id")

	rows := []reports.BranchRow{}
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return rows, nil
}

func (r *ReportRepo) salesByBranchQuery(scope security.Scope, from, to time.Time) squirrel.SelectBuilder {
	q := r.builder.Select(
		"m.branch_id",
		"b.name AS branch_name",
		"COALESCE(SUM(m.selling_amount), 0) AS total_sales",
		"COALESCE(SUM(m.profit), 0) AS total_profit",
		"SUM(m.quantity)::bigint AS total_quantity",
		"COUNT(*) AS sales",
	).
		From("stock_movements m").
		Join("branches b ON b.id = m.branch_id").
		Where(squirrel.Eq{"m.movement_type": entity.MovementOut}).
		Where(squirrel.GtOrEq{"m.created_at": from}).
		Where(squirrel.Lt{"m.created_at": to})

	return applyScope(q, scope, "m.account_id", "m.branch_id").
		GroupBy("m.branch_id", "b.name")
}

// SalesByBranch aggregates OUT movements created in [from, to) per branch.
func (r *ReportRepo) SalesByBranch(ctx context.Context, scope security.Scope, from, to time.Time) ([]reports.DailyReportRow, error) {
	rows := []reports.DailyReportRow{}
	if err := r.selectInto(ctx, &rows, r.salesByBranchQuery(scope, from, to)); err != nil {
		return nil, fmt.Errorf("sales by branch: %w", err)
	}
	return rows, nil
}

func (r *ReportRepo) movementsQuery(f reports.MovementFilter, columns ...string) squirrel.SelectBuilder {
	q := r.builder.Select(columns...).
		From("stock_movements m").
		Join("products p ON p.id = m.product_id").
		Join("branches b ON b.id = m.branch_id")

	q = applyScope(q, f.Scope, "m.account_id", "m.branch_id")

	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"m.product_id": *f.ProductID})
	}
	if f.BranchID != nil {
		q = q.Where(squirrel.Eq{"m.branch_id": *f.BranchID})
	}
	if f.Type != "" {
		q = q.Where(squirrel.Eq{"m.movement_type": f.Type})
	}
	if f.Since != nil {
		q = q.Where(squirrel.GtOrEq{"m.created_at": *f.Since})
	}
	if f.Until != nil {
		q = q.Where(squirrel.Lt{"m.created_at": *f.Until})
	}
	return q
}

var movementViewColumns = []string{
	"m.id", "m.account_id", "m.product_id", "m.branch_id", "m.movement_type", "m.quantity",
	"m.selling_amount", "m.profit", "m.payment_method", "m.notes",
	"m.created_by", "m.created_by_name", "m.created_at",
	"p.name AS product_name", "b.name AS branch_name",
}

// ListMovements returns one page of movements newest first and the total count.
func (r *ReportRepo) ListMovements(ctx context.Context, f reports.MovementFilter) ([]reports.MovementView, int64, error) {
	countSQL, countArgs, err := r.movementsQuery(f, "COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	q := r.movementsQuery(f, movementViewColumns...).
		OrderBy("m.created_at DESC", "m.id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	items := []reports.MovementView{}
	if err := r.selectInto(ctx, &items, q); err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	return items, total, nil
}

// DashboardTotals counts branches and products and sums stock and profit.
func (r *ReportRepo) DashboardTotals(ctx context.Context, scope security.Scope) (reports.Dashboard, error) {
	var d reports.Dashboard

	queries := []struct {
		name string
		q    squirrel.SelectBuilder
		dst  any
	}{
		{
			"branches",
			applyScope(r.builder.Select("COUNT(*)").From("branches b"), scope, "b.account_id", "b.id"),
			&d.Branches,
		},
		{
			"products",
			applyScope(r.builder.Select("COUNT(*)").From("products p"), scope, "p.account_id", "p.branch_id"),
			&d.Products,
		},
		{
			"stock",
			applyScope(r.builder.Select("COALESCE(SUM(l.quantity), 0)::bigint").
				From("stock_levels l").
				Join("products p ON p.id = l.product_id"), scope, "p.account_id", "l.branch_id"),
			&d.TotalStock,
		},
		{
			"profit",
			applyScope(r.builder.Select("COALESCE(SUM(m.profit), 0)").From("stock_movements m"), scope, "m.account_id", "m.branch_id"),
			&d.TotalProfit,
		},
	}

	querier := r.txm.GetQuerier(ctx)
	for _, item := range queries {
		sql, args, err := item.q.ToSql()
		if err != nil {
			return d, fmt.Errorf("build %s query: %w", item.name, err)
		}
		if err := querier.QueryRow(ctx, sql, args...).Scan(item.dst); err != nil {
			return d, fmt.Errorf("dashboard %s: %w", item.name, err)
		}
	}
	return d, nil
}

// AccountTotals counts the account's users and catalogs, values its stock at
// cost and sums OUT selling amounts created in [from, to).
func (r *ReportRepo) AccountTotals(ctx context.Context, accountID id.ID, from, to time.Time) (reports.AccountOverview, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE account_id = $1) AS users,
			(SELECT COUNT(*) FROM users WHERE account_id = $1 AND role = 'manager') AS managers,
			(SELECT COUNT(*) FROM users WHERE account_id = $1 AND role = 'staff') AS staff,
			(SELECT COUNT(*) FROM branches WHERE account_id = $1) AS branches,
			(SELECT COUNT(*) FROM products WHERE account_id = $1) AS products,
			(SELECT COALESCE(SUM(p.cost_price * l.quantity), 0)
			   FROM stock_levels l
			   JOIN products p ON p.id = l.product_id
			  WHERE p.account_id = $1) AS stock_value,
			(SELECT COALESCE(SUM(selling_amount), 0)
			   FROM stock_movements
			  WHERE account_id = $1 AND movement_type = 'OUT'
			    AND created_at >= $2 AND created_at < $3) AS monthly_sales
	`

	var o reports.AccountOverview
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &o, query, accountID, from, to); err != nil {
		return o, fmt.Errorf("account totals: %w", err)
	}
	o.AccountID = accountID
	return o, nil
}

func (r *ReportRepo) selectInto(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...)
}
