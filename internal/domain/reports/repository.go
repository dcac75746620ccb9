package reports

import (
	"context"
	"time"

	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
)

// Repository defines report data access.
// Scope kinds other than none are applied by the repository; callers never
// pass a none scope.
type Repository interface {
	// StockByKey sums signed movement deltas per (product, branch).
	// Items carry the product cost price; InventoryValue is left zero.
	StockByKey(ctx context.Context, scope security.Scope) ([]StockSummaryItem, error)

	// ListBranches returns the branches in scope ordered by name.
	ListBranches(ctx context.Context, scope security.Scope) ([]BranchRow, error)

	// SalesByBranch aggregates OUT movements created in [from, to) per branch.
	// Branches without sales are omitted.
	SalesByBranch(ctx context.Context, scope security.Scope, from, to time.Time) ([]DailyReportRow, error)

	// ListMovements returns one page of movements newest first and the total count.
	ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, int64, error)

	// DashboardTotals counts branches and products and sums stock and profit.
	DashboardTotals(ctx context.Context, scope security.Scope) (Dashboard, error)

	// AccountTotals counts the account's users and catalogs, values its
	// stock at cost and sums OUT selling amounts created in [from, to).
	AccountTotals(ctx context.Context, accountID id.ID, from, to time.Time) (AccountOverview, error)
}
