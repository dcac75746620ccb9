// Package reports is the read-only query layer over the ledger: stock
// summaries, daily sales, movement listings and dashboard totals.
package reports

import (
	"time"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/types"
)

// --- Stock summary ---

// StockSummaryItem is the on-hand quantity of one product at one branch.
// Quantity is the sum of signed movement deltas for the key.
type StockSummaryItem struct {
	ProductID      id.ID       `db:"product_id" json:"productId"`
	ProductName    string      `db:"product_name" json:"productName"`
	BranchID       id.ID       `db:"branch_id" json:"branchId"`
	BranchName     string      `db:"branch_name" json:"branchName"`
	Quantity       int64       `db:"quantity" json:"quantity"`
	CostPrice      types.Money `db:"cost_price" json:"costPrice"`
	InventoryValue types.Money `db:"-" json:"inventoryValue"`
}

// StockSummary is the stock-on-hand report for a scope.
type StockSummary struct {
	Items         []StockSummaryItem `json:"items"`
	TotalQuantity int64              `json:"totalQuantity"`
	TotalValue    types.Money        `json:"totalValue"`
}

// --- Daily report ---

// DailyReportRow aggregates the OUT movements of one branch on one day.
type DailyReportRow struct {
	BranchID      id.ID       `db:"branch_id" json:"branchId"`
	BranchName    string      `db:"branch_name" json:"branchName"`
	TotalSales    types.Money `db:"total_sales" json:"totalSales"`
	TotalProfit   types.Money `db:"total_profit" json:"totalProfit"`
	TotalQuantity int64       `db:"total_quantity" json:"totalQuantity"`
	Sales         int64       `db:"sales" json:"sales"`
}

// DailyReport is the sales report of one calendar day.
type DailyReport struct {
	Date          string           `json:"date"`
	TimeZone      string           `json:"timeZone"`
	Rows          []DailyReportRow `json:"rows"`
	TotalSales    types.Money      `json:"totalSales"`
	TotalProfit   types.Money      `json:"totalProfit"`
	TotalQuantity int64            `json:"totalQuantity"`
}

// BranchRow names a branch visible in a scope.
type BranchRow struct {
	ID   id.ID  `db:"id"`
	Name string `db:"name"`
}

// --- Movements ---

// MovementView is a movement with its catalog names resolved.
type MovementView struct {
	entity.StockMovement
	ProductName string `db:"product_name" json:"productName"`
	BranchName  string `db:"branch_name" json:"branchName"`
}

// MovementFilter restricts ListMovements. Zero fields are not applied.
type MovementFilter struct {
	Scope     security.Scope
	ProductID *id.ID
	BranchID  *id.ID
	Type      entity.MovementType
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// MovementPage is one page of movements, newest first.
type MovementPage struct {
	Items      []MovementView `json:"items"`
	TotalCount int64          `json:"totalCount"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// --- Dashboard ---

// Dashboard holds the headline totals of a scope.
type Dashboard struct {
	Branches    int64       `db:"branches" json:"branches"`
	Products    int64       `db:"products" json:"products"`
	TotalStock  int64       `db:"total_stock" json:"totalStock"`
	TotalProfit types.Money `db:"total_profit" json:"totalProfit"`
}

// AccountOverview is the settings view of one account.
type AccountOverview struct {
	AccountID    id.ID       `db:"-" json:"accountId"`
	Users        int64       `db:"users" json:"users"`
	Managers     int64       `db:"managers" json:"managers"`
	Staff        int64       `db:"staff" json:"staff"`
	Branches     int64       `db:"branches" json:"branches"`
	Products     int64       `db:"products" json:"products"`
	StockValue   types.Money `db:"stock_value" json:"stockValue"`
	MonthlySales types.Money `db:"monthly_sales" json:"monthlySales"`
}
