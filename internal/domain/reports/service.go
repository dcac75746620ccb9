package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/tx"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/audit"
)

// DateLayout is the calendar date format of daily reports.
const DateLayout = "2006-01-02"

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Config holds query layer settings.
type Config struct {
	// RecentWindow is how far back ListRecentMovements looks.
	RecentWindow time.Duration

	// Location is the time zone calendar days and months are cut in.
	Location *time.Location
}

// DefaultConfig returns a 24h window in UTC.
func DefaultConfig() Config {
	return Config{RecentWindow: 24 * time.Hour, Location: time.UTC}
}

// Service provides report generation operations.
// Reports built from more than one query read them from one snapshot.
type Service struct {
	repo   Repository
	logs   audit.Reader
	txm    tx.ReadOnlyManager
	config Config
	now    func() time.Time
}

// NewService creates a new reports service.
func NewService(repo Repository, logs audit.Reader, txm tx.ReadOnlyManager, config Config) *Service {
	if config.RecentWindow <= 0 {
		config.RecentWindow = DefaultConfig().RecentWindow
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Service{
		repo:   repo,
		logs:   logs,
		txm:    txm,
		config: config,
		now:    time.Now,
	}
}

// GetStockSummary returns the stock on hand and its value at cost for scope.
func (s *Service) GetStockSummary(ctx context.Context, scope security.Scope) (*StockSummary, error) {
	summary := &StockSummary{Items: []StockSummaryItem{}, TotalValue: types.Zero()}
	if scope.Kind == security.ScopeNone {
		return summary, nil
	}

	items, err := s.repo.StockByKey(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("stock by key: %w", err)
	}

	for i := range items {
		items[i].InventoryValue = types.RoundMoney(types.MulQty(items[i].CostPrice, items[i].Quantity))
		summary.TotalQuantity += items[i].Quantity
		summary.TotalValue = summary.TotalValue.Add(items[i].InventoryValue)
	}
	summary.Items = items

	return summary, nil
}

// ParseDate parses a calendar date in the report time zone.
// An empty value means today.
func (s *Service) ParseDate(value string) (time.Time, error) {
	if value == "" {
		now := s.now().In(s.config.Location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location), nil
	}
	d, err := time.ParseInLocation(DateLayout, value, s.config.Location)
	if err != nil {
		return time.Time{}, apperror.NewValidation("date must be YYYY-MM-DD").
			WithDetail("field", "date").
			WithDetail("value", value)
	}
	return d, nil
}

// GetDailyReport aggregates the OUT movements created on the calendar day
// of date per branch in scope. Branches without sales report zeros.
func (s *Service) GetDailyReport(ctx context.Context, date time.Time, scope security.Scope) (*DailyReport, error) {
	local := date.In(s.config.Location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.config.Location)
	to := from.AddDate(0, 0, 1)

	report := &DailyReport{
		Date:        from.Format(DateLayout),
		TimeZone:    s.config.Location.String(),
		Rows:        []DailyReportRow{},
		TotalSales:  types.Zero(),
		TotalProfit: types.Zero(),
	}
	if scope.Kind == security.ScopeNone {
		return report, nil
	}

	var (
		branches []BranchRow
		sales    []DailyReportRow
	)
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if branches, err = s.repo.ListBranches(ctx, scope); err != nil {
			return fmt.Errorf("list branches: %w", err)
		}
		if sales, err = s.repo.SalesByBranch(ctx, scope, from.UTC(), to.UTC()); err != nil {
			return fmt.Errorf("sales by branch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byBranch := make(map[id.ID]DailyReportRow, len(sales))
	for _, row := range sales {
		byBranch[row.BranchID] = row
	}

	for _, b := range branches {
		row, ok := byBranch[b.ID]
		if !ok {
			row = DailyReportRow{BranchID: b.ID, TotalSales: types.Zero(), TotalProfit: types.Zero()}
		}
		row.BranchName = b.Name
		report.Rows = append(report.Rows, row)
		report.TotalSales = report.TotalSales.Add(row.TotalSales)
		report.TotalProfit = report.TotalProfit.Add(row.TotalProfit)
		report.TotalQuantity += row.TotalQuantity
	}

	return report, nil
}

// ListMovements returns movements in the filter's scope, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) (*MovementPage, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageSize
	case filter.Limit > maxPageSize:
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	page := &MovementPage{Items: []MovementView{}, Limit: filter.Limit, Offset: filter.Offset}
	if filter.Scope.Kind == security.ScopeNone {
		return page, nil
	}

	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		items, total, err := s.repo.ListMovements(ctx, filter)
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		page.Items = items
		page.TotalCount = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ListRecentMovements returns movements created within the recent window.
func (s *Service) ListRecentMovements(ctx context.Context, scope security.Scope, limit int) (*MovementPage, error) {
	since := s.now().Add(-s.config.RecentWindow)
	return s.ListMovements(ctx, MovementFilter{Scope: scope, Since: &since, Limit: limit})
}

// GetMovementLogs returns the log of a movement, newest first. The movement
// may already be deleted; visibility is checked against the logged snapshot.
func (s *Service) GetMovementLogs(ctx context.Context, scope security.Scope, movementID id.ID) ([]entity.MovementLog, error) {
	logs, err := s.logs.ListByMovement(ctx, movementID)
	if err != nil {
		return nil, fmt.Errorf("list movement logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, apperror.NewNotFound("stock_movement", movementID.String())
	}

	var snap entity.StockMovement
	if err := json.Unmarshal(logs[0].Snapshot, &snap); err != nil {
		return nil, fmt.Errorf("decode movement snapshot: %w", err)
	}
	if !scope.Includes(snap.AccountID, snap.BranchID) {
		// Same answer as for an unknown id.
		return nil, apperror.NewNotFound("stock_movement", movementID.String())
	}

	return logs, nil
}

// GetDashboard returns the headline totals of scope.
func (s *Service) GetDashboard(ctx context.Context, scope security.Scope) (*Dashboard, error) {
	if scope.Kind == security.ScopeNone {
		return &Dashboard{TotalProfit: types.Zero()}, nil
	}
	var d Dashboard
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if d, err = s.repo.DashboardTotals(ctx, scope); err != nil {
			return fmt.Errorf("dashboard totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetAccountOverview returns the settings view of an account.
// Monthly sales cover the current calendar month in the report time zone.
func (s *Service) GetAccountOverview(ctx context.Context, scope security.Scope, accountID id.ID) (*AccountOverview, error) {
	if err := scope.RequireManager(); err != nil {
		return nil, err
	}
	if !scope.IncludesAccount(accountID) {
		return nil, apperror.NewForbidden("account is outside of your access scope").
			WithDetail("account_id", accountID.String())
	}

	now := s.now().In(s.config.Location)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.config.Location)
	to := from.AddDate(0, 1, 0)

	var o AccountOverview
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.repo.AccountTotals(ctx, accountID, from.UTC(), to.UTC()); err != nil {
			return fmt.Errorf("account totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.AccountID = accountID
	o.StockValue = types.RoundMoney(o.StockValue)
	return &o, nil
}
