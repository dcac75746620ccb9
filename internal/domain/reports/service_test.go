package reports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/types"
)

type fakeRepo struct {
	stock    []StockSummaryItem
	branches []BranchRow
	sales    []DailyReportRow
	moves    []MovementView

	gotFrom, gotTo time.Time
	gotFilter      MovementFilter
	overview       AccountOverview
	calls          int
	unsnapshotted  int
}

func (r *fakeRepo) track(ctx context.Context) {
	r.calls++
	if ctx.Value(snapshotKey{}) == nil {
		r.unsnapshotted++
	}
}

type snapshotKey struct{}

// snapshotTx marks ctx so the fake repo can tell reads made inside ReadOnly.
type snapshotTx struct{ readOnly int }

func (m *snapshotTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *snapshotTx) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.readOnly++
	return fn(context.WithValue(ctx, snapshotKey{}, true))
}

func (r *fakeRepo) StockByKey(ctx context.Context, _ security.Scope) ([]StockSummaryItem, error) {
	r.track(ctx)
	return append([]StockSummaryItem(nil), r.stock...), nil
}

func (r *fakeRepo) ListBranches(ctx context.Context, _ security.Scope) ([]BranchRow, error) {
	r.track(ctx)
	return r.branches, nil
}

func (r *fakeRepo) SalesByBranch(ctx context.Context, _ security.Scope, from, to time.Time) ([]DailyReportRow, error) {
	r.track(ctx)
	r.gotFrom, r.gotTo = from, to
	return r.sales, nil
}

func (r *fakeRepo) ListMovements(ctx context.Context, f MovementFilter) ([]MovementView, int64, error) {
	r.track(ctx)
	r.gotFilter = f
	return r.moves, int64(len(r.moves)), nil
}

func (r *fakeRepo) DashboardTotals(ctx context.Context, _ security.Scope) (Dashboard, error) {
	r.track(ctx)
	return Dashboard{Branches: 2, Products: 3, TotalStock: 40, TotalProfit: types.MustMoney("12.50")}, nil
}

func (r *fakeRepo) AccountTotals(ctx context.Context, _ id.ID, from, to time.Time) (AccountOverview, error) {
	r.track(ctx)
	r.gotFrom, r.gotTo = from, to
	return r.overview, nil
}

type fakeLogs map[id.ID][]entity.MovementLog

func (l fakeLogs) ListByMovement(_ context.Context, movementID id.ID) ([]entity.MovementLog, error) {
	return l[movementID], nil
}

var kigali = time.FixedZone("CAT", 2*60*60)

func newTestService(repo *fakeRepo, logs fakeLogs, now time.Time) *Service {
	s := NewService(repo, logs, &snapshotTx{}, Config{RecentWindow: 24 * time.Hour, Location: kigali})
	s.now = func() time.Time { return now }
	return s
}

func TestGetStockSummary_ValuesAtCost(t *testing.T) {
	repo := &fakeRepo{stock: []StockSummaryItem{
		{ProductID: id.New(), Quantity: 70, CostPrice: types.MustMoney("5.00")},
		{ProductID: id.New(), Quantity: 3, CostPrice: types.MustMoney("1.25")},
		{ProductID: id.New(), Quantity: 0, CostPrice: types.MustMoney("9.99")},
	}}
	svc := newTestService(repo, nil, time.Now())

	got, err := svc.GetStockSummary(context.Background(), security.All())
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.True(t, types.MustMoney("350").Equal(got.Items[0].InventoryValue))
	assert.True(t, types.MustMoney("3.75").Equal(got.Items[1].InventoryValue))
	assert.True(t, got.Items[2].InventoryValue.IsZero())
	assert.EqualValues(t, 73, got.TotalQuantity)
	assert.True(t, types.MustMoney("353.75").Equal(got.TotalValue))
}

func TestNoneScopeNeverQueries(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, nil, time.Now())
	ctx := context.Background()

	summary, err := svc.GetStockSummary(ctx, security.None())
	require.NoError(t, err)
	assert.Empty(t, summary.Items)

	daily, err := svc.GetDailyReport(ctx, time.Now(), security.None())
	require.NoError(t, err)
	assert.Empty(t, daily.Rows)

	page, err := svc.ListMovements(ctx, MovementFilter{Scope: security.None()})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	dash, err := svc.GetDashboard(ctx, security.None())
	require.NoError(t, err)
	assert.Zero(t, dash.Branches)

	assert.Zero(t, repo.calls)
}

func TestGetDailyReport(t *testing.T) {
	b1, b2 := id.New(), id.New()
	repo := &fakeRepo{
		branches: []BranchRow{{ID: b1, Name: "Kacyiru"}, {ID: b2, Name: "Remera"}},
		sales: []DailyReportRow{{
			BranchID:      b2,
			TotalSales:    types.MustMoney("200.00"),
			TotalProfit:   types.MustMoney("50.00"),
			TotalQuantity: 30,
			Sales:         1,
		}},
	}
	svc := newTestService(repo, nil, time.Now())

	date, err := svc.ParseDate("2026-03-14")
	require.NoError(t, err)

	got, err := svc.GetDailyReport(context.Background(), date, security.All())
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14", got.Date)
	assert.Equal(t, time.Date(2026, 3, 13, 22, 0, 0, 0, time.UTC), repo.gotFrom)
	assert.Equal(t, time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC), repo.gotTo)

	require.Len(t, got.Rows, 2)
	assert.Equal(t, "Kacyiru", got.Rows[0].BranchName)
	assert.True(t, got.Rows[0].TotalSales.IsZero())
	assert.Zero(t, got.Rows[0].TotalQuantity)
	assert.Equal(t, "Remera", got.Rows[1].BranchName)
	assert.EqualValues(t, 30, got.TotalQuantity)
	assert.True(t, types.MustMoney("50").Equal(got.TotalProfit))
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC) // already the 15th in CAT
	svc := newTestService(&fakeRepo{}, nil, now)

	today, err := svc.ParseDate("")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", today.Format(DateLayout))

	_, err = svc.ParseDate("14/03/2026")
	assert.True(t, apperror.IsValidation(err))
}

func TestListMovements_Paging(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		offset    int
		wantLimit int
		wantOff   int
	}{
		{"default", 0, 0, defaultPageSize, 0},
		{"capped", 10000, 5, maxPageSize, 5},
		{"negative offset", 10, -1, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{}
			svc := newTestService(repo, nil, time.Now())
			page, err := svc.ListMovements(context.Background(), MovementFilter{Scope: security.All(), Limit: tt.limit, Offset: tt.offset})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, repo.gotFilter.Limit)
			assert.Equal(t, tt.wantOff, page.Offset)
		})
	}
}

func TestListRecentMovements_UsesWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{}
	svc := newTestService(repo, nil, now)

	_, err := svc.ListRecentMovements(context.Background(), security.All(), 0)
	require.NoError(t, err)
	require.NotNil(t, repo.gotFilter.Since)
	assert.Equal(t, now.Add(-24*time.Hour), *repo.gotFilter.Since)
}

func TestGetMovementLogs_ChecksSnapshotScope(t *testing.T) {
	account, branch := id.New(), id.New()
	movementID := id.New()
	snap, err := json.Marshal(entity.StockMovement{ID: movementID, AccountID: account, BranchID: branch})
	require.NoError(t, err)

	logs := fakeLogs{movementID: {{ID: id.New(), MovementID: movementID, Action: entity.LogActionDelete, Snapshot: snap}}}
	svc := newTestService(&fakeRepo{}, logs, time.Now())
	ctx := context.Background()

	got, err := svc.GetMovementLogs(ctx, security.ForBranch(account, branch), movementID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.GetMovementLogs(ctx, security.ForAccount(id.New()), movementID)
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.GetMovementLogs(ctx, security.All(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestGetAccountOverview(t *testing.T) {
	account := id.New()
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC) // April 1st in CAT
	repo := &fakeRepo{overview: AccountOverview{Users: 3, StockValue: types.MustMoney("10.005")}}
	svc := newTestService(repo, nil, now)
	ctx := context.Background()

	manager := security.ForAccount(account)
	manager.Role = security.RoleManager

	got, err := svc.GetAccountOverview(ctx, manager, account)
	require.NoError(t, err)
	assert.Equal(t, account, got.AccountID)
	assert.EqualValues(t, 3, got.Users)
	assert.True(t, types.MustMoney("10.01").Equal(got.StockValue))
	assert.Equal(t, time.Date(2026, 3, 31, 22, 0, 0, 0, time.UTC), repo.gotFrom)
	assert.Equal(t, time.Date(2026, 4, 30, 22, 0, 0, 0, time.UTC), repo.gotTo)

	_, err = svc.GetAccountOverview(ctx, manager, id.New())
	assert.Error(t, err)

	staff := security.ForBranch(account, id.New())
	staff.Role = security.RoleStaff
	_, err = svc.GetAccountOverview(ctx, staff, account)
	assert.Error(t, err)
}

func TestMultiQueryReportsReadOneSnapshot(t *testing.T) {
	account, branchID := id.New(), id.New()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{branches: []BranchRow{{ID: branchID, Name: "Remera"}}}
	svc := newTestService(repo, nil, now)
	ctx := context.Background()

	manager := security.ForAccount(account)
	manager.Role = security.RoleManager

	_, err := svc.GetDailyReport(ctx, now, manager)
	require.NoError(t, err)
	_, err = svc.ListMovements(ctx, MovementFilter{Scope: manager})
	require.NoError(t, err)
	_, err = svc.GetDashboard(ctx, manager)
	require.NoError(t, err)
	_, err = svc.GetAccountOverview(ctx, manager, account)
	require.NoError(t, err)

	assert.Equal(t, 5, repo.calls)
	assert.Zero(t, repo.unsnapshotted, "report query ran outside the read-only transaction")
	assert.Equal(t, 4, svc.txm.(*snapshotTx).readOnly)
}
