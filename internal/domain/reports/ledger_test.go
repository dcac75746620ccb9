package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/reports"
	"retailstock/internal/infrastructure/storage/memory"
)

func TestReportsFollowTheLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	actor := entity.Actor{ID: "u1", Name: "Aline"}

	account := id.New()
	remera, kacyiru := id.New(), id.New()
	sugar, rice := id.New(), id.New()
	store.AddBranch(ledger.BranchRef{ID: remera, AccountID: account, Name: "Remera"})
	store.AddBranch(ledger.BranchRef{ID: kacyiru, AccountID: account, Name: "Kacyiru"})
	store.AddProduct(ledger.ProductRef{ID: sugar, AccountID: account, BranchID: remera, Name: "Sugar", CostPrice: types.MustMoney("5.00")})
	store.AddProduct(ledger.ProductRef{ID: rice, AccountID: account, BranchID: kacyiru, Name: "Rice", CostPrice: types.MustMoney("2.50")})
	store.AddUser(account, security.RoleManager)
	store.AddUser(account, security.RoleStaff)

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	engine := ledger.NewEngine(store, store.Stock(), store.Movements(), store.Logs(), store,
		ledger.WithClock(func() time.Time { return now }))

	move := func(product, branch id.ID, typ entity.MovementType, qty int64, amount string) ledger.Result {
		f := ledger.MovementFields{ProductID: product, BranchID: branch, Type: typ, Quantity: qty}
		if typ == entity.MovementOut {
			m := types.MustMoney(amount)
			cash := entity.PaymentCash
			f.SellingAmount, f.PaymentMethod = &m, &cash
		}
		res, err := engine.CreateMovement(ctx, ledger.CreateRequest{MovementFields: f}, actor)
		require.NoError(t, err)
		return res
	}

	move(sugar, remera, entity.MovementIn, 100, "")
	move(sugar, remera, entity.MovementOut, 30, "200.00")
	move(rice, kacyiru, entity.MovementIn, 8, "")
	extra := move(sugar, remera, entity.MovementIn, 5, "")
	_, err := engine.DeleteMovement(ctx, extra.MovementID, actor)
	require.NoError(t, err)

	svc := reports.NewService(store.Reports(), store.Logs(), store, reports.Config{RecentWindow: time.Hour, Location: time.UTC})

	t.Run("stock summary matches levels", func(t *testing.T) {
		summary, err := svc.GetStockSummary(ctx, security.ForAccount(account))
		require.NoError(t, err)
		require.Len(t, summary.Items, 2)
		for _, item := range summary.Items {
			q, _ := store.Level(entity.StockKey{ProductID: item.ProductID, BranchID: item.BranchID})
			assert.Equal(t, q, item.Quantity, item.ProductName)
		}
		assert.EqualValues(t, 78, summary.TotalQuantity)
		assert.True(t, types.MustMoney("370").Equal(summary.TotalValue), "got %s", summary.TotalValue)
	})

	t.Run("branch scope", func(t *testing.T) {
		summary, err := svc.GetStockSummary(ctx, security.ForBranch(account, kacyiru))
		require.NoError(t, err)
		require.Len(t, summary.Items, 1)
		assert.Equal(t, "Rice", summary.Items[0].ProductName)
	})

	t.Run("daily report", func(t *testing.T) {
		report, err := svc.GetDailyReport(ctx, now, security.ForAccount(account))
		require.NoError(t, err)
		require.Len(t, report.Rows, 2)
		assert.Equal(t, "Kacyiru", report.Rows[0].BranchName)
		assert.True(t, report.Rows[0].TotalSales.IsZero())
		assert.Equal(t, "Remera", report.Rows[1].BranchName)
		assert.True(t, types.MustMoney("200").Equal(report.Rows[1].TotalSales))
		assert.True(t, types.MustMoney("50").Equal(report.Rows[1].TotalProfit))
		assert.EqualValues(t, 30, report.Rows[1].TotalQuantity)

		yesterday, err := svc.GetDailyReport(ctx, now.AddDate(0, 0, -1), security.ForAccount(account))
		require.NoError(t, err)
		assert.True(t, yesterday.TotalSales.IsZero())
	})

	t.Run("deleted movement keeps its log", func(t *testing.T) {
		logs, err := svc.GetMovementLogs(ctx, security.All(), extra.MovementID)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, entity.LogActionDelete, logs[0].Action)
	})

	t.Run("dashboard and overview", func(t *testing.T) {
		dash, err := svc.GetDashboard(ctx, security.All())
		require.NoError(t, err)
		assert.EqualValues(t, 2, dash.Branches)
		assert.EqualValues(t, 78, dash.TotalStock)
		assert.True(t, types.MustMoney("50").Equal(dash.TotalProfit))

		admin := security.All()
		admin.Role = security.RoleAdmin
		overview, err := svc.GetAccountOverview(ctx, admin, account)
		require.NoError(t, err)
		assert.EqualValues(t, 2, overview.Users)
		assert.EqualValues(t, 1, overview.Staff)
		assert.True(t, types.MustMoney("370").Equal(overview.StockValue))
	})
}
