package report_repo

import (
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/domain/reports"
)

func TestApplyScope(t *testing.T) {
	accountID := id.New()
	branchID := id.New()
	base := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).Select("1").From("t")

	tests := []struct {
		name      string
		scope     security.Scope
		branchCol string
		wantWhere string
		wantArgs  []any
	}{
		{"all", security.All(), "branch_id", "", nil},
		{"account", security.ForAccount(accountID), "branch_id", " WHERE account_id = $1", []any{accountID}},
		{"branch", security.ForBranch(accountID, branchID), "branch_id", " WHERE account_id = $1 AND branch_id = $2", []any{accountID, branchID}},
		{"branch on account-only table", security.ForBranch(accountID, branchID), "", " WHERE account_id = $1", []any{accountID}},
		{"none", security.None(), "branch_id", " WHERE FALSE", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := applyScope(base, tt.scope, "account_id", tt.branchCol).ToSql()
			require.NoError(t, err)
			assert.Equal(t, "SELECT 1 FROM t"+tt.wantWhere, sql)
			assert.Equal(t, len(tt.wantArgs), len(args))
			if len(tt.wantArgs) > 0 {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestStockByKeyQuery_SumsSignedDeltas(t *testing.T) {
	repo := NewReportRepo(nil)

	sql, _, err := repo.stockByKeyQuery(security.All()).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "SUM(CASE WHEN m.movement_type = 'IN' THEN m.quantity ELSE -m.quantity END)::bigint AS quantity")
	assert.Contains(t, sql, "GROUP BY m.product_id, p.name, m.branch_id, b.name, p.cost_price")
}

func TestSalesByBranchQuery_HalfOpenRange(t *testing.T) {
	repo := NewReportRepo(nil)
	accountID := id.New()
	from := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	sql, args, err := repo.salesByBranchQuery(security.ForAccount(accountID), from, to).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "m.movement_type = $1 AND m.created_at >= $2 AND m.created_at < $3 AND m.account_id = $4")
	assert.Equal(t, []any{entity.MovementOut, from, to, accountID}, args)
}

func TestMovementsQuery_Filters(t *testing.T) {
	repo := NewReportRepo(nil)
	accountID := id.New()
	productID := id.New()
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.movementsQuery(reports.MovementFilter{
		Scope:     security.ForAccount(accountID),
		ProductID: &productID,
		Type:      entity.MovementIn,
		Since:     &since,
	}, "COUNT(*)").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE m.account_id = $1 AND m.product_id = $2 AND m.movement_type = $3 AND m.created_at >= $4")
	assert.Equal(t, []any{accountID, productID, entity.MovementIn, since}, args)
}
