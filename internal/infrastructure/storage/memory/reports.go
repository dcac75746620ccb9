package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/reports"
)

// ReportRepo implements reports.Repository over the in-memory tables.
type ReportRepo struct{ s *Store }

func (r *ReportRepo) StockByKey(_ context.Context, scope security.Scope) ([]reports.StockSummaryItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sums := make(map[entity.StockKey]int64)
	for _, m := range r.s.movements {
		if scope.Includes(m.AccountID, m.BranchID) {
			sums[m.Key()] += m.SignedQuantity()
		}
	}

	keys := make([]entity.StockKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]reports.StockSummaryItem, 0, len(keys))
	for _, k := range keys {
		p := r.s.products[k.ProductID]
		out = append(out, reports.StockSummaryItem{
			ProductID:   k.ProductID,
			ProductName: p.Name,
			BranchID:    k.BranchID,
			BranchName:  r.s.branches[k.BranchID].Name,
			Quantity:    sums[k],
			CostPrice:   p.CostPrice,
		})
	}
	return out, nil
}

func (r *ReportRepo) ListBranches(_ context.Context, scope security.Scope) ([]reports.BranchRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]reports.BranchRow, 0, len(r.s.branches))
	for _, b := range r.s.branches {
		if scope.Includes(b.AccountID, b.ID) {
			out = append(out, reports.BranchRow{ID: b.ID, Name: b.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (r *ReportRepo) SalesByBranch(_ context.Context, scope security.Scope, from, to time.Time) ([]reports.DailyReportRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := make(map[id.ID]*reports.DailyReportRow)
	for _, m := range r.s.movements {
		if m.Type != entity.MovementOut || !scope.Includes(m.AccountID, m.BranchID) {
			continue
		}
		if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
			continue
		}
		row, ok := rows[m.BranchID]
		if !ok {
			row = &reports.DailyReportRow{BranchID: m.BranchID, TotalSales: types.Zero(), TotalProfit: types.Zero()}
			rows[m.BranchID] = row
		}
		if m.SellingAmount != nil {
			row.TotalSales = row.TotalSales.Add(*m.SellingAmount)
		}
		row.TotalProfit = row.TotalProfit.Add(m.Profit)
		row.TotalQuantity += m.Quantity
		row.Sales++
	}

	out := make([]reports.DailyReportRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (r *ReportRepo) ListMovements(_ context.Context, f reports.MovementFilter) ([]reports.MovementView, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []reports.MovementView
	for _, m := range r.s.movements {
		if !movementMatches(m, f) {
			continue
		}
		all = append(all, reports.MovementView{
			StockMovement: m,
			ProductName:   r.s.products[m.ProductID].Name,
			BranchName:    r.s.branches[m.BranchID].Name,
		})
	}
	// UUIDv7 ids break created_at ties in creation order.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return id.Compare(all[i].ID, all[j].ID) > 0
	})

	total := int64(len(all))
	start := min(f.Offset, len(all))
	end := len(all)
	if f.Limit > 0 {
		end = min(start+f.Limit, len(all))
	}
	return all[start:end], total, nil
}

func movementMatches(m entity.StockMovement, f reports.MovementFilter) bool {
	switch {
	case !f.Scope.Includes(m.AccountID, m.BranchID):
		return false
	case f.ProductID != nil && m.ProductID != *f.ProductID:
		return false
	case f.BranchID != nil && m.BranchID != *f.BranchID:
		return false
	case f.Type != "" && m.Type != f.Type:
		return false
	case f.Since != nil && m.CreatedAt.Before(*f.Since):
		return false
	case f.Until != nil && !m.CreatedAt.Before(*f.Until):
		return false
	}
	return true
}

func (r *ReportRepo) DashboardTotals(_ context.Context, scope security.Scope) (reports.Dashboard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := reports.Dashboard{TotalProfit: types.Zero()}
	for _, b := range r.s.branches {
		if scope.Includes(b.AccountID, b.ID) {
			d.Branches++
		}
	}
	for _, p := range r.s.products {
		if scope.Includes(p.AccountID, p.BranchID) {
			d.Products++
		}
	}
	for key, level := range r.s.levels {
		p := r.s.products[key.ProductID]
		if scope.Includes(p.AccountID, key.BranchID) {
			d.TotalStock += level.Quantity
		}
	}
	for _, m := range r.s.movements {
		if scope.Includes(m.AccountID, m.BranchID) {
			d.TotalProfit = d.TotalProfit.Add(m.Profit)
		}
	}
	return d, nil
}

func (r *ReportRepo) AccountTotals(_ context.Context, accountID id.ID, from, to time.Time) (reports.AccountOverview, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o := reports.AccountOverview{StockValue: types.Zero(), MonthlySales: types.Zero()}
	for _, u := range r.s.users {
		if u.AccountID == nil || *u.AccountID != accountID {
			continue
		}
		o.Users++
		switch u.Role {
		case security.RoleManager:
			o.Managers++
		case security.RoleStaff:
			o.Staff++
		}
	}
	for _, b := range r.s.branches {
		if b.AccountID == accountID {
			o.Branches++
		}
	}
	for _, p := range r.s.products {
		if p.AccountID == accountID {
			o.Products++
		}
	}
	for key, level := range r.s.levels {
		p, ok := r.s.products[key.ProductID]
		if ok && p.AccountID == accountID {
			o.StockValue = o.StockValue.Add(types.MulQty(p.CostPrice, level.Quantity))
		}
	}
	for _, m := range r.s.movements {
		if m.AccountID != accountID || m.Type != entity.MovementOut || m.SellingAmount == nil {
			continue
		}
		if !m.CreatedAt.Before(from) && m.CreatedAt.Before(to) {
			o.MonthlySales = o.MonthlySales.Add(*m.SellingAmount)
		}
	}
	return o, nil
}
