package memory

import (
	"context"
	"sort"
	"strings"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/domain"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
)

var (
	_ account.Repository = (*AccountRepo)(nil)
	_ branch.Repository  = (*BranchRepo)(nil)
	_ product.Repository = (*ProductRepo)(nil)
)

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Branches returns the branch repository.
func (s *Store) Branches() *BranchRepo { return &BranchRepo{s: s} }

// Products returns the product repository.
func (s *Store) Products() *ProductRepo { return &ProductRepo{s: s} }

// --- accounts ---

// AccountRepo implements account.Repository.
type AccountRepo struct{ s *Store }

func (r *AccountRepo) Create(ctx context.Context, a *account.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; ok {
		return apperror.NewDuplicate("account", "id", a.ID.String())
	}
	r.s.accounts[a.ID] = *a
	accountID := a.ID
	r.s.onRollback(ctx, func() { delete(r.s.accounts, accountID) })
	return nil
}

func (r *AccountRepo) GetByID(_ context.Context, accountID id.ID) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		return nil, apperror.NewNotFound("account", accountID.String())
	}
	return &a, nil
}

func (r *AccountRepo) Delete(ctx context.Context, accountID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.accounts[accountID]
	if !ok {
		return apperror.NewNotFound("account", accountID.String())
	}
	delete(r.s.accounts, accountID)
	r.s.onRollback(ctx, func() { r.s.accounts[accountID] = prev })
	return nil
}

func (r *AccountRepo) List(_ context.Context, f domain.ListFilter) (domain.ListResult[*account.Account], error) {
	if err := rejectAdvanced(f); err != nil {
		return domain.ListResult[*account.Account]{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*account.Account
	for _, a := range r.s.accounts {
		if f.AccountID != nil && a.ID != *f.AccountID {
			continue
		}
		if !matchesCommon(f, a.ID, a.Name) {
			continue
		}
		a := a
		rows = append(rows, &a)
	}
	return page(rows, f, func(a *account.Account) (string, id.ID) { return a.Name, a.ID }), nil
}

func (r *AccountRepo) Exists(_ context.Context, accountID id.ID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.accounts[accountID]
	return ok, nil
}

func (r *AccountRepo) CountDependents(_ context.Context, accountID id.ID) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := map[string]int64{"users": 0, "branches": 0, "products": 0, "movements": 0}
	for _, u := range r.s.users {
		if u.AccountID != nil && *u.AccountID == accountID {
			counts["users"]++
		}
	}
	for _, b := range r.s.branches {
		if b.AccountID == accountID {
			counts["branches"]++
		}
	}
	for _, p := range r.s.products {
		if p.AccountID == accountID {
			counts["products"]++
		}
	}
	for _, m := range r.s.movements {
		if m.AccountID == accountID {
			counts["movements"]++
		}
	}
	return counts, nil
}

// --- branches ---

// BranchRepo implements branch.Repository.
type BranchRepo struct{ s *Store }

func (r *BranchRepo) Create(ctx context.Context, b *branch.Branch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[b.AccountID]; !ok {
		return apperror.NewValidation("referenced account does not exist").WithDetail("field", "accountId")
	}
	if _, ok := r.s.branches[b.ID]; ok {
		return apperror.NewDuplicate("branch", "id", b.ID.String())
	}
	r.s.branches[b.ID] = *b
	branchID := b.ID
	r.s.onRollback(ctx, func() { delete(r.s.branches, branchID) })
	return nil
}

func (r *BranchRepo) GetByID(_ context.Context, branchID id.ID) (*branch.Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.branches[branchID]
	if !ok {
		return nil, apperror.NewNotFound("branch", branchID.String())
	}
	return &b, nil
}

// AccountOf returns the account owning branchID.
func (r *BranchRepo) AccountOf(ctx context.Context, branchID id.ID) (id.ID, error) {
	b, err := r.GetByID(ctx, branchID)
	if err != nil {
		return id.Nil(), err
	}
	return b.AccountID, nil
}

func (r *BranchRepo) Delete(ctx context.Context, branchID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.branches[branchID]
	if !ok {
		return apperror.NewNotFound("branch", branchID.String())
	}
	delete(r.s.branches, branchID)
	dropLevels(ctx, r.s, func(k entity.StockKey) bool { return k.BranchID == branchID })
	r.s.onRollback(ctx, func() { r.s.branches[branchID] = prev })
	return nil
}

func (r *BranchRepo) List(_ context.Context, f domain.ListFilter) (domain.ListResult[*branch.Branch], error) {
	if err := rejectAdvanced(f); err != nil {
		return domain.ListResult[*branch.Branch]{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*branch.Branch
	for _, b := range r.s.branches {
		if f.AccountID != nil && b.AccountID != *f.AccountID {
			continue
		}
		if f.BranchID != nil && b.ID != *f.BranchID {
			continue
		}
		if !matchesCommon(f, b.ID, b.Name) {
			continue
		}
		b := b
		rows = append(rows, &b)
	}
	return page(rows, f, func(b *branch.Branch) (string, id.ID) { return b.Name, b.ID }), nil
}

func (r *BranchRepo) Exists(_ context.Context, branchID id.ID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.branches[branchID]
	return ok, nil
}

func (r *BranchRepo) CountDependents(_ context.Context, branchID id.ID) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := map[string]int64{"users": 0, "products": 0, "stock_levels": 0, "movements": 0}
	for _, u := range r.s.users {
		if u.BranchID != nil && *u.BranchID == branchID {
			counts["users"]++
		}
	}
	for _, p := range r.s.products {
		if p.BranchID == branchID {
			counts["products"]++
		}
	}
	for key := range r.s.levels {
		if key.BranchID == branchID {
			counts["stock_levels"]++
		}
	}
	for _, m := range r.s.movements {
		if m.BranchID == branchID {
			counts["movements"]++
		}
	}
	return counts, nil
}

// --- products ---

// ProductRepo implements product.Repository.
type ProductRepo struct{ s *Store }

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.branches[p.BranchID]; !ok {
		return apperror.NewValidation("referenced branch does not exist").WithDetail("field", "branchId")
	}
	if r.existsByName(p.BranchID, p.Name) {
		return apperror.NewDuplicate("product", "name", p.Name)
	}
	r.s.products[p.ID] = *p
	productID := p.ID
	r.s.onRollback(ctx, func() { delete(r.s.products, productID) })
	return nil
}

func (r *ProductRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return &p, nil
}

func (r *ProductRepo) Delete(ctx context.Context, productID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID.String())
	}
	delete(r.s.products, productID)
	dropLevels(ctx, r.s, func(k entity.StockKey) bool { return k.ProductID == productID })
	r.s.onRollback(ctx, func() { r.s.products[productID] = prev })
	return nil
}

func (r *ProductRepo) List(_ context.Context, f domain.ListFilter) (domain.ListResult[*product.Product], error) {
	if err := rejectAdvanced(f); err != nil {
		return domain.ListResult[*product.Product]{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*product.Product
	for _, p := range r.s.products {
		if f.AccountID != nil && p.AccountID != *f.AccountID {
			continue
		}
		if f.BranchID != nil && p.BranchID != *f.BranchID {
			continue
		}
		if !matchesCommon(f, p.ID, p.Name) {
			continue
		}
		p := p
		rows = append(rows, &p)
	}
	return page(rows, f, func(p *product.Product) (string, id.ID) { return p.Name, p.ID }), nil
}

func (r *ProductRepo) Exists(_ context.Context, productID id.ID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.products[productID]
	return ok, nil
}

func (r *ProductRepo) ExistsByName(_ context.Context, branchID id.ID, name string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.existsByName(branchID, name), nil
}

// existsByName requires r.s.mu.
func (r *ProductRepo) existsByName(branchID id.ID, name string) bool {
	for _, p := range r.s.products {
		if p.BranchID == branchID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (r *ProductRepo) CountDependents(_ context.Context, productID id.ID) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := map[string]int64{"stock_levels": 0, "movements": 0}
	for key := range r.s.levels {
		if key.ProductID == productID {
			counts["stock_levels"]++
		}
	}
	for _, m := range r.s.movements {
		if m.ProductID == productID {
			counts["movements"]++
		}
	}
	return counts, nil
}

// --- helpers ---

// dropLevels removes the stock levels of a deleted catalog row,
// like the cascading foreign keys do in Postgres. Caller holds s.mu.
func dropLevels(ctx context.Context, s *Store, match func(entity.StockKey) bool) {
	for key, level := range s.levels {
		if !match(key) {
			continue
		}
		delete(s.levels, key)
		key, level := key, level
		s.onRollback(ctx, func() { s.levels[key] = level })
	}
}

func rejectAdvanced(f domain.ListFilter) error {
	if len(f.AdvancedFilters) > 0 {
		return apperror.NewValidation("column filters are not supported by this store")
	}
	return nil
}

func matchesCommon(f domain.ListFilter, rowID id.ID, name string) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(f.Search)) {
		return false
	}
	if len(f.IDs) == 0 {
		return true
	}
	for _, want := range f.IDs {
		if want == rowID {
			return true
		}
	}
	return false
}

// page orders rows by name, then id, and cuts one page.
func page[T any](rows []T, f domain.ListFilter, key func(T) (string, id.ID)) domain.ListResult[T] {
	sort.Slice(rows, func(i, j int) bool {
		ni, ii := key(rows[i])
		nj, ij := key(rows[j])
		if !strings.EqualFold(ni, nj) {
			return strings.ToLower(ni) < strings.ToLower(nj)
		}
		return id.Compare(ii, ij) < 0
	})

	total := int64(len(rows))
	start := min(max(f.Offset, 0), len(rows))
	end := len(rows)
	if f.Limit > 0 {
		end = min(start+f.Limit, len(rows))
	}
	items := rows[start:end]
	if items == nil {
		items = []T{}
	}
	return domain.ListResult[T]{Items: items, TotalCount: total, Limit: f.Limit, Offset: f.Offset}
}
