// Package memory is an in-process implementation of the ledger, catalog
// and user stores.
// It locks per stock key and per movement row like the Postgres store does
// and rolls back every write of a failed transaction. Unlocked reads see
// uncommitted writes; it is meant for tests and local tooling.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/tx"
	"retailstock/internal/domain/audit"
	"retailstock/internal/domain/auth"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/registers/stock"
	"retailstock/internal/domain/reports"
)

var (
	_ tx.Manager                = (*Store)(nil)
	_ tx.ReadOnlyManager        = (*Store)(nil)
	_ stock.Repository          = (*StockRepo)(nil)
	_ ledger.MovementRepository = (*MovementRepo)(nil)
	_ ledger.CatalogLookup      = (*Store)(nil)
	_ audit.Writer              = (*LogRepo)(nil)
	_ audit.Reader              = (*LogRepo)(nil)
	_ reports.Repository        = (*ReportRepo)(nil)
)

// Store holds all tables. Use Stock, Movements and Logs for the typed views.
type Store struct {
	mu        sync.Mutex
	levels    map[entity.StockKey]entity.StockLevel
	movements map[id.ID]entity.StockMovement
	logs      []entity.MovementLog
	accounts  map[id.ID]account.Account
	branches  map[id.ID]branch.Branch
	products  map[id.ID]product.Product
	users     map[id.ID]auth.User
	locks     map[any]*sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		levels:    make(map[entity.StockKey]entity.StockLevel),
		movements: make(map[id.ID]entity.StockMovement),
		accounts:  make(map[id.ID]account.Account),
		branches:  make(map[id.ID]branch.Branch),
		products:  make(map[id.ID]product.Product),
		users:     make(map[id.ID]auth.User),
		locks:     make(map[any]*sync.Mutex),
	}
}

// Stock returns the stock level repository.
func (s *Store) Stock() *StockRepo { return &StockRepo{s: s} }

// Movements returns the movement repository.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

// Logs returns the movement log repository.
func (s *Store) Logs() *LogRepo { return &LogRepo{s: s} }

// Reports returns the report repository.
func (s *Store) Reports() *ReportRepo { return &ReportRepo{s: s} }

// AddBranch inserts a branch row outside any transaction.
func (s *Store) AddBranch(b ledger.BranchRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[b.ID] = branch.Branch{
		BaseEntity: entity.BaseEntity{ID: b.ID, CreatedAt: time.Now().UTC()},
		AccountID:  b.AccountID,
		Name:       b.Name,
	}
}

// AddProduct inserts a product row outside any transaction.
func (s *Store) AddProduct(p ledger.ProductRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = product.Product{
		BaseEntity: entity.BaseEntity{ID: p.ID, CreatedAt: time.Now().UTC()},
		AccountID:  p.AccountID,
		BranchID:   p.BranchID,
		Name:       p.Name,
		CostPrice:  p.CostPrice,
	}
}

// AddUser inserts a user of accountID with role and returns its id.
func (s *Store) AddUser(accountID id.ID, role security.Role) id.ID {
	u := auth.NewUser(id.New().String()+"@example.com", "", role)
	u.AccountID = &accountID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return u.ID
}

// SetLevel overwrites a stock level outside any transaction.
func (s *Store) SetLevel(key entity.StockKey, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[key] = entity.StockLevel{
		ProductID:   key.ProductID,
		BranchID:    key.BranchID,
		Quantity:    quantity,
		LastUpdated: time.Now().UTC(),
	}
}

// Level returns the stored quantity for key and whether a row exists.
func (s *Store) Level(key entity.StockKey) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[key]
	return l.Quantity, ok
}

// MovementsFor returns all stored movements for key.
func (s *Store) MovementsFor(key entity.StockKey) []entity.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.StockMovement
	for _, m := range s.movements {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	return out
}

// LogCount returns the number of log rows.
func (s *Store) LogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// GetProductRef implements ledger.CatalogLookup.
func (s *Store) GetProductRef(_ context.Context, productID id.ID) (ledger.ProductRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return ledger.ProductRef{}, apperror.NewNotFound("product", productID)
	}
	return ledger.ProductRef{
		ID:        p.ID,
		AccountID: p.AccountID,
		BranchID:  p.BranchID,
		Name:      p.Name,
		CostPrice: p.CostPrice,
	}, nil
}

// GetBranchRef implements ledger.CatalogLookup.
func (s *Store) GetBranchRef(_ context.Context, branchID id.ID) (ledger.BranchRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return ledger.BranchRef{}, apperror.NewNotFound("branch", branchID)
	}
	return ledger.BranchRef{ID: b.ID, AccountID: b.AccountID, Name: b.Name}, nil
}

// --- transactions ---

type txKey struct{}

type txState struct {
	held     []*sync.Mutex
	heldKeys map[any]struct{}
	undo     []func()
}

// RunInTransaction implements tx.Manager. Nested calls join the outer
// transaction. On error every write made through ctx is undone before the
// locks are released.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	st := &txState{heldKeys: make(map[any]struct{})}
	err := fn(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		s.mu.Unlock()
	}
	for i := len(st.held) - 1; i >= 0; i-- {
		st.held[i].Unlock()
	}
	return err
}

// ReadOnly implements tx.ReadOnlyManager. Each report read takes s.mu, and
// the store keeps no snapshots, so this is a plain transaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// lock takes the row lock for key until the transaction in ctx ends.
// Outside a transaction it is a no-op.
func (s *Store) lock(ctx context.Context, key any) {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return
	}
	if _, held := st.heldKeys[key]; held {
		return
	}

	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	st.held = append(st.held, m)
	st.heldKeys[key] = struct{}{}
}

// onRollback registers fn to undo a write. Caller holds s.mu.
func (s *Store) onRollback(ctx context.Context, fn func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, fn)
	}
}

// --- stock levels ---

// StockRepo implements stock.Repository.
type StockRepo struct{ s *Store }

func (r *StockRepo) GetForUpdate(ctx context.Context, key entity.StockKey) (entity.StockLevel, error) {
	r.s.lock(ctx, key)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	level, ok := r.s.levels[key]
	if !ok {
		level = entity.StockLevel{ProductID: key.ProductID, BranchID: key.BranchID, LastUpdated: time.Now().UTC()}
		r.s.levels[key] = level
		r.s.onRollback(ctx, func() { delete(r.s.levels, key) })
	}
	return level, nil
}

func (r *StockRepo) Get(_ context.Context, key entity.StockKey) (entity.StockLevel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	level, ok := r.s.levels[key]
	if !ok {
		return entity.StockLevel{}, apperror.NewNotFound("stock_level", key.ProductID.String()+"/"+key.BranchID.String())
	}
	return level, nil
}

func (r *StockRepo) Save(ctx context.Context, level entity.StockLevel) error {
	key := level.Key()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, existed := r.s.levels[key]
	r.s.levels[key] = level
	r.s.onRollback(ctx, func() {
		if existed {
			r.s.levels[key] = prev
		} else {
			delete(r.s.levels, key)
		}
	})
	return nil
}

func (r *StockRepo) List(_ context.Context, filter stock.LevelFilter) ([]entity.StockLevel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]entity.StockLevel, 0, len(r.s.levels))
	for key, level := range r.s.levels {
		if filter.ProductID != nil && key.ProductID != *filter.ProductID {
			continue
		}
		if filter.BranchID != nil && key.BranchID != *filter.BranchID {
			continue
		}
		if filter.AccountID != nil && r.s.products[key.ProductID].AccountID != *filter.AccountID {
			continue
		}
		if filter.ExcludeZero && level.Quantity == 0 {
			continue
		}
		out = append(out, level)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

func (r *StockRepo) Delete(ctx context.Context, key entity.StockKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.levels[key]
	if !ok {
		return apperror.NewNotFound("stock_level", key.ProductID.String()+"/"+key.BranchID.String())
	}
	delete(r.s.levels, key)
	r.s.onRollback(ctx, func() { r.s.levels[key] = prev })
	return nil
}

// --- movements ---

// MovementRepo implements ledger.MovementRepository.
type MovementRepo struct{ s *Store }

type movementLock id.ID

func (r *MovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.movements[m.ID]; ok {
		return apperror.NewDuplicate("stock_movement", "id", m.ID.String())
	}
	r.s.movements[m.ID] = *m
	movementID := m.ID
	r.s.onRollback(ctx, func() { delete(r.s.movements, movementID) })
	return nil
}

func (r *MovementRepo) GetByID(_ context.Context, movementID id.ID) (*entity.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.movements[movementID]
	if !ok {
		return nil, apperror.NewNotFound("stock_movement", movementID)
	}
	return &m, nil
}

func (r *MovementRepo) GetForUpdate(ctx context.Context, movementID id.ID) (*entity.StockMovement, error) {
	r.s.lock(ctx, movementLock(movementID))
	return r.GetByID(ctx, movementID)
}

func (r *MovementRepo) Update(ctx context.Context, m *entity.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.movements[m.ID]
	if !ok {
		return apperror.NewNotFound("stock_movement", m.ID)
	}
	r.s.movements[m.ID] = *m
	r.s.onRollback(ctx, func() { r.s.movements[prev.ID] = prev })
	return nil
}

func (r *MovementRepo) Delete(ctx context.Context, movementID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.movements[movementID]
	if !ok {
		return apperror.NewNotFound("stock_movement", movementID)
	}
	delete(r.s.movements, movementID)
	r.s.onRollback(ctx, func() { r.s.movements[prev.ID] = prev })
	return nil
}

// --- movement log ---

// LogRepo implements audit.Writer and audit.Reader.
type LogRepo struct{ s *Store }

func (r *LogRepo) Append(ctx context.Context, entry *entity.MovementLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.logs = append(r.s.logs, *entry)
	logID := entry.ID
	r.s.onRollback(ctx, func() {
		for i := range r.s.logs {
			if r.s.logs[i].ID == logID {
				r.s.logs = append(r.s.logs[:i], r.s.logs[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *LogRepo) ListByMovement(_ context.Context, movementID id.ID) ([]entity.MovementLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.MovementLog
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		if r.s.logs[i].MovementID == movementID {
			out = append(out, r.s.logs[i])
		}
	}
	return out, nil
}
