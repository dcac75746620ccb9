package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/infrastructure/storage/memory"
)

var actor = entity.Actor{ID: "user-1", Name: "Aline"}

type fixture struct {
	store   *memory.Store
	engine  *ledger.Engine
	account id.ID
	product id.ID
	branch  id.ID
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   memory.New(),
		account: id.New(),
		product: id.New(),
		branch:  id.New(),
		now:     time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
	f.store.AddBranch(ledger.BranchRef{ID: f.branch, AccountID: f.account})
	f.store.AddProduct(ledger.ProductRef{
		ID: f.product, AccountID: f.account, BranchID: f.branch,
		Name: "Sugar 1kg", CostPrice: types.MustMoney("5.00"),
	})
	f.engine = f.newEngine(f.store.Logs())
	return f
}

func (f *fixture) newEngine(logs interface {
	Append(ctx context.Context, entry *entity.MovementLog) error
}) *ledger.Engine {
	return ledger.NewEngine(f.store, f.store.Stock(), f.store.Movements(), logs, f.store,
		ledger.WithClock(func() time.Time { return f.now }))
}

func (f *fixture) key() entity.StockKey {
	return entity.StockKey{ProductID: f.product, BranchID: f.branch}
}

func (f *fixture) in(qty int64) ledger.CreateRequest {
	return ledger.CreateRequest{MovementFields: ledger.MovementFields{
		ProductID: f.product, BranchID: f.branch, Type: entity.MovementIn, Quantity: qty,
	}}
}

func (f *fixture) out(qty int64, amount string) ledger.CreateRequest {
	selling := types.MustMoney(amount)
	cash := entity.PaymentCash
	return ledger.CreateRequest{MovementFields: ledger.MovementFields{
		ProductID: f.product, BranchID: f.branch, Type: entity.MovementOut, Quantity: qty,
		SellingAmount: &selling, PaymentMethod: &cash,
	}}
}

func (f *fixture) quantity(t *testing.T) int64 {
	t.Helper()
	q, _ := f.store.Level(f.key())
	return q
}

func (f *fixture) create(t *testing.T, req ledger.CreateRequest) ledger.Result {
	t.Helper()
	res, err := f.engine.CreateMovement(context.Background(), req, actor)
	require.NoError(t, err)
	return res
}

// assertSumOfDeltas checks the level equals the signed sum of existing movements.
func assertSumOfDeltas(t *testing.T, store *memory.Store, key entity.StockKey) {
	t.Helper()
	var sum int64
	for _, m := range store.MovementsFor(key) {
		sum += m.SignedQuantity()
	}
	q, _ := store.Level(key)
	assert.Equal(t, sum, q, "stock level out of sync with movements")
}

func TestCreateMovement_InOnAbsentLevel(t *testing.T) {
	f := newFixture(t)

	_, exists := f.store.Level(f.key())
	require.False(t, exists)

	res := f.create(t, f.in(100))

	assert.EqualValues(t, 100, f.quantity(t))
	assert.True(t, res.Profit.IsZero())
	assert.EqualValues(t, 0, res.Before)
	assert.EqualValues(t, 100, res.After)

	logs, err := f.store.Logs().ListByMovement(context.Background(), res.MovementID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.LogActionCreate, logs[0].Action)
	assert.EqualValues(t, 0, logs[0].BeforeQty)
	assert.EqualValues(t, 100, logs[0].AfterQty)
	assert.Equal(t, actor.ID, logs[0].ChangedBy)
	assert.Equal(t, f.now, logs[0].ChangedAt)
	assert.NotEmpty(t, logs[0].Snapshot)
}

func TestCreateMovement_OutComputesProfit(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.in(100))

	res := f.create(t, f.out(30, "200.00"))

	assert.True(t, types.MustMoney("50.00").Equal(res.Profit), "profit %s", res.Profit)
	assert.EqualValues(t, 70, f.quantity(t))

	m, err := f.store.Movements().GetByID(context.Background(), res.MovementID)
	require.NoError(t, err)
	assert.Equal(t, f.account, m.AccountID)
	assert.Equal(t, actor.ID, m.CreatedBy)
	assert.Equal(t, actor.Name, m.CreatedByName)
	require.NotNil(t, m.PaymentMethod)
	assert.Equal(t, entity.PaymentCash, *m.PaymentMethod)
	assertSumOfDeltas(t, f.store, f.key())
}

func TestCreateMovement_InsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.in(10))
	logsBefore := f.store.LogCount()

	_, err := f.engine.CreateMovement(context.Background(), f.out(15, "100.00"), actor)

	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
	assert.EqualValues(t, 10, f.quantity(t))
	assert.Len(t, f.store.MovementsFor(f.key()), 1)
	assert.Equal(t, logsBefore, f.store.LogCount())
}

func TestCreateMovement_OutOnAbsentLevel(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateMovement(context.Background(), f.out(1, "10.00"), actor)

	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
	_, exists := f.store.Level(f.key())
	assert.False(t, exists, "lazily created level must roll back")
}

func TestCreateMovement_Validation(t *testing.T) {
	f := newFixture(t)

	noPayment := f.out(1, "10.00")
	noPayment.PaymentMethod = nil

	zeroQty := f.in(0)

	unknownProduct := f.in(1)
	unknownProduct.ProductID = id.New()

	otherAccountBranch := id.New()
	f.store.AddBranch(ledger.BranchRef{ID: otherAccountBranch, AccountID: id.New()})
	crossAccount := f.in(1)
	crossAccount.BranchID = otherAccountBranch

	tests := []struct {
		name  string
		req   ledger.CreateRequest
		actor entity.Actor
		check func(error) bool
	}{
		{"missing payment method", noPayment, actor, apperror.IsMissingPaymentMethod},
		{"zero quantity", zeroQty, actor, apperror.IsValidation},
		{"unknown product", unknownProduct, actor, apperror.IsNotFound},
		{"cross-account branch", crossAccount, actor, apperror.IsValidation},
		{"anonymous actor", f.in(1), entity.Actor{}, apperror.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateMovement(context.Background(), tt.req, tt.actor)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			assert.Zero(t, f.store.LogCount())
		})
	}
}

func TestDeleteMovement_OnlyMovement(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, f.in(50))

	res, err := f.engine.DeleteMovement(context.Background(), m.MovementID, actor)

	require.NoError(t, err)
	assert.EqualValues(t, 0, f.quantity(t))
	assert.EqualValues(t, 50, res.Before)
	assert.EqualValues(t, 0, res.After)

	_, err = f.store.Movements().GetByID(context.Background(), m.MovementID)
	assert.True(t, apperror.IsNotFound(err))

	logs, err := f.store.Logs().ListByMovement(context.Background(), m.MovementID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, entity.LogActionDelete, logs[0].Action)
	assert.EqualValues(t, 50, logs[0].BeforeQty)
	assert.EqualValues(t, 0, logs[0].AfterQty)
}

func TestDeleteMovement_SoldInFailsWithNegativeStock(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, f.in(50))
	f.create(t, f.out(30, "300.00"))
	logsBefore := f.store.LogCount()

	_, err := f.engine.DeleteMovement(context.Background(), m.MovementID, actor)

	require.Error(t, err)
	assert.True(t, apperror.IsNegativeStock(err))
	assert.EqualValues(t, 20, f.quantity(t))
	assert.Equal(t, logsBefore, f.store.LogCount())
	_, err = f.store.Movements().GetByID(context.Background(), m.MovementID)
	assert.NoError(t, err)
}

func TestDeleteMovement_OutNegatesProfit(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.in(10))
	sale := f.create(t, f.out(4, "60.00"))

	res, err := f.engine.DeleteMovement(context.Background(), sale.MovementID, actor)

	require.NoError(t, err)
	assert.True(t, types.MustMoney("-40.00").Equal(res.Profit), "profit %s", res.Profit)
	assert.EqualValues(t, 10, f.quantity(t))

	logs, err := f.store.Logs().ListByMovement(context.Background(), sale.MovementID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, types.MustMoney("-40.00").Equal(logs[0].Profit))
	require.NotNil(t, logs[0].PaymentMethod)
	assert.Equal(t, entity.PaymentCash, *logs[0].PaymentMethod)
	assert.EqualValues(t, 6, logs[0].BeforeQty)
	assert.EqualValues(t, 10, logs[0].AfterQty)
}

func TestDeleteMovement_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DeleteMovement(context.Background(), id.New(), actor)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeleteThenRecreateRestoresQuantity(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.in(40))
	sale := f.create(t, f.out(15, "150.00"))
	before := f.quantity(t)

	_, err := f.engine.DeleteMovement(context.Background(), sale.MovementID, actor)
	require.NoError(t, err)
	f.create(t, f.out(15, "150.00"))

	assert.Equal(t, before, f.quantity(t))
	assertSumOfDeltas(t, f.store, f.key())
}

func TestUpdateMovement_SameKey(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture) id.ID
		update     func(f *fixture) ledger.UpdateRequest
		wantQty    int64
		wantBefore int64
		wantProfit string
		wantPaid   bool
		wantErr    func(error) bool
	}{
		{
			name: "grow sale",
			setup: func(t *testing.T, f *fixture) id.ID {
				f.create(t, f.in(100))
				return f.create(t, f.out(30, "200.00")).MovementID
			},
			update: func(f *fixture) ledger.UpdateRequest {
				return ledger.UpdateRequest{MovementFields: f.out(50, "400.00").MovementFields}
			},
			wantQty:    50,
			wantBefore: 100,
			wantProfit: "150.00",
			wantPaid:   true,
		},
		{
			name: "sale validated against post-reversal level",
			setup: func(t *testing.T, f *fixture) id.ID {
				f.create(t, f.in(10))
				return f.create(t, f.out(10, "80.00")).MovementID
			},
			update: func(f *fixture) ledger.UpdateRequest {
				return ledger.UpdateRequest{MovementFields: f.out(10, "90.00").MovementFields}
			},
			wantQty:    0,
			wantBefore: 10,
			wantProfit: "40.00",
			wantPaid:   true,
		},
		{
			name: "sale over post-reversal level",
			setup: func(t *testing.T, f *fixture) id.ID {
				f.create(t, f.in(10))
				return f.create(t, f.out(5, "80.00")).MovementID
			},
			update: func(f *fixture) ledger.UpdateRequest {
				return ledger.UpdateRequest{MovementFields: f.out(11, "90.00").MovementFields}
			},
			wantQty: 5,
			wantErr: apperror.IsInsufficientStock,
		},
		{
			name: "shrink sold receipt",
			setup: func(t *testing.T, f *fixture) id.ID {
				receipt := f.create(t, f.in(50)).MovementID
				f.create(t, f.out(30, "300.00"))
				return receipt
			},
			update: func(f *fixture) ledger.UpdateRequest {
				return ledger.UpdateRequest{MovementFields: f.in(30).MovementFields}
			},
			wantQty:    0,
			wantBefore: -30,
			wantProfit: "0",
		},
		{
			name: "shrink sold receipt below sales",
			setup: func(t *testing.T, f *fixture) id.ID {
				receipt := f.create(t, f.in(50)).MovementID
				f.create(t, f.out(30, "300.00"))
				return receipt
			},
			update: func(f *fixture) ledger.UpdateRequest {
				return ledger.UpdateRequest{MovementFields: f.in(10).MovementFields}
			},
			wantQty: 20,
			wantErr: apperror.IsNegativeStock,
		},
		{
			name: "receipt turned into sale",
			setup: func(t *testing.T, f *fixture) id.ID {
				f.create(t, f.in(20))
				return f.create(t, f.in(5)).MovementID
			},
			update: func(f *fixture) ledger.UpdateRequest {
				return ledger.UpdateRequest{MovementFields: f.out(5, "40.00").MovementFields}
			},
			wantQty:    15,
			wantBefore: 20,
			wantProfit: "15.00",
			wantPaid:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			movementID := tt.setup(t, f)
			logsBefore := f.store.LogCount()

			res, err := f.engine.UpdateMovement(context.Background(), movementID, tt.update(f), actor)

			assert.Equal(t, tt.wantQty, f.quantity(t))
			assertSumOfDeltas(t, f.store, f.key())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error %v", err)
				assert.Equal(t, logsBefore, f.store.LogCount())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, movementID, res.MovementID)
			assert.Equal(t, tt.wantBefore, res.Before)
			assert.Equal(t, tt.wantQty, res.After)
			assert.Equal(t, logsBefore+1, f.store.LogCount())
			assert.True(t, types.MustMoney(tt.wantProfit).Equal(res.Profit), "profit %s", res.Profit)

			logs, err := f.store.Logs().ListByMovement(context.Background(), movementID)
			require.NoError(t, err)
			require.NotEmpty(t, logs)
			row := logs[0]
			assert.Equal(t, entity.LogActionUpdate, row.Action)
			assert.Equal(t, tt.wantBefore, row.BeforeQty)
			assert.Equal(t, tt.wantQty, row.AfterQty)
			assert.True(t, types.MustMoney(tt.wantProfit).Equal(row.Profit), "logged profit %s", row.Profit)
			assert.Equal(t, actor.ID, row.ChangedBy)
			if tt.wantPaid {
				require.NotNil(t, row.PaymentMethod)
				assert.Equal(t, entity.PaymentCash, *row.PaymentMethod)
			} else {
				assert.Nil(t, row.PaymentMethod)
			}
		})
	}
}

func TestUpdateMovement_MovesBetweenBranches(t *testing.T) {
	f := newFixture(t)
	other := id.New()
	f.store.AddBranch(ledger.BranchRef{ID: other, AccountID: f.account})
	otherKey := entity.StockKey{ProductID: f.product, BranchID: other}

	receipt := f.create(t, f.in(30))
	otherReq := f.in(5)
	otherReq.BranchID = other
	f.create(t, otherReq)

	update := ledger.UpdateRequest{MovementFields: f.in(30).MovementFields}
	update.BranchID = other

	res, err := f.engine.UpdateMovement(context.Background(), receipt.MovementID, update, actor)
	require.NoError(t, err)

	assert.EqualValues(t, 0, f.quantity(t))
	q, _ := f.store.Level(otherKey)
	assert.EqualValues(t, 35, q)
	assert.EqualValues(t, 5, res.Before)
	assert.EqualValues(t, 35, res.After)
	assertSumOfDeltas(t, f.store, f.key())
	assertSumOfDeltas(t, f.store, otherKey)

	m, err := f.store.Movements().GetByID(context.Background(), receipt.MovementID)
	require.NoError(t, err)
	assert.Equal(t, other, m.BranchID)
	assert.Equal(t, actor.ID, m.CreatedBy)
}

func TestUpdateMovement_MovingSoldReceiptFails(t *testing.T) {
	f := newFixture(t)
	other := id.New()
	f.store.AddBranch(ledger.BranchRef{ID: other, AccountID: f.account})

	receipt := f.create(t, f.in(30))
	f.create(t, f.out(10, "100.00"))

	update := ledger.UpdateRequest{MovementFields: f.in(30).MovementFields}
	update.BranchID = other

	_, err := f.engine.UpdateMovement(context.Background(), receipt.MovementID, update, actor)

	require.Error(t, err)
	assert.True(t, apperror.IsNegativeStock(err))
	assert.EqualValues(t, 20, f.quantity(t))
	_, exists := f.store.Level(entity.StockKey{ProductID: f.product, BranchID: other})
	assert.False(t, exists)
}

type failingWriter struct{}

func (failingWriter) Append(context.Context, *entity.MovementLog) error {
	return errors.New("disk full")
}

func TestLogFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.in(10))
	f.engine = f.newEngine(failingWriter{})

	_, err := f.engine.CreateMovement(context.Background(), f.out(3, "30.00"), actor)

	require.Error(t, err)
	assert.EqualValues(t, 10, f.quantity(t))
	assert.Len(t, f.store.MovementsFor(f.key()), 1)
	assert.Equal(t, 1, f.store.LogCount())
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.in(10))

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateMovement(context.Background(), f.out(1, "12.00"), actor)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, apperror.IsInsufficientStock(err), "unexpected error %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.EqualValues(t, 0, f.quantity(t))
	assert.Equal(t, 1+succeeded, f.store.LogCount())
	assertSumOfDeltas(t, f.store, f.key())
}

func TestConcurrentOppositeTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	other := id.New()
	f.store.AddBranch(ledger.BranchRef{ID: other, AccountID: f.account})

	a := f.create(t, f.in(5)).MovementID
	otherReq := f.in(5)
	otherReq.BranchID = other
	b := f.create(t, otherReq).MovementID

	toOther := ledger.UpdateRequest{MovementFields: f.in(5).MovementFields}
	toOther.BranchID = other
	toHome := ledger.UpdateRequest{MovementFields: f.in(5).MovementFields}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = f.engine.UpdateMovement(context.Background(), a, toOther, actor)
			}()
			go func() {
				defer wg.Done()
				_, _ = f.engine.UpdateMovement(context.Background(), b, toHome, actor)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transfers deadlocked")
	}

	total, _ := f.store.Level(f.key())
	otherQty, _ := f.store.Level(entity.StockKey{ProductID: f.product, BranchID: other})
	assert.EqualValues(t, 10, total+otherQty)
	assertSumOfDeltas(t, f.store, f.key())
}
