// Package ledger implements the stock movement ledger: every create, update
// and delete of a movement re-runs reconciliation of the affected stock
// levels and appends one movement log row, all in one transaction.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/tx"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/audit"
	"retailstock/internal/domain/registers/stock"
	"retailstock/pkg/logger"
)

var tracer = otel.Tracer("retailstock/ledger")

// Engine is the reconciliation engine.
// It holds no state of its own; every call is one transaction on txm.
type Engine struct {
	txm       tx.Manager
	stock     stock.Repository
	movements MovementRepository
	logs      audit.Writer
	catalog   CatalogLookup
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new reconciliation engine.
func NewEngine(
	txm tx.Manager,
	stockRepo stock.Repository,
	movements MovementRepository,
	logs audit.Writer,
	catalog CatalogLookup,
	opts ...Option,
) *Engine {
	e := &Engine{
		txm:       txm,
		stock:     stockRepo,
		movements: movements,
		logs:      logs,
		catalog:   catalog,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateMovement records a new movement and applies it to its stock level.
func (e *Engine) CreateMovement(ctx context.Context, req CreateRequest, actor entity.Actor) (Result, error) {
	f := normalize(req.MovementFields)
	if err := e.precheck(f, actor); err != nil {
		e.logRejected(ctx, "create", err)
		return Result{}, err
	}

	var res Result
	err := e.run(ctx, "create", func(ctx context.Context) error {
		product, err := e.resolve(ctx, f)
		if err != nil {
			return err
		}

		level, err := e.stock.GetForUpdate(ctx, f.Key())
		if err != nil {
			return fmt.Errorf("lock stock level: %w", err)
		}
		before := level.Quantity

		now := e.now()
		level, err = applyEffect(level, f.Type, f.Quantity, now)
		if err != nil {
			return err
		}
		if err := e.stock.Save(ctx, level); err != nil {
			return fmt.Errorf("save stock level: %w", err)
		}

		m := &entity.StockMovement{
			ID:            id.New(),
			AccountID:     product.AccountID,
			ProductID:     f.ProductID,
			BranchID:      f.BranchID,
			Type:          f.Type,
			Quantity:      f.Quantity,
			SellingAmount: f.SellingAmount,
			Profit:        calculateProfit(f.Type, f.SellingAmount, product.CostPrice, f.Quantity),
			PaymentMethod: f.PaymentMethod,
			Notes:         f.Notes,
			CreatedBy:     actor.ID,
			CreatedByName: actor.Name,
			CreatedAt:     now,
		}
		if err := e.movements.Create(ctx, m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		if err := e.appendLog(ctx, entity.LogActionCreate, m, before, level.Quantity, m.Profit, m.PaymentMethod, actor, now); err != nil {
			return err
		}

		res = Result{MovementID: m.ID, Profit: m.Profit, Before: before, After: level.Quantity}
		return nil
	})
	if err != nil {
		e.logRejected(ctx, "create", err)
		return Result{}, err
	}

	logger.Info(ctx, "stock movement created",
		"movement_id", res.MovementID,
		"type", f.Type,
		"product_id", f.ProductID,
		"branch_id", f.BranchID,
		"quantity", f.Quantity,
		"before", res.Before,
		"after", res.After,
		"profit", res.Profit,
	)
	return res, nil
}

// UpdateMovement replaces a movement: the old effect is reversed on the old
// key, then the new effect is applied on the (possibly different) new key.
// The logged before is the new key's level between the two steps.
func (e *Engine) UpdateMovement(ctx context.Context, movementID id.ID, req UpdateRequest, actor entity.Actor) (Result, error) {
	f := normalize(req.MovementFields)
	if err := e.precheck(f, actor); err != nil {
		e.logRejected(ctx, "update", err)
		return Result{}, err
	}

	var res Result
	err := e.run(ctx, "update", func(ctx context.Context) error {
		old, err := e.movements.GetForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		product, err := e.resolve(ctx, f)
		if err != nil {
			return err
		}

		oldKey, newKey := old.Key(), f.Key()
		levels, err := e.lockLevels(ctx, oldKey, newKey)
		if err != nil {
			return err
		}
		sameKey := oldKey == newKey

		now := e.now()
		reversed, err := reverseEffect(levels[oldKey], old, sameKey, now)
		if err != nil {
			return err
		}

		target := levels[newKey]
		if sameKey {
			target = reversed
		} else if err := e.stock.Save(ctx, reversed); err != nil {
			return fmt.Errorf("save stock level: %w", err)
		}
		before := target.Quantity

		applied, err := applyEffect(target, f.Type, f.Quantity, now)
		if err != nil {
			return err
		}
		if applied.Quantity < 0 {
			// Only reachable on the same key: the old IN was partly sold
			// and the replacement does not restore enough units.
			return apperror.NewNegativeStock(
				oldKey.ProductID.String(), oldKey.BranchID.String(), old.Quantity, levels[oldKey].Quantity,
			)
		}
		if err := e.stock.Save(ctx, applied); err != nil {
			return fmt.Errorf("save stock level: %w", err)
		}

		updated := *old
		updated.AccountID = product.AccountID
		updated.ProductID = f.ProductID
		updated.BranchID = f.BranchID
		updated.Type = f.Type
		updated.Quantity = f.Quantity
		updated.SellingAmount = f.SellingAmount
		updated.PaymentMethod = f.PaymentMethod
		updated.Notes = f.Notes
		updated.Profit = calculateProfit(f.Type, f.SellingAmount, product.CostPrice, f.Quantity)
		if err := e.movements.Update(ctx, &updated); err != nil {
			return fmt.Errorf("update movement: %w", err)
		}

		if err := e.appendLog(ctx, entity.LogActionUpdate, &updated, before, applied.Quantity, updated.Profit, updated.PaymentMethod, actor, now); err != nil {
			return err
		}

		res = Result{MovementID: updated.ID, Profit: updated.Profit, Before: before, After: applied.Quantity}
		return nil
	})
	if err != nil {
		e.logRejected(ctx, "update", err)
		return Result{}, err
	}

	logger.Info(ctx, "stock movement updated",
		"movement_id", res.MovementID,
		"type", f.Type,
		"product_id", f.ProductID,
		"branch_id", f.BranchID,
		"quantity", f.Quantity,
		"before", res.Before,
		"after", res.After,
		"profit", res.Profit,
	)
	return res, nil
}

// DeleteMovement reverses a movement's effect and removes it.
// Removing an IN whose units were already sold fails with NEGATIVE_STOCK.
// The log row carries the negated stored profit and the stored payment method.
func (e *Engine) DeleteMovement(ctx context.Context, movementID id.ID, actor entity.Actor) (Result, error) {
	if actor.ID == "" {
		return Result{}, apperror.NewValidation("actor is required")
	}

	var res Result
	err := e.run(ctx, "delete", func(ctx context.Context) error {
		old, err := e.movements.GetForUpdate(ctx, movementID)
		if err != nil {
			return err
		}

		level, err := e.stock.GetForUpdate(ctx, old.Key())
		if err != nil {
			return fmt.Errorf("lock stock level: %w", err)
		}
		before := level.Quantity

		now := e.now()
		level, err = reverseEffect(level, old, false, now)
		if err != nil {
			return err
		}
		if err := e.stock.Save(ctx, level); err != nil {
			return fmt.Errorf("save stock level: %w", err)
		}

		profit := old.Profit.Neg()
		if err := e.appendLog(ctx, entity.LogActionDelete, old, before, level.Quantity, profit, old.PaymentMethod, actor, now); err != nil {
			return err
		}

		if err := e.movements.Delete(ctx, old.ID); err != nil {
			return fmt.Errorf("delete movement: %w", err)
		}

		res = Result{MovementID: old.ID, Profit: profit, Before: before, After: level.Quantity}
		return nil
	})
	if err != nil {
		e.logRejected(ctx, "delete", err)
		return Result{}, err
	}

	logger.Info(ctx, "stock movement deleted",
		"movement_id", res.MovementID,
		"before", res.Before,
		"after", res.After,
	)
	return res, nil
}

func (e *Engine) precheck(f MovementFields, actor entity.Actor) error {
	if actor.ID == "" {
		return apperror.NewValidation("actor is required")
	}
	if id.IsNil(f.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if id.IsNil(f.BranchID) {
		return apperror.NewValidation("branch is required").WithDetail("field", "branchId")
	}
	return validateFields(f)
}

// resolve loads the product for f and checks it can be stocked at f's branch.
func (e *Engine) resolve(ctx context.Context, f MovementFields) (ProductRef, error) {
	product, err := e.catalog.GetProductRef(ctx, f.ProductID)
	if err != nil {
		return ProductRef{}, err
	}
	branch, err := e.catalog.GetBranchRef(ctx, f.BranchID)
	if err != nil {
		return ProductRef{}, err
	}
	if product.AccountID != branch.AccountID {
		return ProductRef{}, apperror.NewValidation("product and branch belong to different accounts").
			WithDetail("productId", f.ProductID).
			WithDetail("branchId", f.BranchID)
	}
	return product, nil
}

// lockLevels locks every distinct key in StockKey order, so two updates
// moving stock between the same pair of keys cannot deadlock.
func (e *Engine) lockLevels(ctx context.Context, keys ...entity.StockKey) (map[entity.StockKey]entity.StockLevel, error) {
	ordered := make([]entity.StockKey, 0, len(keys))
	seen := make(map[entity.StockKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	levels := make(map[entity.StockKey]entity.StockLevel, len(ordered))
	for _, k := range ordered {
		level, err := e.stock.GetForUpdate(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("lock stock level: %w", err)
		}
		levels[k] = level
	}
	return levels, nil
}

func (e *Engine) appendLog(
	ctx context.Context,
	action entity.LogAction,
	m *entity.StockMovement,
	before, after int64,
	profit types.Money,
	payment *entity.PaymentMethod,
	actor entity.Actor,
	now time.Time,
) error {
	snapshot, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal movement snapshot: %w", err)
	}

	entry := &entity.MovementLog{
		ID:            id.New(),
		MovementID:    m.ID,
		Action:        action,
		BeforeQty:     before,
		AfterQty:      after,
		Profit:        profit,
		PaymentMethod: payment,
		ChangedBy:     actor.ID,
		ChangedByName: actor.Name,
		ChangedAt:     now,
		Snapshot:      snapshot,
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		return fmt.Errorf("append movement log: %w", err)
	}
	return nil
}

// run executes fn in one transaction. Transient store failures re-run the
// same closure when the manager supports it; fn resets its own results.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(attribute.String("ledger.operation", op)))
	defer span.End()

	var err error
	if rm, ok := e.txm.(tx.RetryingManager); ok {
		err = rm.RunInTransactionWithRetry(ctx, fn)
	} else {
		err = e.txm.RunInTransaction(ctx, fn)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) logRejected(ctx context.Context, op string, err error) {
	if appErr, ok := apperror.AsAppError(err); ok {
		logger.Warn(ctx, "stock movement rejected", "op", op, "code", appErr.Code, "message", appErr.Message)
		return
	}
	logger.Error(ctx, "stock movement failed", "op", op, "error", err)
}
