package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/infrastructure/storage/postgres"
)

var _ ledger.MovementRepository = (*MovementRepo)(nil)

var movementColumns = postgres.ExtractDBColumns[entity.StockMovement]()

// MovementRepo implements ledger.MovementRepository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a movement.
func (r *MovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	q := r.builder.Insert(stockMovementsTable).SetMap(postgres.StructToMap(m))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewDuplicate(stockMovementsTable, "id", m.ID.String())
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetByID retrieves a movement.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.StockMovement, error) {
	return r.get(ctx, movementID, "")
}

// GetForUpdate retrieves a movement with row lock.
func (r *MovementRepo) GetForUpdate(ctx context.Context, movementID id.ID) (*entity.StockMovement, error) {
	return r.get(ctx, movementID, "FOR UPDATE")
}

func (r *MovementRepo) get(ctx context.Context, movementID id.ID, suffix string) (*entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"id": movementID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.StockMovement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock_movement", movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// Update rewrites every mutable column of the movement.
func (r *MovementRepo) Update(ctx context.Context, m *entity.StockMovement) error {
	q := r.builder.Update(stockMovementsTable).
		SetMap(map[string]any{
			"account_id":     m.AccountID,
			"product_id":     m.ProductID,
			"branch_id":      m.BranchID,
			"movement_type":  m.Type,
			"quantity":       m.Quantity,
			"selling_amount": m.SellingAmount,
			"profit":         m.Profit,
			"payment_method": m.PaymentMethod,
			"notes":          m.Notes,
		}).
		Where(squirrel.Eq{"id": m.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock_movement", m.ID.String())
	}
	return nil
}

// Delete removes a movement row.
func (r *MovementRepo) Delete(ctx context.Context, movementID id.ID) error {
	sql, args, err := r.builder.Delete(stockMovementsTable).
		Where(squirrel.Eq{"id": movementID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock_movement", movementID.String())
	}
	return nil
}
