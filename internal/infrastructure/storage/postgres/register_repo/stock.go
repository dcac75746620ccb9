// Package register_repo provides PostgreSQL implementations of the ledger
// tables: stock levels and stock movements.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/domain/registers/stock"
	"retailstock/internal/infrastructure/storage/postgres"
)

const (
	stockLevelsTable    = "stock_levels"
	stockMovementsTable = "stock_movements"
)

var stockLevelColumns = []string{"product_id", "branch_id", "quantity", "last_updated"}

var _ stock.Repository = (*StockRepo)(nil)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock level repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetForUpdate returns the level with a pessimistic lock.
// The row is inserted at 0 first so that two first movements against one
// key wait on the same row instead of both seeing "absent".
func (r *StockRepo) GetForUpdate(ctx context.Context, key entity.StockKey) (entity.StockLevel, error) {
	querier := r.txm.GetQuerier(ctx)

	_, err := querier.Exec(ctx, `
		INSERT INTO stock_levels (product_id, branch_id, quantity, last_updated)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (product_id, branch_id) DO NOTHING
	`, key.ProductID, key.BranchID)
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("ensure stock level: %w", err)
	}

	var level entity.StockLevel
	err = pgxscan.Get(ctx, querier, &level, `
		SELECT product_id, branch_id, quantity, last_updated
		FROM stock_levels
		WHERE product_id = $1 AND branch_id = $2
		FOR UPDATE
	`, key.ProductID, key.BranchID)
	if err != nil {
		return level, fmt.Errorf("get stock level for update: %w", err)
	}

	return level, nil
}

// Get returns the level without locking.
func (r *StockRepo) Get(ctx context.Context, key entity.StockKey) (entity.StockLevel, error) {
	var level entity.StockLevel

	q := r.builder.Select(stockLevelColumns...).
		From(stockLevelsTable).
		Where(squirrel.Eq{"product_id": key.ProductID, "branch_id": key.BranchID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return level, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &level, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return level, apperror.NewNotFound(stockLevelsTable, key.ProductID.String()+"/"+key.BranchID.String())
		}
		return level, fmt.Errorf("get stock level: %w", err)
	}

	return level, nil
}

// Save persists quantity and last_updated.
func (r *StockRepo) Save(ctx context.Context, level entity.StockLevel) error {
	q := r.builder.Update(stockLevelsTable).
		Set("quantity", level.Quantity).
		Set("last_updated", level.LastUpdated).
		Where(squirrel.Eq{"product_id": level.ProductID, "branch_id": level.BranchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save stock level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(stockLevelsTable, level.ProductID.String()+"/"+level.BranchID.String())
	}

	return nil
}

// List returns levels matching filter.
func (r *StockRepo) List(ctx context.Context, filter stock.LevelFilter) ([]entity.StockLevel, error) {
	q := r.listQuery(filter)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	levels := []entity.StockLevel{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &levels, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock levels: %w", err)
	}

	return levels, nil
}

func (r *StockRepo) listQuery(filter stock.LevelFilter) squirrel.SelectBuilder {
	q := r.builder.Select("l.product_id", "l.branch_id", "l.quantity", "l.last_updated").
		From(stockLevelsTable + " l")

	if filter.AccountID != nil {
		q = q.Join("products p ON p.id = l.product_id").
			Where(squirrel.Eq{"p.account_id": *filter.AccountID})
	}
	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"l.branch_id": *filter.BranchID})
	}
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"l.product_id": *filter.ProductID})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"l.quantity": int64(0)})
	}

	return q.OrderBy("l.product_id", "l.branch_id")
}

// Delete removes a level row.
func (r *StockRepo) Delete(ctx context.Context, key entity.StockKey) error {
	q := r.builder.Delete(stockLevelsTable).
		Where(squirrel.Eq{"product_id": key.ProductID, "branch_id": key.BranchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete stock level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(stockLevelsTable, key.ProductID.String()+"/"+key.BranchID.String())
	}

	return nil
}
