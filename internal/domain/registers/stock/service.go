package stock

import (
	"context"
	"fmt"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/tx"
	"retailstock/pkg/logger"
)

// Service provides read and maintenance operations on stock levels.
// Quantities are only ever changed by the ledger engine.
type Service struct {
	repo Repository
	txm  tx.Manager
}

// NewService creates a new stock register service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{
		repo: repo,
		txm:  txm,
	}
}

// GetLevel returns the level for key, or a zero level when none was created yet.
func (s *Service) GetLevel(ctx context.Context, key entity.StockKey) (entity.StockLevel, error) {
	level, err := s.repo.Get(ctx, key)
	if apperror.IsNotFound(err) {
		return entity.StockLevel{ProductID: key.ProductID, BranchID: key.BranchID}, nil
	}
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("get stock level: %w", err)
	}
	return level, nil
}

// ListLevels returns levels matching filter.
func (s *Service) ListLevels(ctx context.Context, filter LevelFilter) ([]entity.StockLevel, error) {
	levels, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	return levels, nil
}

// CanDelete reports whether the level at key may be removed.
// A level holding units is never deleted.
func (s *Service) CanDelete(ctx context.Context, key entity.StockKey) (bool, error) {
	level, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return level.Quantity <= 0, nil
}

// Delete removes an empty level. The check and the delete share one
// transaction holding the row lock, so a concurrent IN cannot slip in between.
func (s *Service) Delete(ctx context.Context, key entity.StockKey) error {
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, key); err != nil {
			return err
		}
		level, err := s.repo.GetForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock stock level: %w", err)
		}
		if level.Quantity > 0 {
			return apperror.NewHasDependents("stock_level", key.ProductID.String()+"/"+key.BranchID.String(),
				map[string]int64{"quantity": level.Quantity})
		}
		return s.repo.Delete(ctx, key)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock level deleted",
		"product_id", key.ProductID,
		"branch_id", key.BranchID,
	)
	return nil
}
