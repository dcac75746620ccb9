package ledger

import (
	"context"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/tx"
)

// Service applies the caller's access scope to engine operations.
// The engine trusts its callers; handlers go through Service.
type Service struct {
	engine    *Engine
	txm       tx.Manager
	movements MovementRepository
	catalog   CatalogLookup
}

// NewService creates a scoped ledger service.
func NewService(engine *Engine, txm tx.Manager, movements MovementRepository, catalog CatalogLookup) *Service {
	return &Service{
		engine:    engine,
		txm:       txm,
		movements: movements,
		catalog:   catalog,
	}
}

// Create records a movement on a branch the scope can act on.
func (s *Service) Create(ctx context.Context, scope security.Scope, req CreateRequest, actor entity.Actor) (Result, error) {
	if err := s.requireBranch(ctx, scope, req.BranchID); err != nil {
		return Result{}, err
	}
	return s.engine.CreateMovement(ctx, req, actor)
}

// Update re-states a movement. The movement is locked before the scope
// check so it cannot move out of scope between check and write.
func (s *Service) Update(ctx context.Context, scope security.Scope, movementID id.ID, req UpdateRequest, actor entity.Actor) (Result, error) {
	var res Result
	err := s.run(ctx, func(ctx context.Context) error {
		m, err := s.movements.GetForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if err := s.canModify(scope, m); err != nil {
			return err
		}
		if req.BranchID != m.BranchID {
			if err := s.requireBranch(ctx, scope, req.BranchID); err != nil {
				return err
			}
		}

		res, err = s.engine.UpdateMovement(ctx, movementID, req, actor)
		return err
	})
	return res, err
}

// Delete removes a movement the scope may modify.
func (s *Service) Delete(ctx context.Context, scope security.Scope, movementID id.ID, actor entity.Actor) (Result, error) {
	var res Result
	err := s.run(ctx, func(ctx context.Context) error {
		m, err := s.movements.GetForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if err := s.canModify(scope, m); err != nil {
			return err
		}

		res, err = s.engine.DeleteMovement(ctx, movementID, actor)
		return err
	})
	return res, err
}

// Get returns a movement visible in scope. Invisible movements are reported
// as NOT_FOUND so their existence does not leak across tenants.
func (s *Service) Get(ctx context.Context, scope security.Scope, movementID id.ID) (*entity.StockMovement, error) {
	m, err := s.movements.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if !scope.Includes(m.AccountID, m.BranchID) {
		return nil, apperror.NewNotFound("stock_movement", movementID.String())
	}
	return m, nil
}

func (s *Service) canModify(scope security.Scope, m *entity.StockMovement) error {
	if !scope.IncludesAccount(m.AccountID) {
		return apperror.NewNotFound("stock_movement", m.ID.String())
	}
	return scope.CanModifyMovement(m.AccountID, m.BranchID, m.CreatedBy)
}

func (s *Service) requireBranch(ctx context.Context, scope security.Scope, branchID id.ID) error {
	ref, err := s.catalog.GetBranchRef(ctx, branchID)
	if err != nil {
		return err
	}
	return scope.RequireBranch(ref.AccountID, ref.ID)
}

func (s *Service) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if rm, ok := s.txm.(tx.RetryingManager); ok {
		return rm.RunInTransactionWithRetry(ctx, fn)
	}
	return s.txm.RunInTransaction(ctx, fn)
}
