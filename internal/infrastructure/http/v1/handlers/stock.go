package handlers

import (
	"github.com/gin-gonic/gin"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/registers/stock"
	"retailstock/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the stock level register.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
	catalog ledger.CatalogLookup
}

// NewStockHandler creates a new stock register handler.
func NewStockHandler(base *BaseHandler, service *stock.Service, catalog ledger.CatalogLookup) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
		catalog:     catalog,
	}
}

// ListLevels handles GET /stock/levels
func (h *StockHandler) ListLevels(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	filter := stock.LevelFilter{ExcludeZero: c.Query("excludeZero") == "true"}
	var err error
	if filter.ProductID, err = id.ParseOptional("productId", c.Query("productId")); err != nil {
		h.Error(c, err)
		return
	}
	if filter.BranchID, err = id.ParseOptional("branchId", c.Query("branchId")); err != nil {
		h.Error(c, err)
		return
	}

	switch scope.Kind {
	case security.ScopeNone:
		h.OK(c, gin.H{"items": []dto.StockLevelResponse{}})
		return
	case security.ScopeAccount:
		filter.AccountID = &scope.AccountID
	case security.ScopeBranch:
		if filter.BranchID != nil && *filter.BranchID != scope.BranchID {
			h.Error(c, scope.RequireBranch(scope.AccountID, *filter.BranchID))
			return
		}
		filter.AccountID = &scope.AccountID
		filter.BranchID = &scope.BranchID
	}

	levels, err := h.service.ListLevels(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockLevelResponse, len(levels))
	for i, l := range levels {
		items[i] = dto.FromStockLevel(l)
	}
	h.OK(c, gin.H{"items": items})
}

// GetLevel handles GET /stock/levels/:productId/:branchId
// A key that never saw a movement reports zero.
func (h *StockHandler) GetLevel(c *gin.Context) {
	key, _, ok := h.key(c)
	if !ok {
		return
	}
	level, err := h.service.GetLevel(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockLevel(level))
}

// CanDeleteLevel handles GET /stock/levels/:productId/:branchId/can-delete
func (h *StockHandler) CanDeleteLevel(c *gin.Context) {
	key, scope, ok := h.key(c)
	if !ok {
		return
	}
	if err := scope.RequireManager(); err != nil {
		h.Error(c, err)
		return
	}
	can, err := h.service.CanDelete(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CanDelete(c, can)
}

// DeleteLevel handles DELETE /stock/levels/:productId/:branchId.
// Levels still holding units are refused with HAS_DEPENDENTS.
func (h *StockHandler) DeleteLevel(c *gin.Context) {
	key, scope, ok := h.key(c)
	if !ok {
		return
	}
	if err := scope.RequireManager(); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), key); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// key parses the level key and checks that its branch is in scope.
func (h *StockHandler) key(c *gin.Context) (entity.StockKey, security.Scope, bool) {
	scope, ok := h.Scope(c)
	if !ok {
		return entity.StockKey{}, scope, false
	}
	productID, ok := h.ParamID(c, "productId")
	if !ok {
		return entity.StockKey{}, scope, false
	}
	branchID, ok := h.ParamID(c, "branchId")
	if !ok {
		return entity.StockKey{}, scope, false
	}

	ref, err := h.catalog.GetBranchRef(c.Request.Context(), branchID)
	if err != nil {
		h.Error(c, err)
		return entity.StockKey{}, scope, false
	}
	if !scope.Includes(ref.AccountID, ref.ID) {
		h.Error(c, apperror.NewNotFound("branch", branchID.String()))
		return entity.StockKey{}, scope, false
	}
	return entity.StockKey{ProductID: productID, BranchID: branchID}, scope, true
}
