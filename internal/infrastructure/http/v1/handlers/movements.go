package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/reports"
	"retailstock/internal/infrastructure/http/v1/dto"
)

// MovementHandler serves the stock movement ledger.
// Writes go through the scoped ledger service; reads through reports.
type MovementHandler struct {
	*BaseHandler
	ledger  *ledger.Service
	reports *reports.Service
}

// NewMovementHandler creates a new movement handler.
func NewMovementHandler(base *BaseHandler, ledgerSvc *ledger.Service, reportsSvc *reports.Service) *MovementHandler {
	return &MovementHandler{
		BaseHandler: base,
		ledger:      ledgerSvc,
		reports:     reportsSvc,
	}
}

// Create handles POST /movements
func (h *MovementHandler) Create(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	fields, err := req.ToFields()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.ledger.Create(c.Request.Context(), scope, ledger.CreateRequest{MovementFields: fields}, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromResult(res))
}

// Update handles PUT /movements/:id. The body re-states the whole movement.
func (h *MovementHandler) Update(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	fields, err := req.ToFields()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.ledger.Update(c.Request.Context(), scope, movementID, ledger.UpdateRequest{MovementFields: fields}, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromResult(res))
}

// Delete handles DELETE /movements/:id and reports the reversed effect.
func (h *MovementHandler) Delete(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	res, err := h.ledger.Delete(c.Request.Context(), scope, movementID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromResult(res))
}

// Get handles GET /movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	m, err := h.ledger.Get(c.Request.Context(), scope, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// List handles GET /movements. With recent=true only movements of the
// recent window are returned.
func (h *MovementHandler) List(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.MovementListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	if req.Recent {
		page, err := h.reports.ListRecentMovements(c.Request.Context(), scope, req.Limit)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, page)
		return
	}

	filter := reports.MovementFilter{
		Scope:  scope,
		Type:   entity.MovementType(strings.ToUpper(req.Type)),
		Since:  req.Since,
		Until:  req.Until,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	var err error
	if filter.ProductID, err = id.ParseOptional("productId", req.ProductID); err != nil {
		h.Error(c, err)
		return
	}
	if filter.BranchID, err = id.ParseOptional("branchId", req.BranchID); err != nil {
		h.Error(c, err)
		return
	}

	page, err := h.reports.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, page)
}

// Logs handles GET /movements/:id/logs, newest first. Deleted movements
// keep their history.
func (h *MovementHandler) Logs(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	logs, err := h.reports.GetMovementLogs(c.Request.Context(), scope, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": logs})
}
