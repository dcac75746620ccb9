// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/domain"
	domainFilter "retailstock/internal/domain/filter"
	"retailstock/internal/infrastructure/http/v1/dto"
)

// CatalogService is the part of a catalog service the handler drives.
// *domain.CatalogService and the services embedding it satisfy it.
type CatalogService[T entity.Validatable] interface {
	Create(ctx context.Context, entity T) error
	GetByID(ctx context.Context, entityID id.ID) (T, error)
	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error)
	CanDelete(ctx context.Context, entityID id.ID) (bool, error)
	Delete(ctx context.Context, entityID id.ID) error
}

// CatalogHandler provides generic HTTP handlers for catalog entities.
// Reads are limited to the caller's scope; writes need a manager of the
// owning account or an admin.
type CatalogHandler[T entity.Validatable, CreateDTO any] struct {
	*BaseHandler
	service    CatalogService[T]
	entityName string
	adminOnly  bool

	mapCreateDTO func(ctx context.Context, scope security.Scope, req CreateDTO) (T, error)
	mapToDTO     func(entity T) any
	owner        func(entity T) (accountID, branchID id.ID)
}

// CatalogHandlerConfig configures the catalog handler.
type CatalogHandlerConfig[T entity.Validatable, CreateDTO any] struct {
	Service    CatalogService[T]
	EntityName string

	// AdminOnly restricts writes to admins (accounts).
	AdminOnly bool

	MapCreateDTO func(ctx context.Context, scope security.Scope, req CreateDTO) (T, error)
	MapToDTO     func(entity T) any

	// Owner returns the account and branch an entity belongs to. A nil
	// branch id means the entity is visible to the whole account.
	Owner func(entity T) (accountID, branchID id.ID)
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler[T entity.Validatable, CreateDTO any](
	base *BaseHandler,
	cfg CatalogHandlerConfig[T, CreateDTO],
) *CatalogHandler[T, CreateDTO] {
	return &CatalogHandler[T, CreateDTO]{
		BaseHandler:  base,
		service:      cfg.Service,
		entityName:   cfg.EntityName,
		adminOnly:    cfg.AdminOnly,
		mapCreateDTO: cfg.MapCreateDTO,
		mapToDTO:     cfg.MapToDTO,
		owner:        cfg.Owner,
	}
}

// List handles GET /{entity} - list with filtering and pagination.
// Repeated filter=field:op:value parameters add column conditions.
func (h *CatalogHandler[T, CreateDTO]) List(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	filter := domain.DefaultListFilter()
	filter.Search = c.Query("search")
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.OrderBy = c.DefaultQuery("orderBy", "name")

	for _, raw := range c.QueryArray("filter") {
		item, err := domainFilter.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid filter").WithDetail("error", err.Error()))
			return
		}
		filter.AdvancedFilters = append(filter.AdvancedFilters, item)
	}

	switch scope.Kind {
	case security.ScopeNone:
		h.OK(c, dto.ListResponse{Items: []any{}, Limit: filter.Limit, Offset: filter.Offset})
		return
	case security.ScopeAccount:
		filter.AccountID = &scope.AccountID
	case security.ScopeBranch:
		filter.AccountID = &scope.AccountID
		filter.BranchID = &scope.BranchID
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]any, len(result.Items))
	for i, item := range result.Items {
		items[i] = h.mapToDTO(item)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /{entity}/:id - get single entity.
func (h *CatalogHandler[T, CreateDTO]) Get(c *gin.Context) {
	entity, _, ok := h.load(c)
	if !ok {
		return
	}
	h.OK(c, h.mapToDTO(entity))
}

// Create handles POST /{entity} - create new entity.
func (h *CatalogHandler[T, CreateDTO]) Create(c *gin.Context) {
	ctx := c.Request.Context()

	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	var req CreateDTO
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.mapCreateDTO(ctx, scope, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	accountID, _ := h.owner(entity)
	if err := h.authorizeWrite(scope, accountID); err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(ctx, entity); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, h.mapToDTO(entity))
}

// CanDelete handles GET /{entity}/:id/can-delete.
func (h *CatalogHandler[T, CreateDTO]) CanDelete(c *gin.Context) {
	entity, scope, ok := h.load(c)
	if !ok {
		return
	}
	accountID, _ := h.owner(entity)
	if err := h.authorizeWrite(scope, accountID); err != nil {
		h.Error(c, err)
		return
	}

	entityID, _ := h.ParamID(c, "id")
	can, err := h.service.CanDelete(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.BaseHandler.CanDelete(c, can)
}

// Delete handles DELETE /{entity}/:id. Entities still referenced are
// refused with HAS_DEPENDENTS.
func (h *CatalogHandler[T, CreateDTO]) Delete(c *gin.Context) {
	entity, scope, ok := h.load(c)
	if !ok {
		return
	}
	accountID, _ := h.owner(entity)
	if err := h.authorizeWrite(scope, accountID); err != nil {
		h.Error(c, err)
		return
	}

	entityID, _ := h.ParamID(c, "id")
	if err := h.service.Delete(c.Request.Context(), entityID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// load fetches the :id entity and hides it when it is outside the scope.
func (h *CatalogHandler[T, CreateDTO]) load(c *gin.Context) (T, security.Scope, bool) {
	var zero T

	scope, ok := h.Scope(c)
	if !ok {
		return zero, scope, false
	}
	entityID, ok := h.ParamID(c, "id")
	if !ok {
		return zero, scope, false
	}

	entity, err := h.service.GetByID(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return zero, scope, false
	}
	if !h.visible(scope, entity) {
		h.Error(c, apperror.NewNotFound(h.entityName, entityID.String()))
		return zero, scope, false
	}
	return entity, scope, true
}

func (h *CatalogHandler[T, CreateDTO]) visible(scope security.Scope, entity T) bool {
	accountID, branchID := h.owner(entity)
	if id.IsNil(branchID) {
		return scope.IncludesAccount(accountID)
	}
	return scope.Includes(accountID, branchID)
}

func (h *CatalogHandler[T, CreateDTO]) authorizeWrite(scope security.Scope, accountID id.ID) error {
	if h.adminOnly {
		if scope.Kind != security.ScopeAll {
			return apperror.NewForbidden("admin role required")
		}
		return nil
	}
	if err := scope.RequireManager(); err != nil {
		return err
	}
	if !scope.IncludesAccount(accountID) {
		return apperror.NewForbidden("account is outside of your access scope").
			WithDetail("account_id", accountID.String())
	}
	return nil
}
