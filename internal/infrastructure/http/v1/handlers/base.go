package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"retailstock/internal/core/apperror"
	appctx "retailstock/internal/core/context"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses integer query parameter with default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParamID parses a path parameter as an ID.
func (h *BaseHandler) ParamID(c *gin.Context, name string) (id.ID, bool) {
	v, err := id.ParseField(name, c.Param(name))
	if err != nil {
		h.Error(c, err)
		return id.Nil(), false
	}
	return v, true
}

// Scope returns the caller's access scope set by the Auth middleware.
func (h *BaseHandler) Scope(c *gin.Context) (security.Scope, bool) {
	scope, err := security.GetScope(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return security.None(), false
	}
	return scope, true
}

// Actor returns the authenticated user as the author of ledger writes.
func (h *BaseHandler) Actor(c *gin.Context) entity.Actor {
	user := appctx.GetUser(c.Request.Context())
	if user == nil {
		return entity.Actor{}
	}
	name := user.DisplayName
	if name == "" {
		name = user.Email
	}
	return entity.Actor{ID: user.UserID, Name: name}
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// CanDelete sends the answer of a delete pre-check.
func (h *BaseHandler) CanDelete(c *gin.Context, ok bool) {
	c.JSON(http.StatusOK, dto.CanDeleteResponse{CanDelete: ok})
}
