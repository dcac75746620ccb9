package handlers

import (
	"github.com/gin-gonic/gin"

	"retailstock/internal/core/apperror"
	appctx "retailstock/internal/core/context"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/domain/auth"
	"retailstock/internal/infrastructure/http/v1/dto"
)

// AuthHandler handles authentication and user endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, user, err := h.service.Login(c.Request.Context(), req.ToCredentials())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LoginResponse{
		Token: dto.FromToken(token),
		User:  dto.FromUser(user),
	})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()

	userCtx := appctx.GetUser(ctx)
	if userCtx == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}
	userID, err := id.Parse(userCtx.UserID)
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("invalid user id"))
		return
	}

	user, err := h.service.GetUserByID(ctx, userID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}

// CreateUser handles POST /users. Managers create users of their own
// account only and never admins.
func (h *AuthHandler) CreateUser(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	if err := scope.RequireManager(); err != nil {
		h.Error(c, err)
		return
	}

	var body dto.CreateUserRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := body.ToAuthRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	if scope.Kind != security.ScopeAll {
		if req.Role == security.RoleAdmin {
			h.Error(c, apperror.NewForbidden("only admins create admins"))
			return
		}
		if req.AccountID == nil {
			req.AccountID = &scope.AccountID
		}
		if !scope.IncludesAccount(*req.AccountID) {
			h.Error(c, apperror.NewForbidden("account is outside of your access scope"))
			return
		}
	}

	user, err := h.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromUser(user))
}

// ListUsers handles GET /users
func (h *AuthHandler) ListUsers(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	if err := scope.RequireManager(); err != nil {
		h.Error(c, err)
		return
	}

	filter := auth.UserFilter{
		Role:   security.Role(c.Query("role")),
		Search: c.Query("search"),
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if scope.Kind == security.ScopeAll {
		accountID, err := id.ParseOptional("accountId", c.Query("accountId"))
		if err != nil {
			h.Error(c, err)
			return
		}
		filter.AccountID = accountID
	} else {
		filter.AccountID = &scope.AccountID
	}
	branchID, err := id.ParseOptional("branchId", c.Query("branchId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	filter.BranchID = branchID

	users, total, err := h.service.ListUsers(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]*dto.UserResponse, len(users))
	for i := range users {
		items[i] = dto.FromUser(&users[i])
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: int64(total), Limit: filter.Limit, Offset: filter.Offset})
}

// GetUser handles GET /users/:id
func (h *AuthHandler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	h.OK(c, dto.FromUser(user))
}

// CanDeleteUser handles GET /users/:id/can-delete
func (h *AuthHandler) CanDeleteUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	can, err := h.service.CanDeleteUser(c.Request.Context(), user.ID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CanDelete(c, can)
}

// DeleteUser handles DELETE /users/:id. Users who recorded movements are kept.
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if user.ID.String() == appctx.GetUserID(c.Request.Context()) {
		h.Error(c, apperror.NewConflict("cannot delete yourself"))
		return
	}
	if err := h.service.DeleteUser(c.Request.Context(), user.ID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// loadUser returns the :id user if a manager or admin of its account asks.
func (h *AuthHandler) loadUser(c *gin.Context) (*auth.User, bool) {
	scope, ok := h.Scope(c)
	if !ok {
		return nil, false
	}
	if err := scope.RequireManager(); err != nil {
		h.Error(c, err)
		return nil, false
	}
	userID, ok := h.ParamID(c, "id")
	if !ok {
		return nil, false
	}

	user, err := h.service.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	if scope.Kind != security.ScopeAll && (user.AccountID == nil || !scope.IncludesAccount(*user.AccountID)) {
		h.Error(c, apperror.NewNotFound("user", userID.String()))
		return nil, false
	}
	return user, true
}
