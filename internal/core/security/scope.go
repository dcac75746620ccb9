// Package security provides authorization and access control.
package security

import (
	"context"

	"retailstock/internal/core/apperror"
	appctx "retailstock/internal/core/context"
	"retailstock/internal/core/id"
)

// Role of an authenticated user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// ScopeKind selects which rows a query or ledger operation may touch.
type ScopeKind string

const (
	ScopeAll     ScopeKind = "all"
	ScopeAccount ScopeKind = "account"
	ScopeBranch  ScopeKind = "branch"
	// ScopeNone matches nothing (e.g. a staff user not assigned to a branch).
	ScopeNone ScopeKind = "none"
)

// Scope defines the boundaries of data visibility for the current request.
// Admins see everything, managers one account, staff a single branch.
type Scope struct {
	Kind      ScopeKind
	AccountID id.ID
	BranchID  id.ID

	// UserID is the authenticated user the scope was derived from.
	UserID string
	Role   Role
}

// All returns a scope that covers every account.
func All() Scope {
	return Scope{Kind: ScopeAll}
}

// ForAccount limits the scope to one account.
func ForAccount(accountID id.ID) Scope {
	return Scope{Kind: ScopeAccount, AccountID: accountID}
}

// ForBranch limits the scope to one branch of an account.
func ForBranch(accountID, branchID id.ID) Scope {
	return Scope{Kind: ScopeBranch, AccountID: accountID, BranchID: branchID}
}

// None returns a scope that matches no rows.
func None() Scope {
	return Scope{Kind: ScopeNone}
}

// FromUser derives the scope for an authenticated user.
func FromUser(user *appctx.UserContext) (Scope, error) {
	if user == nil {
		return None(), apperror.NewUnauthorized("authentication required")
	}

	var (
		scope Scope
		err   error
	)
	switch Role(user.Role) {
	case RoleAdmin:
		scope = All()
	case RoleManager:
		scope, err = accountScope(user)
	case RoleStaff:
		scope, err = branchScope(user)
	default:
		return None(), apperror.NewForbidden("unknown role").WithDetail("role", user.Role)
	}
	if err != nil {
		return None(), err
	}

	scope.UserID = user.UserID
	scope.Role = Role(user.Role)
	return scope, nil
}

func accountScope(user *appctx.UserContext) (Scope, error) {
	accountID, err := id.Parse(user.AccountID)
	if err != nil {
		return None(), apperror.NewForbidden("manager is not linked to an account")
	}
	return ForAccount(accountID), nil
}

func branchScope(user *appctx.UserContext) (Scope, error) {
	accountID, err := id.Parse(user.AccountID)
	if err != nil {
		return None(), apperror.NewForbidden("staff is not linked to an account")
	}
	if user.BranchID == "" {
		s := None()
		s.AccountID = accountID
		return s, nil
	}
	branchID, err := id.Parse(user.BranchID)
	if err != nil {
		return None(), apperror.NewForbidden("staff branch is invalid")
	}
	return ForBranch(accountID, branchID), nil
}

// Includes reports whether a row owned by (accountID, branchID) is visible.
func (s Scope) Includes(accountID, branchID id.ID) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeAccount:
		return s.AccountID == accountID
	case ScopeBranch:
		return s.AccountID == accountID && s.BranchID == branchID
	}
	return false
}

// IncludesAccount reports whether any row of the account may be visible.
func (s Scope) IncludesAccount(accountID id.ID) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeAccount, ScopeBranch:
		return s.AccountID == accountID
	}
	return false
}

// RequireBranch returns a forbidden error unless the branch is in scope.
func (s Scope) RequireBranch(accountID, branchID id.ID) error {
	if s.Includes(accountID, branchID) {
		return nil
	}
	return apperror.NewForbidden("branch is outside of your access scope").
		WithDetail("branch_id", branchID.String())
}

// CanModifyMovement applies the edit/delete rule for movements: staff may
// change only movements they recorded themselves.
func (s Scope) CanModifyMovement(accountID, branchID id.ID, createdBy string) error {
	if err := s.RequireBranch(accountID, branchID); err != nil {
		return err
	}
	if s.Role == RoleStaff && createdBy != s.UserID {
		return apperror.NewForbidden("staff may modify only their own movements")
	}
	return nil
}

// RequireManager rejects staff (catalog writes are manager/admin only).
func (s Scope) RequireManager() error {
	if s.Role == RoleAdmin || s.Role == RoleManager {
		return nil
	}
	return apperror.NewForbidden("manager or admin role required")
}

// --- Context-based scope access ---

type scopeKey struct{}

// WithScope adds Scope to context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// GetScope returns Scope from context, deriving it from the user if absent.
func GetScope(ctx context.Context) (Scope, error) {
	if v, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return v, nil
	}
	return FromUser(appctx.GetUser(ctx))
}
