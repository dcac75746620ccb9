package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailstock/internal/core/apperror"
	appctx "retailstock/internal/core/context"
	"retailstock/internal/core/id"
)

func TestFromUser(t *testing.T) {
	account := id.New()
	branch := id.New()

	tests := []struct {
		name     string
		user     *appctx.UserContext
		wantKind ScopeKind
		wantErr  bool
	}{
		{"admin", &appctx.UserContext{UserID: "a", Role: "admin"}, ScopeAll, false},
		{"manager", &appctx.UserContext{UserID: "m", Role: "manager", AccountID: account.String()}, ScopeAccount, false},
		{"staff", &appctx.UserContext{UserID: "s", Role: "staff", AccountID: account.String(), BranchID: branch.String()}, ScopeBranch, false},
		{"staff without branch", &appctx.UserContext{UserID: "s", Role: "staff", AccountID: account.String()}, ScopeNone, false},
		{"manager without account", &appctx.UserContext{UserID: "m", Role: "manager"}, ScopeNone, true},
		{"unknown role", &appctx.UserContext{UserID: "x", Role: "owner"}, ScopeNone, true},
		{"anonymous", nil, ScopeNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := FromUser(tt.user)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, scope.Kind)
			assert.Equal(t, tt.user.UserID, scope.UserID)
		})
	}
}

func TestScope_Includes(t *testing.T) {
	a1, a2 := id.New(), id.New()
	b1, b2 := id.New(), id.New()

	assert.True(t, All().Includes(a2, b2))
	assert.True(t, ForAccount(a1).Includes(a1, b2))
	assert.False(t, ForAccount(a1).Includes(a2, b1))
	assert.True(t, ForBranch(a1, b1).Includes(a1, b1))
	assert.False(t, ForBranch(a1, b1).Includes(a1, b2))
	assert.False(t, None().Includes(a1, b1))
}

func TestScope_CanModifyMovement_StaffOwnOnly(t *testing.T) {
	a, b := id.New(), id.New()
	staff := ForBranch(a, b)
	staff.Role = RoleStaff
	staff.UserID = "s1"

	assert.NoError(t, staff.CanModifyMovement(a, b, "s1"))

	err := staff.CanModifyMovement(a, b, "s2")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)

	manager := ForAccount(a)
	manager.Role = RoleManager
	assert.NoError(t, manager.CanModifyMovement(a, b, "s2"))
}

func TestGetScope_PrefersExplicitScope(t *testing.T) {
	a := id.New()
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "adm", Role: "admin"})
	ctx = WithScope(ctx, ForAccount(a))

	scope, err := GetScope(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScopeAccount, scope.Kind)
}
