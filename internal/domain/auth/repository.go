package auth

import (
	"context"

	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
)

// UserRepository defines user storage operations.
type UserRepository interface {
	// Create creates a new user. A taken email returns DUPLICATE_ENTRY.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves user by ID.
	GetByID(ctx context.Context, userID id.ID) (*User, error)

	// GetByEmail retrieves user by email, compared lower-cased.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateLoginState persists login bookkeeping (attempts, lock, last login).
	UpdateLoginState(ctx context.Context, user *User) error

	// Delete removes a user.
	Delete(ctx context.Context, userID id.ID) error

	// List retrieves users with filtering.
	List(ctx context.Context, filter UserFilter) ([]User, int, error)

	// ExistsByEmail checks if email is taken.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// CountMovements returns how many movements the user created.
	CountMovements(ctx context.Context, userID id.ID) (int64, error)
}

// UserFilter for listing users.
type UserFilter struct {
	AccountID *id.ID
	BranchID  *id.ID
	Role      security.Role
	Search    string
	IsActive  *bool
	Limit     int
	Offset    int
}
