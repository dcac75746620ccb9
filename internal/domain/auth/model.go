// Package auth provides authentication and user management.
package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
)

// User represents a person who can log in.
// Admins have no account; managers belong to an account; staff also to a branch.
type User struct {
	ID                  id.ID         `db:"id" json:"id"`
	AccountID           *id.ID        `db:"account_id" json:"accountId,omitempty"`
	BranchID            *id.ID        `db:"branch_id" json:"branchId,omitempty"`
	Email               string        `db:"email" json:"email"`
	PasswordHash        string        `db:"password_hash" json:"-"`
	FirstName           string        `db:"first_name" json:"firstName"`
	LastName            string        `db:"last_name" json:"lastName"`
	Role                security.Role `db:"role" json:"role"`
	IsActive            bool          `db:"is_active" json:"isActive"`
	LastLoginAt         *time.Time    `db:"last_login_at" json:"lastLoginAt,omitempty"`
	FailedLoginAttempts int           `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time    `db:"locked_until" json:"-"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
}

// NewUser creates a new active user.
func NewUser(email, passwordHash string, role security.Role) *User {
	return &User{
		ID:           id.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

// Validate validates user data.
func (u *User) Validate(_ context.Context) error {
	if u.Email == "" {
		return apperror.NewValidation("email is required").WithDetail("field", "email")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return apperror.NewValidation("email is invalid").WithDetail("field", "email")
	}
	if !u.Role.Valid() {
		return apperror.NewValidation("unknown role").WithDetail("field", "role").WithDetail("value", u.Role)
	}

	switch u.Role {
	case security.RoleAdmin:
		if u.AccountID != nil {
			return apperror.NewValidation("admin cannot belong to an account").WithDetail("field", "accountId")
		}
	case security.RoleManager:
		if u.AccountID == nil {
			return apperror.NewValidation("manager requires an account").WithDetail("field", "accountId")
		}
	case security.RoleStaff:
		if u.AccountID == nil {
			return apperror.NewValidation("staff requires an account").WithDetail("field", "accountId")
		}
		if u.BranchID == nil {
			return apperror.NewValidation("staff requires a branch").WithDetail("field", "branchId")
		}
	}
	return nil
}

// IsLocked returns true if the user is temporarily locked out.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// CanLogin checks if user can login.
func (u *User) CanLogin(now time.Time) error {
	if !u.IsActive {
		return apperror.NewForbidden("user is disabled")
	}
	if u.IsLocked(now) {
		return apperror.NewForbidden("user is temporarily locked")
	}
	return nil
}

// RecordFailedLogin increments failed login counter.
func (u *User) RecordFailedLogin(now time.Time, maxAttempts int, lockDuration time.Duration) {
	u.FailedLoginAttempts++
	if maxAttempts > 0 && u.FailedLoginAttempts >= maxAttempts {
		lockUntil := now.Add(lockDuration)
		u.LockedUntil = &lockUntil
	}
}

// RecordSuccessfulLogin resets failed login counter.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
}

// FullName returns user's full name.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Credentials for login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest for creating a user.
type CreateUserRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      security.Role
	AccountID *id.ID
	BranchID  *id.ID
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TokenType   string    `json:"tokenType"`
}
