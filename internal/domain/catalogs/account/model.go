// Package account provides the Account catalog: the tenant that owns
// users, branches, products and their stock.
package account

import (
	"context"
	"strings"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
)

// Account is a tenant.
type Account struct {
	entity.BaseEntity

	Name     string  `db:"name" json:"name"`
	Address  *string `db:"address" json:"address,omitempty"`
	Phone    *string `db:"phone" json:"phone,omitempty"`
	IsActive bool    `db:"is_active" json:"isActive"`
}

// NewAccount creates an active account.
func NewAccount(name string) *Account {
	return &Account{
		BaseEntity: entity.NewBaseEntity(),
		Name:       strings.TrimSpace(name),
		IsActive:   true,
	}
}

// Validate implements entity.Validatable interface.
func (a *Account) Validate(_ context.Context) error {
	if strings.TrimSpace(a.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if len(a.Name) > 100 {
		return apperror.NewValidation("name is too long").WithDetail("field", "name").WithDetail("max", 100)
	}
	if a.Phone != nil && len(*a.Phone) > 20 {
		return apperror.NewValidation("phone is too long").WithDetail("field", "phone").WithDetail("max", 20)
	}
	return nil
}
