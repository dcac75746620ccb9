// Package branch provides the Branch catalog: a shop of one account where
// products are stocked and sold.
package branch

import (
	"context"
	"strings"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
)

// Branch represents one selling location.
type Branch struct {
	entity.BaseEntity

	AccountID id.ID  `db:"account_id" json:"accountId"`
	Name      string `db:"name" json:"name"`

	// ManagerID is an optional user of the same account.
	ManagerID *id.ID `db:"manager_id" json:"managerId,omitempty"`
}

// NewBranch creates a branch for accountID.
func NewBranch(accountID id.ID, name string) *Branch {
	return &Branch{
		BaseEntity: entity.NewBaseEntity(),
		AccountID:  accountID,
		Name:       strings.TrimSpace(name),
	}
}

// Validate implements entity.Validatable interface.
func (b *Branch) Validate(_ context.Context) error {
	if id.IsNil(b.AccountID) {
		return apperror.NewValidation("account is required").WithDetail("field", "accountId")
	}
	if strings.TrimSpace(b.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if len(b.Name) > 100 {
		return apperror.NewValidation("name is too long").WithDetail("field", "name").WithDetail("max", 100)
	}
	return nil
}
