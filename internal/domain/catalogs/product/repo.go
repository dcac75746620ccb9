package product

import (
	"context"

	"retailstock/internal/core/id"
	"retailstock/internal/domain"
)

// Repository defines the interface for Product persistence.
// CountDependents reports "stock_levels" and "movements".
type Repository interface {
	domain.CatalogRepository[*Product]

	// ExistsByName reports whether branchID already has a product named
	// name, compared case-insensitively.
	ExistsByName(ctx context.Context, branchID id.ID, name string) (bool, error)
}
