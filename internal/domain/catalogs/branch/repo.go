package branch

import (
	"retailstock/internal/domain"
)

// Repository defines the interface for Branch persistence.
// CountDependents reports "users", "products", "stock_levels" and "movements".
type Repository interface {
	domain.CatalogRepository[*Branch]
}
