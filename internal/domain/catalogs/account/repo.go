package account

import (
	"retailstock/internal/domain"
)

// Repository defines the interface for Account persistence.
// CountDependents reports "users", "branches", "products" and "movements".
type Repository interface {
	domain.CatalogRepository[*Account]
}
