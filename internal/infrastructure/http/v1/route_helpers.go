package v1

import (
	"github.com/gin-gonic/gin"
)

// CatalogRouteHandler defines the interface for catalog handlers.
type CatalogRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	CanDelete(c *gin.Context)
	Delete(c *gin.Context)
}

// RegisterCatalogRoutes registers the standard routes of a catalog.
// Authorization is per entity inside the handler, so no route guards here.
//
// Usage:
//
//	handler := handlers.NewBranchHandler(base, cfg.Branches)
//	RegisterCatalogRoutes(rg.Group("/branches"), handler)
func RegisterCatalogRoutes(group *gin.RouterGroup, handler CatalogRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.GET("/:id/can-delete", handler.CanDelete)
	group.DELETE("/:id", handler.Delete)
}
