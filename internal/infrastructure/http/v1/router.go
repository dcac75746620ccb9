// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"retailstock/internal/core/security"
	"retailstock/internal/domain/auth"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/registers/stock"
	"retailstock/internal/domain/reports"
	"retailstock/internal/infrastructure/http/v1/handlers"
	"retailstock/internal/infrastructure/http/v1/middleware"
	"retailstock/internal/infrastructure/idempotency"
	"retailstock/pkg/logger"
)

// RouterConfig holds the services the API is built on.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Development switches gin to debug mode.
	Development bool

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	AuthService *auth.Service
	Accounts    *account.Service
	Branches    *branch.Service
	Products    *product.Service
	Stock       *stock.Service
	Ledger      *ledger.Service
	Reports     *reports.Service

	// Catalog resolves branch ownership for stock level routes.
	Catalog ledger.CatalogLookup

	// Idempotency backs X-Idempotency-Key on movement writes; nil disables it.
	Idempotency idempotency.Store

	// RateLimit bounds requests per user (or IP before login); nil disables it.
	RateLimit *middleware.RateLimitConfig

	// HealthChecks are pinged by /health/ready.
	HealthChecks map[string]handlers.Pinger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!). Recovery sits inside ErrorHandler
	// so a recovered panic is still rendered as JSON.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()

	v1 := router.Group("/api/v1")
	{
		registerAuthRoutes(v1, base, cfg)

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))
		if cfg.RateLimit != nil {
			protected.Use(middleware.RateLimit(*cfg.RateLimit))
		}

		registerCatalogRoutes(protected, base, cfg)
		registerUserRoutes(protected, base, cfg)
		registerMovementRoutes(protected, base, cfg)
		registerStockRoutes(protected, base, cfg)
		registerReportRoutes(protected, base, cfg)
	}

	return router
}

// registerAuthRoutes registers authentication endpoints.
func registerAuthRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	authHandler := handlers.NewAuthHandler(base, cfg.AuthService)

	public := rg.Group("/auth")
	if cfg.RateLimit != nil {
		public.Use(middleware.RateLimit(*cfg.RateLimit))
	}
	public.POST("/login", authHandler.Login)

	protected := rg.Group("/auth")
	protected.Use(middleware.Auth(cfg.JWTValidator))
	protected.GET("/me", authHandler.Me)
}

// registerCatalogRoutes registers account, branch and product endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	RegisterCatalogRoutes(rg.Group("/accounts"), handlers.NewAccountHandler(base, cfg.Accounts))
	RegisterCatalogRoutes(rg.Group("/branches"), handlers.NewBranchHandler(base, cfg.Branches))
	RegisterCatalogRoutes(rg.Group("/products"), handlers.NewProductHandler(base, cfg.Products, cfg.Branches))
}

// registerUserRoutes registers user management, limited to managers and admins.
func registerUserRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewAuthHandler(base, cfg.AuthService)

	users := rg.Group("/users")
	users.Use(middleware.RequireRole(security.RoleAdmin, security.RoleManager))
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.GET("/:id/can-delete", h.CanDeleteUser)
		users.DELETE("/:id", h.DeleteUser)
	}
}

// registerMovementRoutes registers the ledger endpoints. Writes accept
// X-Idempotency-Key when a store is configured.
func registerMovementRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewMovementHandler(base, cfg.Ledger, cfg.Reports)

	movements := rg.Group("/movements")
	if cfg.Idempotency != nil {
		movements.Use(middleware.Idempotency(cfg.Idempotency))
	}
	{
		movements.GET("", h.List)
		movements.POST("", h.Create)
		movements.GET("/:id", h.Get)
		movements.PUT("/:id", h.Update)
		movements.DELETE("/:id", h.Delete)
		movements.GET("/:id/logs", h.Logs)
	}
}

// registerStockRoutes registers stock summary and level endpoints.
func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	reportsHandler := handlers.NewReportsHandler(base, cfg.Reports)
	stockHandler := handlers.NewStockHandler(base, cfg.Stock, cfg.Catalog)

	s := rg.Group("/stock")
	{
		s.GET("/summary", reportsHandler.StockSummary)
		s.GET("/levels", stockHandler.ListLevels)
		s.GET("/levels/:productId/:branchId", stockHandler.GetLevel)
		s.GET("/levels/:productId/:branchId/can-delete", stockHandler.CanDeleteLevel)
		s.DELETE("/levels/:productId/:branchId", stockHandler.DeleteLevel)
	}
}

// registerReportRoutes registers report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewReportsHandler(base, cfg.Reports)

	rg.GET("/reports/daily", h.DailyReport)
	rg.GET("/dashboard", h.Dashboard)
	rg.GET("/accounts/:id/overview", h.AccountOverview)
}
