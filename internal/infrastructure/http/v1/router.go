// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"stokado/internal/core/tenant"
	"stokado/internal/domain/adjustment"
	"stokado/internal/domain/inbound"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/reservation"
	"stokado/internal/domain/stock"
	"stokado/internal/domain/transfer"
	"stokado/internal/infrastructure/http/v1/handlers"
	"stokado/internal/infrastructure/http/v1/middleware"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/pkg/logger"
)

// RouterConfig holds router configuration for multi-tenant architecture.
type RouterConfig struct {
	// TenantManager manages database connections for all tenants
	TenantManager *tenant.Manager

	// MetaPool is connection to meta-database (for health checks)
	MetaPool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Audit records entity change history. Optional.
	Audit *postgres.AuditService
}

// NewRouter creates and configures the Gin router for multi-tenant architecture.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.MetaPool, cfg.TenantManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1: TenantDB resolves tenant + legal entity headers and puts the
	// tenant pool and TxManager on the request context.
	api := router.Group("/v1")
	api.Use(middleware.TenantDB(cfg.TenantManager))

	registerStockRoutes(api, cfg)

	return router
}

// registerStockRoutes wires repos, services and handlers for the stock
// subsystem. Repos read the tenant pool from the request context, so a
// single instance serves every tenant.
func registerStockRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()

	locationRepo := postgres.NewLocationRepository()
	stockRepo := postgres.NewStockRepository()
	movementRepo := postgres.NewMovementRepository()
	reservationRepo := postgres.NewReservationRepository()
	transferRepo := postgres.NewTransferRepository()
	adjustmentRepo := postgres.NewAdjustmentRepository()

	warehouses := postgres.NewWarehouseDirectory()
	modules := postgres.NewTenantModules()
	publisher := postgres.NewOutboxPublisher()

	locationService := location.NewService(locationRepo, stockRepo)
	stockService := stock.NewService(stockRepo)
	movementService := movement.NewService(movementRepo, stockRepo, locationService, warehouses, modules, publisher)
	reservationService := reservation.NewService(reservationRepo, stockRepo, locationService, warehouses, movementService, publisher)
	transferService := transfer.NewService(transferRepo, reservationService, movementService, locationService, warehouses, publisher)
	adjustmentService := adjustment.NewService(adjustmentRepo, stockRepo, locationService, movementService)
	inboundMapper := inbound.NewMapper(movementService, locationService)

	// --- LOCATIONS ---
	{
		handler := handlers.NewLocationHandler(baseHandler, locationService)
		locations := rg.Group("/locations")
		locations.POST("", handler.Create)
		locations.POST("/bootstrap", handler.Bootstrap)
		locations.GET("/:id", handler.Get)
		locations.PATCH("/:id", handler.Update)
		locations.DELETE("/:id", handler.Remove)

		rg.GET("/warehouses/:id/locations/tree", handler.Tree)
	}

	// --- STOCK PROJECTIONS ---
	{
		handler := handlers.NewStockHandler(baseHandler, stockService)
		rg.GET("/stock", handler.List)
	}

	// --- MOVEMENTS ---
	{
		handler := handlers.NewMovementHandler(baseHandler, movementService, cfg.Audit)
		movements := rg.Group("/movements")
		movements.POST("", handler.Post)
		movements.GET("", handler.List)
		movements.GET("/:id", handler.Get)
	}

	// --- RESERVATIONS ---
	{
		handler := handlers.NewReservationHandler(baseHandler, reservationService)
		reservations := rg.Group("/reservations")
		reservations.POST("", handler.Reserve)
		reservations.GET("", handler.List)
		reservations.GET("/:id", handler.Get)
		reservations.POST("/:id/release", handler.Release)
		reservations.POST("/:id/consume", handler.Consume)
	}

	// --- TRANSFERS ---
	{
		handler := handlers.NewTransferHandler(baseHandler, transferService, cfg.Audit)
		transfers := rg.Group("/transfers")
		transfers.POST("", handler.Create)
		transfers.GET("", handler.List)
		transfers.GET("/:id", handler.Get)
		transfers.POST("/:id/confirm", handler.Confirm)
		transfers.POST("/:id/dispatch", handler.Dispatch)
		transfers.POST("/:id/receive", handler.Receive)
		transfers.POST("/:id/cancel", handler.Cancel)
	}

	// --- ADJUSTMENTS ---
	{
		handler := handlers.NewAdjustmentHandler(baseHandler, adjustmentService, cfg.Audit)
		adjustments := rg.Group("/adjustments")
		adjustments.POST("", handler.Create)
		adjustments.GET("", handler.List)
		adjustments.GET("/:id", handler.Get)
		adjustments.POST("/:id/start", handler.StartCount)
		adjustments.PUT("/:id/lines/:lineId/count", handler.RecordCount)
		adjustments.POST("/:id/review", handler.Review)
		adjustments.POST("/:id/post", handler.Post)
		adjustments.POST("/:id/cancel", handler.Cancel)
	}

	// --- INBOUND EVENTS ---
	{
		handler := handlers.NewInboundHandler(baseHandler, inboundMapper)
		rg.POST("/inbound/events", handler.Handle)
	}
}
