package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/api/handlers"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/api/middleware"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
)

type Services struct {
	Reconcile   *service.ReconcileService
	Plan        *service.PlanService
	StockImport *service.StockImportService
	Health      *service.HealthService
	// DriveFolder is the default folder for stock imports without a file.
	DriveFolder string
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = handlers.MaxUploadBytes

	router.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
	)
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.Reconcile != nil {
			reconcileHandler := handlers.NewReconcileHandler(services.Reconcile)
			apiGroup.POST("/sales/upload", reconcileHandler.UploadSales)
			apiGroup.POST("/sales/sync", reconcileHandler.SyncSales)
			apiGroup.POST("/stock/update", reconcileHandler.UpdateStock)
			apiGroup.POST("/errors/relative", reconcileHandler.RelativeErrors)

			reconcileGroup := apiGroup.Group("/reconcile")
			{
				reconcileGroup.POST("/sweep", reconcileHandler.Sweep)
				reconcileGroup.GET("/runs", reconcileHandler.ListRuns)
			}
		}

		if services.Plan != nil {
			planHandler := handlers.NewPlanHandler(services.Plan)
			apiGroup.POST("/scenarios/upload", planHandler.UploadScenarios)

			planGroup := apiGroup.Group("/plan")
			{
				planGroup.GET("", planHandler.Report)
				planGroup.POST("", planHandler.SaveChanges)
				planGroup.POST("/upload", planHandler.UploadPlan)
				planGroup.GET("/detail", planHandler.Detail)
			}
		}

		if services.StockImport != nil {
			stockHandler := handlers.NewStockImportHandler(services.StockImport, services.DriveFolder)
			apiGroup.POST("/stock/import", stockHandler.Import)
		}

		if services.Health != nil {
			healthHandler := handlers.NewHealthHandler(services.Health)
			apiGroup.GET("/health/connections", healthHandler.Connections)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
