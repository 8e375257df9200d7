package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/weison-t/thereader/internal/config"
	"github.com/weison-t/thereader/internal/http/handlers"
	"github.com/weison-t/thereader/internal/http/middleware"
	"github.com/weison-t/thereader/internal/metrics"

	_ "github.com/weison-t/thereader/docs"
)

func Router(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(h.Logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health/storage", h.HealthStorage)
		api.GET("/health/tables", h.HealthTables)
		api.GET("/runs/latest", h.RunsLatest)

		api.GET("/upload", h.Uploads)
		api.GET("/raw-chat", h.RawChat)
		api.GET("/data-snapshot", h.SnapshotPreview)
		api.GET("/sampling", h.SamplingPreview)
		api.GET("/response-result", h.ResponseResults)
		api.GET("/processed-data", h.ProcessedData)
		api.GET("/scoring-data", h.ScoringData)
		api.GET("/insights", h.GetInsights)
		api.GET("/criteria", h.Criteria)
		api.GET("/settings/api", h.APISettings)
		api.GET("/settings/agent", h.AgentSettings)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/upload", h.Upload)
		admin.DELETE("/upload", h.DeleteUpload)
		admin.POST("/upload/presign", h.PresignUpload)

		admin.POST("/data-snapshot", h.RebuildSnapshot)
		admin.POST("/sampling", h.Sample)
		admin.DELETE("/sampling", h.DeleteSampling)

		admin.POST("/response-result", h.ResponseResultAction)
		admin.POST("/processed-data", h.ProcessedDataAction)
		admin.POST("/scoring-data", h.ScoringDataAction)

		admin.PATCH("/criteria", h.UpdateCriteria)
		admin.POST("/criteria", h.CriteriaAction)

		admin.PUT("/settings/api", h.SaveAPISettings)
		admin.PUT("/settings/agent", h.SaveAgentSettings)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
