package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jengzang/records-cluster-go/internal/analysis"
	"github.com/jengzang/records-cluster-go/internal/config"
	"github.com/jengzang/records-cluster-go/internal/handler"
	"github.com/jengzang/records-cluster-go/internal/middleware"
	"github.com/jengzang/records-cluster-go/internal/monitor"
	"github.com/jengzang/records-cluster-go/internal/service"
)

// Dependencies are the services served by the router
type Dependencies struct {
	PointSets *service.PointSetService
	Scans     *service.ScanService
	Metrics   *monitor.Metrics
	Gatherer  prometheus.Gatherer
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Metrics))
	r.Use(middleware.CORS())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"message":    "Cluster detection API is running",
			"strategies": analysis.RegisteredNames(),
		})
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	pointSetHandler := handler.NewPointSetHandler(deps.PointSets)
	scanHandler := handler.NewScanHandler(deps.Scans)
	auth := middleware.Auth(cfg.JWTSecret)

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	{
		pointSets := api.Group("/point-sets")
		{
			pointSets.POST("", auth, pointSetHandler.CreatePointSet)
			pointSets.GET("", pointSetHandler.ListPointSets)
			pointSets.GET("/:id", pointSetHandler.GetPointSet)
		}

		scans := api.Group("/scans")
		{
			scans.POST("", auth, scanHandler.CreateScan)
			scans.GET("", scanHandler.ListScans)
			scans.GET("/:id", scanHandler.GetScan)
			scans.GET("/:id/clusters", scanHandler.GetClusters)
			scans.GET("/:id/raster", scanHandler.GetRaster)
			scans.GET("/:id/raster.png", scanHandler.GetRasterPNG)
		}
	}

	return r
}
