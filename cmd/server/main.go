package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jengzang/records-cluster-go/internal/analysis"
	"github.com/jengzang/records-cluster-go/internal/api"
	"github.com/jengzang/records-cluster-go/internal/config"
	"github.com/jengzang/records-cluster-go/internal/database"
	"github.com/jengzang/records-cluster-go/internal/monitor"
	"github.com/jengzang/records-cluster-go/internal/repository"
	"github.com/jengzang/records-cluster-go/internal/service"

	// Import analyzer packages to register them
	_ "github.com/jengzang/records-cluster-go/internal/analysis/detection"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化数据库
	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()
	db := database.GetDB()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitor.NewMetrics(reg)

	scans, err := service.NewScanService(db, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to create scan service:", err)
	}

	// 初始化路由
	router := api.SetupRouter(cfg, api.Dependencies{
		PointSets: service.NewPointSetService(repository.NewPointSetRepository(db)),
		Scans:     scans,
		Metrics:   metrics,
		Gatherer:  reg,
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on port %s (analyzers: %v)", cfg.Port, analysis.RegisteredNames())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] shutdown: %v", err)
	}
	if err := scans.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ScanService] shutdown: %v", err)
	}
}
