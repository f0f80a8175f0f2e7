package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/api"
	"platecost/internal/config"
	"platecost/internal/costing"
	"platecost/internal/database"
	"platecost/internal/logger"
	"platecost/internal/match"
	"platecost/internal/metrics"
	"platecost/internal/promotion"
	"platecost/internal/reconcile"
	"platecost/internal/staging"
	"platecost/internal/uom"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides PORT)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides METRICS_PORT)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *metricsPort != 0 {
		cfg.MetricsPort = *metricsPort
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer zap.L().Sync()

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		zap.L().Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	engine := uom.NewEngine()
	if cfg.UOMAliasFile != "" {
		if err := engine.LoadAliasFile(cfg.UOMAliasFile); err != nil {
			zap.L().Fatal("loading unit aliases", zap.Error(err))
		}
	}

	tolerance, err := decimal.NewFromString(cfg.CostVarianceTolerance)
	if err != nil {
		zap.L().Fatal("parsing cost variance tolerance", zap.Error(err))
	}

	loader, err := staging.NewLoader(db, engine, cfg)
	if err != nil {
		zap.L().Fatal("building staging loader", zap.Error(err))
	}
	resolver := costing.NewResolver(db, engine, tolerance)
	matcher := match.New(cfg.FuzzyMatchThreshold)
	promoter := promotion.New(db, engine, matcher, resolver)
	reconciler := reconcile.New(db, engine, resolver, cfg.OutdatedPriceDays)

	app := api.New(db, loader, promoter, resolver, reconciler)

	go func() {
		zap.L().Info("starting metrics server", zap.Int("port", cfg.MetricsPort))
		if err := metrics.Serve(cfg.MetricsPort); err != nil && err != http.ErrServerClosed {
			zap.L().Error("metrics server", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: app.Router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting API server", zap.Int("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		zap.L().Fatal("API server", zap.Error(err))
	}
}
