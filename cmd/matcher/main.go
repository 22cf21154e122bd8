package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/civicnet/weeklymatch/internal/app"
	"github.com/civicnet/weeklymatch/internal/config"
	"github.com/civicnet/weeklymatch/internal/server"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := config.Load()
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := app.InitTelemetry(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer shutdownTelemetry()

	logger := telemetry.LogFromContext(ctx).WithField("operation", "startup")

	if cfg.CronSecret == "" && !cfg.IsDevelopment() {
		logger.Fatal("CRON_SECRET is required outside development")
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	if err := a.DB.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	srv := server.New(server.Config{
		ServiceName: cfg.OTel.ServiceName,
		CronSecret:  cfg.CronSecret,
		Defaults:    a.DefaultOptions(),
		Runner:      a.Orchestrator,
		Summaries:   summaryReader(a),
		Health:      a.Health,
		Metrics:     a.Metrics,
	})

	logger.WithFields(map[string]interface{}{
		"addr":            cfg.HTTPAddr,
		"cadence":         cfg.Matching.Cadence,
		"email_provider":  cfg.Email.Provider,
		"calendar":        cfg.Calendar.Enabled,
		"redis_available": a.Redis != nil,
	}).Info("Weekly match service starting")

	// Cycles can run for minutes, so allow in-flight requests a generous drain window.
	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr, 5*time.Minute); err != nil {
		logger.WithError(err).Error("HTTP server stopped with error")
		return
	}
	logger.Info("Server exited")
}

func summaryReader(a *app.App) server.SummaryReader {
	if a.Redis == nil {
		return nil
	}
	return a.Redis
}
