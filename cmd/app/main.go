package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"allowance/internal/config"
	"allowance/internal/db"
	"allowance/internal/logger"
	"allowance/internal/notify"
	"allowance/internal/server"
)

// @title Allowance API
// @version 1.0
// @description Student allowance ledger: parent deposits, budget plans and expense tracking.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.InitWithConfig(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.Info("Starting allowance service", "timezone", cfg.Location.String(), "strict_daily_limit", cfg.StrictDailyLimit)

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	queue := notify.New(cfg.RedisAddr, notify.SMTPConfig{
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Pass:     cfg.SMTPPass,
	})
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable, notifications will queue once it is back", "error", err.Error())
	}
	go queue.Start(ctx)

	srv := server.New(database, cfg, queue)

	seedCtx, seedCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := srv.Expenses.SeedDefaults(seedCtx); err != nil {
		seedCancel()
		logger.Fatalf("Failed to seed expense categories: %v", err)
	}
	seedCancel()

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
