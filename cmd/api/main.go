package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ticketpay/internal/api"
	"ticketpay/internal/config"
	"ticketpay/internal/logger"
	"ticketpay/internal/validation"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Проверяем, нужно ли запустить валидацию
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		if err := validation.Run(cfg); err != nil {
			logger.Fatal("Configuration is invalid", "error", err)
		}
		logger.Get().Info("Configuration is valid")
		return
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize server", "error", err)
	}

	srv := server.HTTPServer()

	go func() {
		logger.Get().Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ждем сигнал для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Get().Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Get().Error("Server forced to shutdown", "error", err)
	}

	if err := server.Cleanup(ctx); err != nil {
		logger.Get().Error("Error during cleanup", "error", err)
	}

	logger.Get().Info("Server stopped")
}
