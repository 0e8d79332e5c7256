package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ticketpay/cmd/consumers/jobs"
	"ticketpay/internal/config"
	"ticketpay/internal/consumers"
	"ticketpay/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	log.Info("Starting consumers service...")

	// replicas share the queue group, client ids must differ
	cfg.NATS.ClientID = "ticketpay-consumers"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	svc := consumerService.Services()
	verification := jobs.NewPaymentVerificationJob(svc.Payments, cfg.Jobs.VerifyInterval, cfg.Jobs.VerifyBatchSize)
	sweeper := jobs.NewReservationSweepJob(svc.Allocator, cfg.Jobs.SweepInterval, cfg.Jobs.ReservationTTL, 100)

	ctx := context.Background()
	verification.Start(ctx)
	sweeper.Start(ctx)

	log.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")

	verification.Stop()
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Consumers service stopped")
}
