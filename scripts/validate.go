package main

import (
	"flag"

	"ticketpay/internal/logger"
	"ticketpay/internal/validation"
)

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "url", "http://localhost:8081", "Base URL for API validation")
	flag.Parse()

	logger.Init("info", "text")

	validator := validation.NewAPIValidator(baseURL)
	if err := validator.ValidateAll(); err != nil {
		logger.Fatal("API validation failed", "error", err)
	}

	logger.Get().Info("API validation passed")
}
