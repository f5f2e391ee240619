package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/modomart/checkoutbff/internal/config"
	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/repository"
	"github.com/modomart/checkoutbff/internal/repository/postgres"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/devicekey/main.go <label> <api-key>")
		fmt.Println("Example: go run cmd/devicekey/main.go \"android-release\" \"android-key-12345\"")
		os.Exit(1)
	}

	label := os.Args[1]
	apiKey := os.Args[2]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Hash the API key
	apiKeyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db, logger)

	key := &domain.DeviceKey{
		Label:      label,
		APIKeyHash: string(apiKeyHash),
		IsActive:   true,
	}

	err = repos.DeviceKey.Create(context.Background(), key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create device key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Device key created.\n\n")
	fmt.Printf("Key ID: %s\n", key.ID.String())
	fmt.Printf("Label: %s\n", key.Label)
	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("\nSave this API key securely; it cannot be recovered later.\n")
	fmt.Printf("Ship it in the app build and send it as:\n")
	fmt.Printf("X-API-Key: %s\n", apiKey)
}
