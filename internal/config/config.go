package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Platform    PlatformConfig
	VNPay       VNPayConfig
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PlatformConfig points at the storefront platform this service aggregates
type PlatformConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type VNPayConfig struct {
	HashSecret string
	TmnCode    string
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("PLATFORM_TIMEOUT_SECONDS", 15)
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "checkoutbff"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Platform: PlatformConfig{
			BaseURL:        getEnvOrViper("PLATFORM_BASE_URL", ""),
			TimeoutSeconds: viper.GetInt("PLATFORM_TIMEOUT_SECONDS"),
		},
		VNPay: VNPayConfig{
			HashSecret: getEnvOrViper("VNPAY_HASH_SECRET", ""),
			TmnCode:    getEnvOrViper("VNPAY_TMN_CODE", ""),
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if cfg.Platform.BaseURL == "" {
		return nil, fmt.Errorf("PLATFORM_BASE_URL is required")
	}
	if cfg.VNPay.HashSecret == "" {
		return nil, fmt.Errorf("VNPAY_HASH_SECRET is required")
	}

	return cfg, nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

// DSN builds a lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
