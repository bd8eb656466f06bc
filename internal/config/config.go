package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	DriverMemory StorageDriver = "memory"
	DriverMySQL  StorageDriver = "mysql"
)

// Config represents the full application configuration surface.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Production ProductionConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StorageConfig selects and parameterizes the persistence backend. An
// empty RedisAddr keeps stock mutation on the primary store.
type StorageConfig struct {
	Driver    StorageDriver
	MySQLDSN  string
	RedisAddr string
}

// ProductionConfig holds engine options.
type ProductionConfig struct {
	LotPrefix       string
	DefaultOperator string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// A missing .env is acceptable when configuration comes from the
		// environment directly; a present but malformed one is not.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed loading .env: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Storage: StorageConfig{
			Driver:    StorageDriver(getenvWithDefault("STORAGE_DRIVER", string(DriverMemory))),
			MySQLDSN:  os.Getenv("MYSQL_DSN"),
			RedisAddr: os.Getenv("REDIS_ADDR"),
		},
		Production: ProductionConfig{
			LotPrefix:       getenvWithDefault("LOT_PREFIX", "LOT-"),
			DefaultOperator: getenvWithDefault("OPERATOR_DEFAULT", "system"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.Storage.MySQLDSN == "" {
			return errors.New("MYSQL_DSN must be provided when STORAGE_DRIVER=mysql")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Production.LotPrefix == "" {
		return errors.New("LOT_PREFIX must not be empty")
	}

	if c.Production.DefaultOperator == "" {
		return errors.New("OPERATOR_DEFAULT must not be empty")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
