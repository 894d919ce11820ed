// Package config loads server settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	DBDriver         string // sqlite | postgres
	SQLitePath       string
	DatabaseURL      string
	JWTSecret        string // empty disables bearer-token checks
	BiometricURL     string // empty disables the face oracle
	BiometricAPIKey  string
	BiometricTimeout time.Duration
	GeocodeURL       string // empty disables reverse geocoding
	GeocodeTimeout   time.Duration
	CORSOrigins      []string
	DefaultTimezone  string
	DemoScenario     string // loaded at startup when set
	LogRequests      bool
}

// Load reads .env (if present) and the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Config] failed to read .env: %v", err)
	}

	return Config{
		Addr:             getEnv("APP_ADDR", ":8080"),
		DBDriver:         getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:       getEnv("SQLITE_PATH", "timeclock.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		BiometricURL:     getEnv("BIOMETRIC_URL", ""),
		BiometricAPIKey:  getEnv("BIOMETRIC_API_KEY", ""),
		BiometricTimeout: getEnvDuration("BIOMETRIC_TIMEOUT", 5*time.Second),
		GeocodeURL:       getEnv("GEOCODE_URL", ""),
		GeocodeTimeout:   getEnvDuration("GEOCODE_TIMEOUT", 2*time.Second),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),
		DefaultTimezone:  getEnv("DEFAULT_TIMEZONE", "UTC"),
		DemoScenario:     getEnv("DEMO_SCENARIO", ""),
		LogRequests:      getEnvBool("LOG_REQUESTS", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	if c.BiometricURL != "" && c.BiometricTimeout <= 0 {
		return fmt.Errorf("BIOMETRIC_TIMEOUT must be positive")
	}
	if c.GeocodeURL != "" && c.GeocodeTimeout <= 0 {
		return fmt.Errorf("GEOCODE_TIMEOUT must be positive")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return nil
}
