/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the time clock server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Open the SQLite or PostgreSQL store
  3. Create API handler; attach face oracle and geocoder when configured
  4. Optionally load a demo scenario
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -addr      Listen address (APP_ADDR, default :8080)
  -driver    sqlite | postgres (DB_DRIVER)
  -db        SQLite database path (SQLITE_PATH); ":memory:" for in-memory
  -scenario  Demo scenario to load at startup (DEMO_SCENARIO)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db=":memory:" -scenario=standard-week
  DB_DRIVER=postgres DATABASE_URL=postgres://localhost/timeclock ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/timeclock/api"
	"github.com/warp/timeclock/biometric"
	"github.com/warp/timeclock/config"
	"github.com/warp/timeclock/geocode"
	"github.com/warp/timeclock/store/postgres"
	"github.com/warp/timeclock/store/sqlite"
)

type closableStore interface {
	api.Store
	io.Closer
}

func main() {
	cfg := config.Load()

	// Flags
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "Database driver (sqlite|postgres)")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	scenario := flag.String("scenario", cfg.DemoScenario, "Demo scenario to load at startup")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Server] invalid configuration: %v", err)
	}

	// Initialize store
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("[Server] failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store)
	handler.Profiles.DefaultTimezone = cfg.DefaultTimezone
	if cfg.BiometricURL != "" {
		handler.Validator.Faces = biometric.NewClient(cfg.BiometricURL, cfg.BiometricTimeout).WithAPIKey(cfg.BiometricAPIKey)
		handler.Validator.BiometricTimeout = cfg.BiometricTimeout
		log.Printf("[Server] face oracle at %s", cfg.BiometricURL)
	}
	if cfg.GeocodeURL != "" {
		handler.Validator.Geocoder = geocode.NewClient(cfg.GeocodeURL, cfg.GeocodeTimeout)
		handler.Validator.GeocodeTimeout = cfg.GeocodeTimeout
		log.Printf("[Server] reverse geocoding at %s", cfg.GeocodeURL)
	}

	if *scenario != "" {
		if err := handler.LoadScenarioByID(context.Background(), *scenario); err != nil {
			log.Fatalf("[Server] failed to load scenario %q: %v", *scenario, err)
		}
		log.Printf("[Server] loaded scenario %s", *scenario)
	}

	if cfg.JWTSecret == "" {
		log.Println("[Server] JWT_SECRET not set, API is unauthenticated")
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   cfg.JWTSecret,
		LogRequests: cfg.LogRequests,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] listening on %s (%s store)", cfg.Addr, cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("[Server] forced to shutdown: %v", err)
	}

	log.Println("[Server] stopped")
}

func openStore(cfg config.Config) (closableStore, error) {
	if cfg.DBDriver == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return postgres.Connect(ctx, cfg.DatabaseURL)
	}
	return sqlite.New(cfg.SQLitePath)
}
