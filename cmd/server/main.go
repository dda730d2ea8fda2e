/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stay booking server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize SQLite store (migrates schema, seeds default parameters)
  3. Build booking service and parameter provider
  4. Start the expiry scheduler
  5. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: stay.db, env DB_PATH)
           Use ":memory:" for in-memory database
  -demo    Mount the demo scenario endpoints (env DEMO_SCENARIOS)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database connection

EXAMPLES:
  ./server -db="./data/stay.db"
  ./server -db=":memory:" -port=3000 -demo
  EXPIRY_CHECK_INTERVAL=10m ./server

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/stay-booking/api"
	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/config"
	"github.com/warp/stay-booking/factory"
	"github.com/warp/stay-booking/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Parameters are read per operation; fail fast if they are unusable now.
	params := factory.NewParameterProvider(store)
	if _, err := params.Parameters(context.Background()); err != nil {
		log.Fatalf("System parameters are invalid: %v", err)
	}

	service := booking.NewService(store, params)

	scheduler := api.NewExpiryScheduler(service)
	scheduler.Enabled = cfg.ExpiryEnabled
	scheduler.CheckInterval = cfg.ExpiryCheckInterval
	scheduler.Start()

	handler := api.NewHandler(service, params)
	if cfg.DemoScenarios {
		log.Println("Demo scenarios enabled: POST /api/scenarios/load wipes the database")
		handler.Demo = store
	}
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()

	log.Println("Server stopped")
}
