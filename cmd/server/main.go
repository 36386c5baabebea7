/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the municipal billing desk server. Handles
  configuration, dependency injection, admin seeding, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (env fallbacks for secrets)
  2. Initialize SQLite store
  3. Seed the default admin account on a fresh database
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: billdesk.db)
               Use ":memory:" for an in-memory database
  -admin-user  Username seeded on first run (default: master)

ENVIRONMENT:
  JWT_SECRET      Session token signing secret (required in production;
                  a random one is generated otherwise, which invalidates
                  sessions across restarts)
  ADMIN_PASSWORD  Password for the seeded admin; generated and logged
                  once when unset
  LOG_LEVEL       debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/openmuni/billdesk/api"
	"github.com/openmuni/billdesk/auth"
	"github.com/openmuni/billdesk/logging"
	"github.com/openmuni/billdesk/metrics"
	"github.com/openmuni/billdesk/store/sqlite"
)

const tokenLifetime = 12 * time.Hour

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "billdesk.db", "SQLite database path")
	adminUser := flag.String("admin-user", "master", "username seeded on first run")
	flag.Parse()

	logging.Setup()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", *dbPath)

	// Session tokens
	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		secret = uuid.New().String()
		slog.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}
	tokens := auth.NewJWTManager(secret, tokenLifetime)

	// Seed the default admin on a fresh database
	authn := auth.NewAuthenticator(store)
	password := getEnv("ADMIN_PASSWORD", "")
	generated := password == ""
	if generated {
		password = uuid.New().String()
	}
	seeded, err := authn.SeedDefaultAdmin(context.Background(), *adminUser, password)
	if err != nil {
		slog.Error("Failed to seed admin account", "error", err)
		os.Exit(1)
	}
	if seeded {
		if generated {
			// Logged once so the operator can log in; change it immediately.
			slog.Info("Admin account created", "username", *adminUser, "password", password)
		} else {
			slog.Info("Admin account created", "username", *adminUser)
		}
	}

	// Router
	handler := api.NewHandler(store, authn, tokens, metrics.New())
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "url", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
