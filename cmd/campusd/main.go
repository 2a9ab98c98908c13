// Campus Core - Student Portal Backend
//
// This is the main entry point for the Campus Core service: the
// credential and session-token backend of the student portal. It
// serves registration, login, refresh-token rotation, and the
// admin audit trail over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/iesaconnect/campus-core/migrations"

	"github.com/iesaconnect/campus-core/internal/api"
	"github.com/iesaconnect/campus-core/internal/audit"
	"github.com/iesaconnect/campus-core/internal/auth"
	"github.com/iesaconnect/campus-core/internal/infrastructure/config"
	"github.com/iesaconnect/campus-core/internal/infrastructure/database"
	"github.com/iesaconnect/campus-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// tokenSweepInterval is how often expired refresh tokens are deleted.
const tokenSweepInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Campus Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if cfg.Security.GeneratedSecrets {
		log.Warn("signing secrets were generated for this run; every token dies on restart",
			"action_required", "set CAMPUS_ACCESS_SECRET and CAMPUS_REFRESH_SECRET",
		)
	}

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the auth stack
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	hasher := auth.NewHasher(auth.HashParams{
		Time:     uint32(cfg.Security.Argon2.Time),     //nolint:gosec // G115: validated config values
		MemoryKB: uint32(cfg.Security.Argon2.MemoryKB), //nolint:gosec // G115: validated config values
		Threads:  uint8(cfg.Security.Argon2.Threads),   //nolint:gosec // G115: validated config values
	})

	codec, err := auth.NewTokenCodec(
		[]byte(cfg.Security.Tokens.AccessSecret),
		[]byte(cfg.Security.Tokens.RefreshSecret),
		cfg.GetAccessTokenTTL(),
		cfg.GetRefreshTokenTTL(),
	)
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	service := auth.NewService(userRepo, tokenRepo, hasher, codec, auditRepo, log)

	// Seed the bootstrap admin on first boot
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, hasher, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Service:  service,
		Audit:    auditRepo,
		DB:       db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Sweep expired refresh tokens periodically
	go sweepExpiredTokens(ctx, tokenRepo, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Campus Core stopped")
	return nil
}

// sweepExpiredTokens deletes expired refresh token rows periodically
// until the context is cancelled. Revoked-but-unexpired rows survive
// the sweep so reuse detection keeps working.
func sweepExpiredTokens(ctx context.Context, tokens auth.TokenRepository, log *logging.Logger) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := tokens.DeleteExpired(ctx)
			if err != nil {
				log.Error("sweeping expired tokens failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("swept expired refresh tokens", "deleted", deleted)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses CAMPUS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CAMPUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
