/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the café stamp card server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Set up structured logging
  3. Load the stamp card program (JSON file or built-in default)
  4. Initialize SQLite store
  5. Wire service, notifications, scan guard and birthday scheduler
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config       YAML config file (default: $STAMPCARD_CONFIG)
  -env-file     .env file loaded before reading STAMPCARD_* (default: .env)
  -port         HTTP server port, overrides config
  -db           SQLite database path, overrides config
                Use ":memory:" for in-memory database
  -program      Program JSON file, overrides config
  -issue-token  Print a staff JWT for the given subject and exit

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the birthday scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (shutdown_timeout)
  4. Close database connection and log file

EXAMPLES:
  # Run with file database
  ./server -db="./data/stampcard.db"

  # Run with a YAML config and a custom program
  ./server -config=config.yaml -program=programs/double-shot.json

  # Mint a token for a staff device
  ./server -issue-token=barista-01

SEE ALSO:
  - config/config.go: Configuration layers
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/stampcard/api"
	"github.com/warp/stampcard/config"
	"github.com/warp/stampcard/factory"
	"github.com/warp/stampcard/logging"
	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/notify"
	"github.com/warp/stampcard/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stampcard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", os.Getenv("STAMPCARD_CONFIG"), "YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	programFile := flag.String("program", "", "program JSON file (overrides config)")
	issueToken := flag.String("issue-token", "", "print a staff token for this subject and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		case "program":
			cfg.ProgramFile = *programFile
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	auth := api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if *issueToken != "" {
		token, err := auth.Issue(*issueToken, loyalty.RoleSuperuser, 90*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	logger, logCloser := logging.Setup(logging.Options{
		Service: "stampcard",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	defer logCloser.Close()

	// Program
	def, err := factory.NewProgramFactory().LoadFile(cfg.ProgramFile)
	if err != nil {
		return fmt.Errorf("load program: %w", err)
	}
	logger.Info("program loaded",
		"program_id", def.ID,
		"stamps_per_reward", def.Program.StampsPerReward,
		"birthday_bonus", def.Program.BirthdayBonus,
		"welcome_stamps", def.Program.WelcomeStamps,
	)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Service and notifications
	outbox := notify.NewOutbox(store, logger)
	loc := cfg.Location()
	svc := loyalty.NewService(store, def.Program,
		loyalty.WithClock(loyalty.SystemClock{Location: loc}),
		loyalty.WithLocation(loc),
		loyalty.WithLogger(logger),
		loyalty.WithNotifier(notify.Multi{outbox, notify.LogNotifier{Logger: logger}}),
	)

	guard := api.NewScanGuard(cfg.ScanInterval, cfg.ScanBurst)
	handler := api.NewHandler(svc, store, def.Catalog, guard, logger)

	scheduler := api.NewBirthdayScheduler(svc, outbox, guard, cfg.BirthdaySweepCron, loc, logger)
	scheduler.Enabled = cfg.SchedulerEnabled
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler, api.RouterConfig{
		Auth:        auth,
		CORSOrigins: cfg.CORSOrigins,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "env", cfg.Env, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
