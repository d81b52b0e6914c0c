package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/storyweave/config"
	"github.com/user/storyweave/internal/events"
	"github.com/user/storyweave/internal/game"
	"github.com/user/storyweave/internal/httpapi"
	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/storage"
	"github.com/user/storyweave/internal/story"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logger
	logger := setupLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Open player store
	store, closeStore, err := openStore(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open player store", zap.Error(err))
	}
	defer closeStore()

	// Load stories
	library := story.NewLibrary(story.NewLoader(cfg.Stories.Dir, logger), logger)
	if cfg.Stories.Preload {
		if err := library.Preload(); err != nil {
			logger.Fatal("Failed to load stories", zap.Error(err))
		}
		logger.Info("Loaded stories", zap.Int("count", len(library.List())))
	}

	// Start event bus
	bus := events.NewBus(cfg.Server.EventBuffer, logger)
	bus.Start()
	defer bus.Stop()

	// Initialize game manager
	gameManager := game.NewGameManager(cfg, library, store)
	gameManager.SetLogger(logger)
	gameManager.SetEventSink(bus)

	// Set up HTTP server
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: httpapi.NewRouter(gameManager, events.NewHub(bus, logger), timeout, logger),
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
}

func setupLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}
	logger, _ := config.Build()
	return logger
}

func openStore(cfg config.DatabaseConfig, logger *zap.Logger) (interfaces.PlayerStore, func(), error) {
	switch cfg.Driver {
	case "sqlite3":
		store, err := storage.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite player store", zap.String("dsn", cfg.DSN))
		return store, func() { store.Close() }, nil
	case "file":
		store, err := storage.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using file player store", zap.String("dir", cfg.Dir))
		return store, func() {}, nil
	default:
		return nil, nil, errors.New("unknown database driver: " + cfg.Driver)
	}
}

func waitForShutdown(logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform cleanup
	logger.Info("Shutting down")
}
