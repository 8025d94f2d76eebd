package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/injector"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "config file path (optional, env overrides apply)")
	envFile    = flag.String("env", ".env", "dotenv file loaded before config")
)

func main() {
	flag.Parse()

	// a missing .env is fine
	_ = godotenv.Load(*envFile)

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	// halt before any remote call when the credential or assistant id is missing
	if err := config.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("config loaded successfully",
		zap.String("session_store", config.Session.Store),
		zap.Bool("minio", config.MinIO.Enabled),
	)

	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		log.Fatal("failed to initialize app", zap.Error(err))
	}
	defer cleanup()

	if config.Assistant.VerifyOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), config.Assistant.RequestTimeout)
		err := app.Sessions.VerifyCredentials(ctx)
		cancel()
		if err != nil {
			cleanup()
			log.Fatal("assistant credential check failed", zap.Error(err))
		}
		log.Info("assistant verified", zap.String("assistant_id", config.Assistant.AssistantID))
	}

	// Start server in goroutine
	go func() {
		if err := app.HTTPServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.HTTPServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
