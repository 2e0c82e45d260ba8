package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"markov-go/internal/config"
	"markov-go/internal/handler"

	"go.uber.org/zap"
)

func main() {
	var appConfigPath = flag.String("app", "", "Path to app configuration file; empty uses defaults")
	var port = flag.Int("port", 0, "Server port; overrides the config file")
	flag.Parse()

	cfg := config.Default()
	if *appConfigPath != "" {
		loaded, err := config.LoadConfig(*appConfigPath)
		if err != nil {
			log.Fatal("Failed to load configuration: ", err)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.App.Port = *port
	}

	logger, err := config.NewLogger(cfg.App)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully", zap.Any("config", cfg))

	server, err := handler.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
