package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/pkg/container"
	"notification-backend/pkg/logger"
)

// Exit codes: 0 clean shutdown, 1 configuration error, 2 dependency
// unavailable at startup, 64 fatal runtime failure.
const (
	exitOK      = 0
	exitConfig  = 1
	exitStartup = 2
	exitFatal   = 64
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine; real deployments use the process env.
		log.Debug().Msg("[API] No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("[API] Configuration invalid")
		return exitConfig
	}

	logger.Init(cfg.App.Environment)

	c, err := container.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("[API] Startup failed")
		return exitStartup
	}
	defer c.Close(context.Background())

	server := newServer(cfg, c)
	if err := server.run(); err != nil {
		log.Error().Err(err).Msg("[API] Server failed")
		return exitFatal
	}
	return exitOK
}
