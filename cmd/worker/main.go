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
		log.Debug().Msg("[Worker] No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("[Worker] Configuration invalid")
		return exitConfig
	}

	logger.Init(cfg.App.Environment)

	c, err := container.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("[Worker] Startup failed")
		return exitStartup
	}
	defer c.Close(context.Background())

	c.WorkerPool.Start()

	if err := runWorker(cfg, c); err != nil {
		log.Error().Err(err).Msg("[Worker] Runtime failure")
		return exitFatal
	}
	return exitOK
}
