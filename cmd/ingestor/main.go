package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/ingest"
	"notification-backend/pkg/container"
	"notification-backend/pkg/logger"
)

const (
	exitOK      = 0
	exitConfig  = 1
	exitStartup = 2
	exitFatal   = 64
)

// defaultTopics are consumed when KAFKA_TOPICS is unset.
var defaultTopics = []string{
	"trading-events",
	"user-profile-events",
	"payment-events",
	"security-events",
	"portfolio-events",
	"trading.notifications",
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[Ingestor] No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("[Ingestor] Configuration invalid")
		return exitConfig
	}

	logger.Init(cfg.App.Environment)

	c, err := container.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("[Ingestor] Startup failed")
		return exitStartup
	}
	defer c.Close(context.Background())

	topics := defaultTopics
	if raw := os.Getenv("KAFKA_TOPICS"); raw != "" {
		topics = strings.Split(raw, ",")
	}

	producer, err := ingest.NewProducer(cfg.Kafka)
	if err != nil {
		log.Error().Err(err).Msg("[Ingestor] Producer init failed")
		return exitStartup
	}
	defer producer.Close()

	consumer, err := ingest.NewConsumer(cfg.Kafka, topics, ingest.NewMapper(),
		c.DispatchService, c.DeadLetterService, producer)
	if err != nil {
		log.Error().Err(err).Msg("[Ingestor] Consumer init failed")
		return exitStartup
	}
	defer consumer.Close()

	dlqConsumer, err := ingest.NewDeadLetterConsumer(cfg.Kafka, topics,
		c.HistoryRepo, c.DeadLetterService)
	if err != nil {
		log.Error().Err(err).Msg("[Ingestor] DLQ consumer init failed")
		return exitStartup
	}
	defer dlqConsumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- consumer.Run(ctx) }()
	go func() { errCh <- dlqConsumer.Run(ctx) }()

	log.Info().Strs("topics", topics).Msg("[Ingestor] Consuming")
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[Ingestor] Consumer failed")
			stop()
			return exitFatal
		}
		stop()
	}
	return exitOK
}
