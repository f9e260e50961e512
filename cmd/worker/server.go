package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/job"
	"notification-backend/internal/shared"
	"notification-backend/pkg/container"
)

// runWorker serves the asynq queues and the periodic scheduler until a
// shutdown signal.
func runWorker(cfg *config.Config, c *container.Container) error {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 20,
		Queues: map[string]int{
			shared.QueueUrgent:  6,
			shared.QueueDefault: 3,
			shared.QueueLow:     1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task", task.Type()).Msg("[Worker] Task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(shared.TypeProcessDispatch,
		job.NewProcessDispatchHandler(c.DispatchService, c.WorkerPool).Handle)
	mux.HandleFunc(shared.TypeRetryFailed,
		job.NewRetryFailedHandler(c.DispatchService).Handle)
	mux.HandleFunc(shared.TypeCleanupOldHistory,
		job.NewCleanupHandler(c.HistoryRepo, c.DeadLetterRepo, cfg.Retention).Handle)
	mux.HandleFunc(shared.TypeRateWindowJanitor,
		job.NewJanitorHandler(c.Limiter).Handle)

	scheduler, err := newScheduler(redisOpt)
	if err != nil {
		return err
	}

	if err := srv.Start(mux); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return err
	}
	log.Info().Msg("[Worker] Processing queues")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals

	log.Info().Msg("[Worker] Shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}
