package main

import (
	"time"

	"github.com/hibiken/asynq"

	"notification-backend/internal/infrastructure/queue"
)

func newScheduler(redisOpt asynq.RedisClientOpt) (*asynq.Scheduler, error) {
	utc := time.UTC
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: utc,
	})

	if err := queue.RegisterSchedulers(scheduler); err != nil {
		return nil, err
	}
	return scheduler, nil
}
