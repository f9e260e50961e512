// Package container wires the application graph shared by the api and
// worker binaries.
package container

import (
	"context"
	"fmt"
	"runtime"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/repository"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/infrastructure/cache"
	"notification-backend/internal/infrastructure/database"
	"notification-backend/internal/infrastructure/email"
	"notification-backend/internal/infrastructure/push"
	"notification-backend/internal/infrastructure/queue"
	"notification-backend/internal/infrastructure/sms"
	"notification-backend/internal/ratelimit"
	"notification-backend/internal/realtime"
)

// Container owns the shared dependencies and their shutdown order.
type Container struct {
	Config *config.Config
	DB     *database.PostgresDB
	Redis  *redis.Client
	Queue  *queue.Client

	Limiter  *ratelimit.Limiter
	Pending  *cache.PendingFrameStore
	Presence *cache.PresenceStore
	FrameBus *cache.FrameBus
	Hub      *realtime.Hub

	HistoryRepo    repository.HistoryRepository
	TemplateRepo   repository.TemplateRepository
	PreferenceRepo repository.PreferenceRepository
	DeadLetterRepo repository.DeadLetterRepository

	DispatchService   service.DispatchService
	TemplateService   service.TemplateService
	PreferenceService service.PreferenceService
	AnalyticsService  service.AnalyticsService
	DeadLetterService service.DeadLetterService

	WorkerPool *service.WorkerPool
}

// New builds the full graph. Callers own Close.
func New(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	dbCfg, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	db := database.NewPostgresDB(dbCfg)
	if err := db.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}
	c.DB = db

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("redis init: %w", err)
	}
	c.Redis = redisClient

	c.Queue = queue.NewClient(cfg.Redis)
	c.Limiter = ratelimit.New()
	c.Pending = cache.NewPendingFrameStore(redisClient)
	c.Presence = cache.NewPresenceStore(redisClient)
	c.FrameBus = cache.NewFrameBus(redisClient)
	c.Hub = realtime.NewHub(c.Pending, c.Presence, c.FrameBus)

	c.HistoryRepo = repository.NewHistoryRepository(db.Pool)
	c.TemplateRepo = repository.NewTemplateRepository(db.Pool)
	c.PreferenceRepo = repository.NewPreferenceRepository(db.Pool)
	c.DeadLetterRepo = repository.NewDeadLetterRepository(db.Pool)

	c.TemplateService = service.NewTemplateService(c.TemplateRepo)
	c.PreferenceService = service.NewPreferenceService(c.PreferenceRepo,
		cfg.Policy.QuietHoursUrgentBypass)
	c.AnalyticsService = service.NewAnalyticsService(c.HistoryRepo)
	c.DeadLetterService = service.NewDeadLetterService(c.DeadLetterRepo,
		cfg.Alerting.WebhookURL)

	c.DispatchService = service.NewDispatchService(
		c.HistoryRepo,
		c.TemplateService,
		c.PreferenceService,
		c.Limiter,
		c.buildAdapters(),
		c.Queue,
		c.Presence,
		cfg,
	)

	partitions := runtime.NumCPU() * 2
	c.WorkerPool = service.NewWorkerPool(partitions, 128, c.DispatchService.Dispatch)

	log.Info().Msg("[Container] Dependency graph initialized")
	return c, nil
}

// buildAdapters constructs the channel adapters and wraps each in the
// delivery policy stack.
func (c *Container) buildAdapters() map[model.Channel]service.ChannelAdapter {
	cfg := c.Config

	raw := map[model.Channel]service.ChannelAdapter{
		model.ChannelEmail: email.NewAdapter(cfg.SMTP),
		model.ChannelSMS:   sms.NewAdapter(cfg.SMS),
		model.ChannelPush:  push.NewAdapter(cfg.Push),
		model.ChannelInApp: realtime.NewAdapter(c.Presence, c.FrameBus, c.Pending,
			cfg.Policy.InAppRequireSession),
	}

	adapters := make(map[model.Channel]service.ChannelAdapter, len(raw))
	for channel, adapter := range raw {
		key := string(channel)
		adapters[channel] = service.WrapWithPolicies(adapter,
			cfg.Retry, cfg.Breaker[key], cfg.Timeouts[key])
	}
	return adapters
}

// Close tears the graph down in reverse dependency order.
func (c *Container) Close(ctx context.Context) {
	if c.WorkerPool != nil {
		c.WorkerPool.Stop()
	}
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			log.Error().Err(err).Msg("[Container] Queue close failed")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("[Container] Redis close failed")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	log.Info().Msg("[Container] Shutdown complete")
}
