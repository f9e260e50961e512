// Package cache wraps the Redis client and the stores built on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
)

// NewRedisClient connects and pings the configured Redis instance.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Host).Msg("[Redis] Connected")
	return client, nil
}

// ================================================
// PENDING FRAME STORE
// ================================================

// pendingFrameTTL bounds how long an offline user's in-app frames wait.
const pendingFrameTTL = 7 * 24 * time.Hour

// PendingFrame is an in-app notification parked for an offline user.
type PendingFrame struct {
	NotificationID string    `json:"notificationId"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	CorrelationID  string    `json:"correlationId"`
	QueuedAt       time.Time `json:"queuedAt"`
}

// PendingFrameStore holds frames for users with no live socket session,
// flushed in order when they reconnect.
type PendingFrameStore struct {
	client *redis.Client
}

func NewPendingFrameStore(client *redis.Client) *PendingFrameStore {
	return &PendingFrameStore{client: client}
}

func (s *PendingFrameStore) key(userID string) string {
	return "inapp:pending:" + userID
}

// Push appends a frame to the user's pending list.
func (s *PendingFrameStore) Push(ctx context.Context, userID string, frame *PendingFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal pending frame: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(userID), data)
	pipe.Expire(ctx, s.key(userID), pendingFrameTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push pending frame: %w", err)
	}
	return nil
}

// Drain atomically removes and returns all pending frames for a user in
// arrival order.
func (s *PendingFrameStore) Drain(ctx context.Context, userID string) ([]*PendingFrame, error) {
	pipe := s.client.TxPipeline()
	items := pipe.LRange(ctx, s.key(userID), 0, -1)
	pipe.Del(ctx, s.key(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain pending frames: %w", err)
	}

	raw, err := items.Result()
	if err != nil {
		return nil, fmt.Errorf("read pending frames: %w", err)
	}

	frames := make([]*PendingFrame, 0, len(raw))
	for _, item := range raw {
		frame := &PendingFrame{}
		if err := json.Unmarshal([]byte(item), frame); err != nil {
			log.Error().Err(err).Str("userID", userID).
				Msg("[PendingFrameStore] Dropping undecodable frame")
			continue
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Count reports how many frames are parked for a user.
func (s *PendingFrameStore) Count(ctx context.Context, userID string) (int64, error) {
	return s.client.LLen(ctx, s.key(userID)).Result()
}
