package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// The worker process delivers in-app frames but the sockets live in the api
// process. Frames cross over a Redis pub/sub channel; a presence key per
// user lets the worker decide between the live path and the pending store.

const (
	frameChannel = "inapp:frames"

	// presenceTTL must exceed the hub's refresh interval.
	presenceTTL = 90 * time.Second
)

// ================================================
// PRESENCE STORE
// ================================================

// PresenceStore tracks which users hold a live socket session somewhere.
type PresenceStore struct {
	client *redis.Client
}

func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func (s *PresenceStore) key(userID string) string {
	return "inapp:online:" + userID
}

// SetOnline marks the user online, refreshing the TTL.
func (s *PresenceStore) SetOnline(ctx context.Context, userID string) error {
	return s.client.Set(ctx, s.key(userID), "1", presenceTTL).Err()
}

// SetOffline clears the presence key. Called when a user's last session
// disconnects.
func (s *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// Online reports whether the user has a live session on any api instance.
// Errors report offline; the frame then parks in the pending store, which
// the reconnect flush drains either way.
func (s *PresenceStore) Online(ctx context.Context, userID string) bool {
	exists, err := s.client.Exists(ctx, s.key(userID)).Result()
	if err != nil {
		log.Error().Err(err).Str("userID", userID).
			Msg("[Presence] Lookup failed, assuming offline")
		return false
	}
	return exists > 0
}

// ================================================
// FRAME BUS
// ================================================

// BusFrame is the pub/sub payload carrying one in-app frame to whichever
// api instance holds the user's session.
type BusFrame struct {
	UserID         string    `json:"userId"`
	NotificationID string    `json:"notificationId"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	CorrelationID  string    `json:"correlationId"`
	SentAt         time.Time `json:"sentAt"`
}

// FrameBus publishes frames from the worker and feeds them to the api-side
// subscriber.
type FrameBus struct {
	client *redis.Client
}

func NewFrameBus(client *redis.Client) *FrameBus {
	return &FrameBus{client: client}
}

// Publish sends one frame to every subscribed api instance.
func (b *FrameBus) Publish(ctx context.Context, frame *BusFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal bus frame: %w", err)
	}
	if err := b.client.Publish(ctx, frameChannel, data).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

// Subscribe invokes handle for every published frame until ctx is
// cancelled.
func (b *FrameBus) Subscribe(ctx context.Context, handle func(*BusFrame)) {
	sub := b.client.Subscribe(ctx, frameChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-ch:
			if !ok {
				return
			}
			frame := &BusFrame{}
			if err := json.Unmarshal([]byte(message.Payload), frame); err != nil {
				log.Error().Err(err).Msg("[FrameBus] Dropping undecodable frame")
				continue
			}
			handle(frame)
		}
	}
}
