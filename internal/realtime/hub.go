// Package realtime carries in-app notifications over websockets.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"notification-backend/internal/infrastructure/cache"
	"notification-backend/internal/metrics"
)

// Frame is the wire format pushed to connected clients.
type Frame struct {
	Type           string    `json:"type"` // "notification"
	NotificationID string    `json:"notificationId"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	CorrelationID  string    `json:"correlationId"`
	SentAt         time.Time `json:"sentAt"`
}

// Hub tracks live sessions per user. A user may hold several sessions (two
// browser tabs, a phone); a frame goes to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // userID -> sessionID -> session

	pending  *cache.PendingFrameStore
	presence *cache.PresenceStore
	bus      *cache.FrameBus
}

func NewHub(pending *cache.PendingFrameStore, presence *cache.PresenceStore, bus *cache.FrameBus) *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*Session),
		pending:  pending,
		presence: presence,
		bus:      bus,
	}
}

// Register adds a session and flushes any frames that were parked while the
// user was offline.
func (h *Hub) Register(ctx context.Context, session *Session) {
	h.mu.Lock()
	if h.sessions[session.UserID] == nil {
		h.sessions[session.UserID] = make(map[string]*Session)
	}
	h.sessions[session.UserID][session.ID] = session
	h.mu.Unlock()

	if err := h.presence.SetOnline(ctx, session.UserID); err != nil {
		log.Error().Err(err).Str("userID", session.UserID).
			Msg("[Hub] Presence update failed")
	}

	metrics.SocketSessions.Inc()
	log.Info().
		Str("userID", session.UserID).
		Str("sessionID", session.ID).
		Msg("[Hub] Session registered")

	h.flushPending(ctx, session)
}

// Unregister removes a session and closes its connection.
func (h *Hub) Unregister(session *Session) {
	h.mu.Lock()
	userSessions := h.sessions[session.UserID]
	if _, ok := userSessions[session.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(userSessions, session.ID)
	lastSession := len(userSessions) == 0
	if lastSession {
		delete(h.sessions, session.UserID)
	}
	h.mu.Unlock()

	if lastSession {
		if err := h.presence.SetOffline(context.Background(), session.UserID); err != nil {
			log.Error().Err(err).Str("userID", session.UserID).
				Msg("[Hub] Presence clear failed")
		}
	}

	session.close()
	metrics.SocketSessions.Dec()
	log.Info().
		Str("userID", session.UserID).
		Str("sessionID", session.ID).
		Msg("[Hub] Session unregistered")
}

// Deliver writes a frame to every live session of userID. Returns false when
// the user has no session or every write failed.
func (h *Hub) Deliver(userID string, frame *Frame) bool {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions[userID]))
	for _, session := range h.sessions[userID] {
		sessions = append(sessions, session)
	}
	h.mu.RUnlock()

	delivered := false
	for _, session := range sessions {
		if err := session.WriteJSON(frame); err != nil {
			log.Warn().Err(err).
				Str("sessionID", session.ID).
				Msg("[Hub] Frame write failed, dropping session")
			h.Unregister(session)
			continue
		}
		delivered = true
	}
	return delivered
}

// HasSession reports whether userID has at least one live session.
func (h *Hub) HasSession(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// SessionCount returns the total number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, userSessions := range h.sessions {
		count += len(userSessions)
	}
	return count
}

// EvictStale drops sessions that have not answered a ping within the
// tolerance. Run from the hub janitor goroutine.
func (h *Hub) EvictStale(tolerance time.Duration) int {
	cutoff := time.Now().Add(-tolerance)

	h.mu.RLock()
	var stale []*Session
	for _, userSessions := range h.sessions {
		for _, session := range userSessions {
			if session.staleSince(cutoff) {
				stale = append(stale, session)
			}
		}
	}
	h.mu.RUnlock()

	for _, session := range stale {
		log.Info().
			Str("sessionID", session.ID).
			Str("userID", session.UserID).
			Msg("[Hub] Evicting stale session")
		h.Unregister(session)
	}
	return len(stale)
}

// Run pings sessions, refreshes presence, evicts dead sessions, and feeds
// bus frames into live sockets, until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	go h.bus.Subscribe(ctx, func(frame *cache.BusFrame) {
		h.deliverBusFrame(ctx, frame)
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			var all []*Session
			for _, userSessions := range h.sessions {
				for _, session := range userSessions {
					all = append(all, session)
				}
			}
			h.mu.RUnlock()

			online := make(map[string]bool)
			for _, session := range all {
				if err := session.ping(); err != nil {
					h.Unregister(session)
					continue
				}
				online[session.UserID] = true
			}
			for userID := range online {
				if err := h.presence.SetOnline(ctx, userID); err != nil {
					log.Error().Err(err).Str("userID", userID).
						Msg("[Hub] Presence refresh failed")
				}
			}
			h.EvictStale(2 * pongWait)
		}
	}
}

// deliverBusFrame hands a frame from the worker to the user's live
// sessions, parking it when the session vanished after the worker's
// presence check.
func (h *Hub) deliverBusFrame(ctx context.Context, busFrame *cache.BusFrame) {
	frame := &Frame{
		Type:           "notification",
		NotificationID: busFrame.NotificationID,
		Subject:        busFrame.Subject,
		Content:        busFrame.Content,
		CorrelationID:  busFrame.CorrelationID,
		SentAt:         busFrame.SentAt,
	}
	if h.Deliver(busFrame.UserID, frame) {
		return
	}

	err := h.pending.Push(ctx, busFrame.UserID, &cache.PendingFrame{
		NotificationID: busFrame.NotificationID,
		Subject:        busFrame.Subject,
		Content:        busFrame.Content,
		CorrelationID:  busFrame.CorrelationID,
		QueuedAt:       busFrame.SentAt,
	})
	if err != nil {
		log.Error().Err(err).
			Str("userID", busFrame.UserID).
			Msg("[Hub] Parking missed frame failed")
	}
}

func (h *Hub) flushPending(ctx context.Context, session *Session) {
	frames, err := h.pending.Drain(ctx, session.UserID)
	if err != nil {
		log.Error().Err(err).
			Str("userID", session.UserID).
			Msg("[Hub] Pending frame drain failed")
		return
	}
	if len(frames) == 0 {
		return
	}

	for _, pending := range frames {
		frame := &Frame{
			Type:           "notification",
			NotificationID: pending.NotificationID,
			Subject:        pending.Subject,
			Content:        pending.Content,
			CorrelationID:  pending.CorrelationID,
			SentAt:         pending.QueuedAt,
		}
		if err := session.WriteJSON(frame); err != nil {
			log.Warn().Err(err).
				Str("sessionID", session.ID).
				Msg("[Hub] Pending flush write failed")
			return
		}
	}

	log.Info().
		Str("userID", session.UserID).
		Int("count", len(frames)).
		Msg("[Hub] Flushed pending frames")
}
