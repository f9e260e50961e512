package realtime

import (
	"context"
	"time"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/infrastructure/cache"
)

// inAppAdapter is the IN_APP channel adapter, run inside the worker. Users
// with a live session get the frame over the frame bus; offline users get
// it parked in the pending store unless the deployment requires a session.
type inAppAdapter struct {
	presence       *cache.PresenceStore
	bus            *cache.FrameBus
	pending        *cache.PendingFrameStore
	requireSession bool
}

func NewAdapter(presence *cache.PresenceStore, bus *cache.FrameBus, pending *cache.PendingFrameStore, requireSession bool) *inAppAdapter {
	return &inAppAdapter{
		presence:       presence,
		bus:            bus,
		pending:        pending,
		requireSession: requireSession,
	}
}

func (a *inAppAdapter) Channel() model.Channel {
	return model.ChannelInApp
}

func (a *inAppAdapter) Send(ctx context.Context, req *model.DispatchRequest) (string, error) {
	now := time.Now().UTC()

	if a.presence.Online(ctx, req.Recipient) {
		err := a.bus.Publish(ctx, &cache.BusFrame{
			UserID:         req.Recipient,
			NotificationID: req.NotificationID.String(),
			Subject:        req.Subject,
			Content:        req.Content,
			CorrelationID:  req.CorrelationID,
			SentAt:         now,
		})
		if err != nil {
			return "", err
		}
		return "socket", nil
	}

	if a.requireSession {
		return "", model.Permanent(model.ErrNoSession)
	}

	err := a.pending.Push(ctx, req.Recipient, &cache.PendingFrame{
		NotificationID: req.NotificationID.String(),
		Subject:        req.Subject,
		Content:        req.Content,
		CorrelationID:  req.CorrelationID,
		QueuedAt:       now,
	})
	if err != nil {
		return "", err
	}
	return "pending", nil
}
