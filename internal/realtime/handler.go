package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// DeliveryAcker receives client acknowledgements. Implemented by the
// dispatch service.
type DeliveryAcker interface {
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkRead(ctx context.Context, id uuid.UUID, recipient string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens through the JWT middleware before the upgrade; origin
	// policy is enforced by the CORS layer in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated clients to a notification socket.
type Handler struct {
	hub   *Hub
	acker DeliveryAcker
}

func NewHandler(hub *Hub, acker DeliveryAcker) *Handler {
	return &Handler{hub: hub, acker: acker}
}

// clientMessage is what clients send upstream: delivery acks and read
// receipts.
type clientMessage struct {
	Type           string `json:"type"` // "ack" | "read"
	NotificationID string `json:"notificationId"`
}

// Serve handles GET /api/v1/notifications/ws.
func (h *Handler) Serve(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("[Realtime] Websocket upgrade failed")
		return
	}

	session := newSession(xid.New().String(), userID, conn)
	h.hub.Register(c.Request.Context(), session)

	go h.readLoop(session)
}

func (h *Handler) readLoop(session *Session) {
	defer h.hub.Unregister(session)

	session.conn.SetReadLimit(maxMessageSize)
	session.conn.SetPongHandler(func(string) error {
		session.touch()
		return nil
	})

	for {
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).
					Str("sessionID", session.ID).
					Msg("[Realtime] Unexpected socket close")
			}
			return
		}
		session.touch()

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).
				Str("sessionID", session.ID).
				Msg("[Realtime] Ignoring malformed client message")
			continue
		}
		h.handleClientMessage(session, &msg)
	}
}

func (h *Handler) handleClientMessage(session *Session, msg *clientMessage) {
	id, err := uuid.Parse(msg.NotificationID)
	if err != nil {
		return
	}
	ctx := context.Background()

	switch msg.Type {
	case "ack":
		if err := h.acker.MarkDelivered(ctx, id); err != nil {
			log.Error().Err(err).
				Str("notificationID", msg.NotificationID).
				Msg("[Realtime] Delivery ack failed")
		}
	case "read":
		if err := h.acker.MarkRead(ctx, id, session.UserID); err != nil {
			log.Error().Err(err).
				Str("notificationID", msg.NotificationID).
				Msg("[Realtime] Read receipt failed")
		}
	}
}
