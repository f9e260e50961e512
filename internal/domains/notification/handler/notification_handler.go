package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/shared/middleware"
	"notification-backend/internal/shared/response"
)

// NotificationHandler exposes the send and history endpoints.
type NotificationHandler struct {
	dispatch service.DispatchService
}

func NewNotificationHandler(dispatch service.DispatchService) *NotificationHandler {
	return &NotificationHandler{dispatch: dispatch}
}

// Send handles POST /api/v1/notifications.
func (h *NotificationHandler) Send(c *gin.Context) {
	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = c.GetHeader("X-Correlation-ID")
	}

	record, err := h.dispatch.Enqueue(c.Request.Context(), &req, c.GetString("userID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, record)
}

// SendBulk handles POST /api/v1/notifications/bulk (admin only).
func (h *NotificationHandler) SendBulk(c *gin.Context) {
	var body struct {
		Recipients []string `json:"recipients"`
		model.SendRequest
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	req := &model.BulkSendRequest{Recipients: body.Recipients, Request: body.SendRequest}
	outcomes, err := h.dispatch.EnqueueBulk(c.Request.Context(), req, c.GetString("userID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusAccepted, outcomes,
		&response.Meta{Total: int64(len(outcomes))})
}

// GetStatus handles GET /api/v1/notifications/:id.
func (h *NotificationHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}

	record, err := h.dispatch.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Non-admin callers only see their own notifications.
	if !middleware.IsAdmin(c) && record.Recipient != c.GetString("userID") {
		response.NotFound(c, "notification not found")
		return
	}
	response.Success(c, http.StatusOK, record)
}

// List handles GET /api/v1/notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	filter := &model.HistoryFilter{
		Page:  intQuery(c, "page", 1),
		Limit: intQuery(c, "limit", 20),
	}

	if middleware.IsAdmin(c) {
		filter.Recipient = c.Query("recipient")
	} else {
		filter.Recipient = c.GetString("userID")
	}
	if v := c.Query("channel"); v != "" {
		channel := model.Channel(v)
		filter.Channel = &channel
	}
	if v := c.Query("status"); v != "" {
		status := model.Status(v)
		filter.Status = &status
	}
	if v := c.Query("template"); v != "" {
		filter.TemplateName = &v
	}
	if v := c.Query("correlationId"); v != "" {
		filter.CorrelationID = &v
	}
	if t, ok := timeQuery(c, "from"); ok {
		filter.From = &t
	}
	if t, ok := timeQuery(c, "to"); ok {
		filter.To = &t
	}

	records, total, err := h.dispatch.ListHistory(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, records, &response.Meta{
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	})
}

// MarkRead handles POST /api/v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}

	if err := h.dispatch.MarkRead(c.Request.Context(), id, c.GetString("userID")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "status": model.StatusRead})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	count, err := h.dispatch.MarkAllRead(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"marked": count})
}

// UnreadCount handles GET /api/v1/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.dispatch.UnreadCount(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// Cancel handles POST /api/v1/notifications/:id/cancel. Only queued
// notifications can be cancelled.
func (h *NotificationHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}

	// Admins may cancel any notification; everyone else only their own.
	requestedBy := c.GetString("userID")
	if middleware.IsAdmin(c) {
		requestedBy = ""
	}
	if err := h.dispatch.Cancel(c.Request.Context(), id, requestedBy); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "status": model.StatusCancelled})
}

func (h *NotificationHandler) writeError(c *gin.Context, err error) {
	var validationErrs validation.Errors
	switch {
	case errors.As(err, &validationErrs):
		response.ErrorWithDetails(c, http.StatusBadRequest,
			model.ErrCodeInvalidInput, "validation failed", validationErrs)
	case errors.Is(err, model.ErrHistoryNotFound):
		response.NotFound(c, "notification not found")
	case errors.Is(err, model.ErrTemplateNotFound):
		response.ErrorResponse(c, http.StatusNotFound, model.ErrCodeTemplateNotFound, err.Error())
	case errors.Is(err, model.ErrTemplateInactive):
		response.ErrorResponse(c, http.StatusConflict, model.ErrCodeTemplateInactive, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrConcurrentUpdate):
		response.ErrorResponse(c, http.StatusConflict, model.ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, model.ErrRateLimitExceeded):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, model.ErrUnknownChannel):
		response.BadRequest(c, err.Error())
	default:
		response.InternalServerError(c, "internal error")
	}
}

// query helpers shared by the handlers in this package

func intQuery(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return value
}

func timeQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
