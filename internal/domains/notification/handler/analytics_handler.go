package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/shared/response"
)

// AnalyticsHandler exposes delivery analytics, admin only.
type AnalyticsHandler struct {
	analytics service.AnalyticsService
}

func NewAnalyticsHandler(analytics service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

func (h *AnalyticsHandler) window(c *gin.Context) (time.Time, time.Time) {
	var from, to time.Time
	if t, ok := timeQuery(c, "from"); ok {
		from = t
	}
	if t, ok := timeQuery(c, "to"); ok {
		to = t
	}
	return from, to
}

// DeliveryRate handles GET /api/v1/analytics/delivery-rate.
func (h *AnalyticsHandler) DeliveryRate(c *gin.Context) {
	var channel *model.Channel
	if v := c.Query("channel"); v != "" {
		ch := model.Channel(v)
		if !ch.Valid() {
			response.BadRequest(c, "invalid channel")
			return
		}
		channel = &ch
	}

	from, to := h.window(c)
	stats, err := h.analytics.DeliveryRate(c.Request.Context(), channel, from, to)
	if err != nil {
		response.InternalServerError(c, "internal error")
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// Engagement handles GET /api/v1/analytics/engagement.
func (h *AnalyticsHandler) Engagement(c *gin.Context) {
	from, to := h.window(c)
	stats, err := h.analytics.Engagement(c.Request.Context(), from, to)
	if err != nil {
		response.InternalServerError(c, "internal error")
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ChannelPerformance handles GET /api/v1/analytics/channels.
func (h *AnalyticsHandler) ChannelPerformance(c *gin.Context) {
	from, to := h.window(c)
	results, err := h.analytics.ChannelPerformance(c.Request.Context(), from, to)
	if err != nil {
		response.InternalServerError(c, "internal error")
		return
	}
	response.Success(c, http.StatusOK, results)
}

// Failures handles GET /api/v1/analytics/failures.
func (h *AnalyticsHandler) Failures(c *gin.Context) {
	from, to := h.window(c)
	results, err := h.analytics.FailureBreakdown(c.Request.Context(), from, to,
		intQuery(c, "limit", 20))
	if err != nil {
		response.InternalServerError(c, "internal error")
		return
	}
	response.Success(c, http.StatusOK, results)
}
