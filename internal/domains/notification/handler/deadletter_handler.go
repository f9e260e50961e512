package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/shared/response"
)

// DeadLetterHandler exposes dead-letter review, admin only.
type DeadLetterHandler struct {
	deadLetters service.DeadLetterService
}

func NewDeadLetterHandler(deadLetters service.DeadLetterService) *DeadLetterHandler {
	return &DeadLetterHandler{deadLetters: deadLetters}
}

// List handles GET /api/v1/dead-letters.
func (h *DeadLetterHandler) List(c *gin.Context) {
	var topic *string
	if v := c.Query("topic"); v != "" {
		topic = &v
	}

	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 20)

	letters, total, err := h.deadLetters.List(c.Request.Context(), topic, page, limit)
	if err != nil {
		response.InternalServerError(c, "internal error")
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, letters, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// Get handles GET /api/v1/dead-letters/:id.
func (h *DeadLetterHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid dead letter id")
		return
	}

	letter, err := h.deadLetters.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrHistoryNotFound) {
			response.NotFound(c, "dead letter not found")
			return
		}
		response.InternalServerError(c, "internal error")
		return
	}
	response.Success(c, http.StatusOK, letter)
}

// Discard handles DELETE /api/v1/dead-letters/:id.
func (h *DeadLetterHandler) Discard(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid dead letter id")
		return
	}

	if err := h.deadLetters.Discard(c.Request.Context(), id); err != nil {
		if errors.Is(err, model.ErrHistoryNotFound) {
			response.NotFound(c, "dead letter not found")
			return
		}
		response.InternalServerError(c, "internal error")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "discarded": true})
}
