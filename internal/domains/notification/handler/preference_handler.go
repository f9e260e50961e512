package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/shared/middleware"
	"notification-backend/internal/shared/response"
)

// PreferenceHandler exposes the caller's own notification preferences.
// Admins may address any user through the optional :userId route group.
type PreferenceHandler struct {
	preferences service.PreferenceService
}

func NewPreferenceHandler(preferences service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

func (h *PreferenceHandler) subject(c *gin.Context) string {
	if userID := c.Param("userId"); userID != "" && middleware.IsAdmin(c) {
		return userID
	}
	return c.GetString("userID")
}

// Get handles GET /api/v1/preferences.
func (h *PreferenceHandler) Get(c *gin.Context) {
	pref, err := h.preferences.Get(c.Request.Context(), h.subject(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

// Update handles PUT /api/v1/preferences.
func (h *PreferenceHandler) Update(c *gin.Context) {
	var req model.UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	pref, err := h.preferences.Update(c.Request.Context(), h.subject(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

// Reset handles POST /api/v1/preferences/reset.
func (h *PreferenceHandler) Reset(c *gin.Context) {
	pref, err := h.preferences.Reset(c.Request.Context(), h.subject(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

func (h *PreferenceHandler) writeError(c *gin.Context, err error) {
	var validationErrs validation.Errors
	switch {
	case errors.As(err, &validationErrs):
		response.ErrorWithDetails(c, http.StatusBadRequest,
			model.ErrCodeInvalidInput, "validation failed", validationErrs)
	case errors.Is(err, model.ErrPreferenceNotFound):
		response.NotFound(c, "preferences not found")
	default:
		response.InternalServerError(c, "internal error")
	}
}
