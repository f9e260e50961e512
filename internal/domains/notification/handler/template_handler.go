package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/shared/response"
	"notification-backend/internal/shared/utils"
)

// TemplateHandler exposes template management, admin only.
type TemplateHandler struct {
	templates service.TemplateService
}

func NewTemplateHandler(templates service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// Create handles POST /api/v1/templates.
func (h *TemplateHandler) Create(c *gin.Context) {
	var req model.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	actor := utils.ParseStringToUUID(c.GetString("userID"))
	template, err := h.templates.Create(c.Request.Context(), &req, &actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, template)
}

// Update handles PUT /api/v1/templates/:name, creating a new version.
func (h *TemplateHandler) Update(c *gin.Context) {
	var req model.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	actor := utils.ParseStringToUUID(c.GetString("userID"))
	template, err := h.templates.Update(c.Request.Context(), c.Param("name"), &req, &actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, template)
}

// Get handles GET /api/v1/templates/:name, returning the active version.
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.templates.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, template)
}

// List handles GET /api/v1/templates.
func (h *TemplateHandler) List(c *gin.Context) {
	var channel *model.Channel
	if v := c.Query("channel"); v != "" {
		ch := model.Channel(v)
		channel = &ch
	}
	var category *model.TemplateCategory
	if v := c.Query("category"); v != "" {
		cat := model.TemplateCategory(v)
		category = &cat
	}

	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 20)

	templates, total, err := h.templates.List(c.Request.Context(), channel, category, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, templates, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// ListVersions handles GET /api/v1/templates/:name/versions.
func (h *TemplateHandler) ListVersions(c *gin.Context) {
	versions, err := h.templates.ListVersions(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, versions)
}

// Delete handles DELETE /api/v1/templates/:name.
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), c.Param("name")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"name": c.Param("name"), "deleted": true})
}

// Preview handles POST /api/v1/templates/:name/preview, rendering without
// dispatching.
func (h *TemplateHandler) Preview(c *gin.Context) {
	var body struct {
		Variables map[string]interface{} `json:"variables"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	rendered, err := h.templates.Render(c.Request.Context(), c.Param("name"), body.Variables)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"subject": rendered.Subject,
		"content": rendered.Content,
		"html":    rendered.HTMLContent,
	})
}

func (h *TemplateHandler) writeError(c *gin.Context, err error) {
	var validationErrs validation.Errors
	switch {
	case errors.As(err, &validationErrs):
		response.ErrorWithDetails(c, http.StatusBadRequest,
			model.ErrCodeInvalidInput, "validation failed", validationErrs)
	case errors.Is(err, model.ErrTemplateNotFound):
		response.ErrorResponse(c, http.StatusNotFound, model.ErrCodeTemplateNotFound, err.Error())
	case errors.Is(err, model.ErrTemplateNameExists):
		response.ErrorResponse(c, http.StatusConflict, model.ErrCodeTemplateExists, err.Error())
	case errors.Is(err, model.ErrTemplateInactive):
		response.ErrorResponse(c, http.StatusConflict, model.ErrCodeTemplateInactive, err.Error())
	default:
		response.InternalServerError(c, "internal error")
	}
}
