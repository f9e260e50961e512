package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/repository"
)

const (
	templateCacheTTL     = 5 * time.Minute
	templateCacheCleanup = 10 * time.Minute
)

type templateService struct {
	repo  repository.TemplateRepository
	cache *gocache.Cache
}

func NewTemplateService(repo repository.TemplateRepository) TemplateService {
	return &templateService{
		repo:  repo,
		cache: gocache.New(templateCacheTTL, templateCacheCleanup),
	}
}

func (s *templateService) Create(ctx context.Context, req *model.CreateTemplateRequest, createdBy *uuid.UUID) (*model.Template, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("check template name: %w", err)
	}
	if exists {
		return nil, model.ErrTemplateNameExists
	}

	priority := model.PriorityMedium
	if req.DefaultPriority != "" {
		priority = model.Priority(req.DefaultPriority)
	}

	template := &model.Template{
		ID:               uuid.New(),
		Name:             req.Name,
		DisplayName:      req.DisplayName,
		Description:      req.Description,
		Channel:          model.Channel(req.Channel),
		Category:         model.TemplateCategory(req.Category),
		SubjectTemplate:  req.SubjectTemplate,
		ContentTemplate:  req.ContentTemplate,
		HTMLTemplate:     req.HTMLTemplate,
		Active:           true,
		Version:          1,
		DefaultPriority:  priority,
		RateLimitPerHour: req.RateLimitPerHour,
		CreatedBy:        createdBy,
		UpdatedBy:        createdBy,
	}

	if err := s.repo.Create(ctx, template); err != nil {
		return nil, err
	}

	log.Info().
		Str("name", template.Name).
		Str("channel", string(template.Channel)).
		Msg("[TemplateService] Template created")

	return template, nil
}

// Update creates a new version inheriting unset fields from the current
// active one. The old version stays readable for history.
func (s *templateService) Update(ctx context.Context, name string, req *model.UpdateTemplateRequest, updatedBy *uuid.UUID) (*model.Template, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}

	next := *current
	next.ID = uuid.New()
	next.UpdatedBy = updatedBy

	if req.DisplayName != nil {
		next.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		next.Description = req.Description
	}
	if req.SubjectTemplate != nil {
		next.SubjectTemplate = *req.SubjectTemplate
	}
	if req.ContentTemplate != nil {
		next.ContentTemplate = *req.ContentTemplate
	}
	if req.HTMLTemplate != nil {
		next.HTMLTemplate = req.HTMLTemplate
	}
	if req.DefaultPriority != nil {
		next.DefaultPriority = model.Priority(*req.DefaultPriority)
	}
	if req.RateLimitPerHour != nil {
		next.RateLimitPerHour = req.RateLimitPerHour
	}

	if err := s.repo.CreateNewVersion(ctx, &next); err != nil {
		return nil, err
	}
	s.cache.Delete(name)

	log.Info().
		Str("name", name).
		Int("version", next.Version).
		Msg("[TemplateService] Template version created")

	return &next, nil
}

func (s *templateService) GetByName(ctx context.Context, name string) (*model.Template, error) {
	if cached, ok := s.cache.Get(name); ok {
		return cached.(*model.Template), nil
	}

	template, err := s.repo.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, template, gocache.DefaultExpiration)
	return template, nil
}

func (s *templateService) List(ctx context.Context, channel *model.Channel, category *model.TemplateCategory, page, limit int) ([]*model.Template, int64, error) {
	return s.repo.List(ctx, channel, category, page, limit)
}

func (s *templateService) ListVersions(ctx context.Context, name string) ([]*model.Template, error) {
	return s.repo.ListVersions(ctx, name)
}

func (s *templateService) Delete(ctx context.Context, name string) error {
	if err := s.repo.SoftDelete(ctx, name); err != nil {
		return err
	}
	s.cache.Delete(name)

	log.Info().Str("name", name).Msg("[TemplateService] Template deleted")
	return nil
}

func (s *templateService) Render(ctx context.Context, name string, variables map[string]interface{}) (*RenderedMessage, error) {
	template, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !template.Active {
		return nil, model.ErrTemplateInactive
	}

	msg := &RenderedMessage{
		Subject:      renderString(template.SubjectTemplate, variables),
		Content:      renderString(template.ContentTemplate, variables),
		Channel:      template.Channel,
		Category:     template.Category,
		Priority:     template.DefaultPriority,
		RatePerHour:  template.RateLimitPerHour,
		TemplateName: template.Name,
	}
	if template.HTMLTemplate != nil {
		html := renderString(*template.HTMLTemplate, variables)
		msg.HTMLContent = &html
	}
	return msg, nil
}
