package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/repository"
)

const (
	preferenceCacheTTL     = 2 * time.Minute
	preferenceCacheCleanup = 5 * time.Minute
)

type preferenceService struct {
	repo              repository.PreferenceRepository
	cache             *gocache.Cache
	quietUrgentBypass bool
}

func NewPreferenceService(repo repository.PreferenceRepository, quietUrgentBypass bool) PreferenceService {
	return &preferenceService{
		repo:              repo,
		cache:             gocache.New(preferenceCacheTTL, preferenceCacheCleanup),
		quietUrgentBypass: quietUrgentBypass,
	}
}

// Get returns the stored preference or the defaults when the user has never
// saved any. The defaults are not persisted until the user writes them.
func (s *preferenceService) Get(ctx context.Context, userID string) (*model.UserPreference, error) {
	if cached, ok := s.cache.Get(userID); ok {
		return cached.(*model.UserPreference), nil
	}

	pref, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrPreferenceNotFound) {
			pref = model.DefaultPreference(userID)
		} else {
			return nil, err
		}
	}

	s.cache.Set(userID, pref, gocache.DefaultExpiration)
	return pref, nil
}

func (s *preferenceService) Update(ctx context.Context, userID string, req *model.UpdatePreferenceRequest) (*model.UserPreference, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pref, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated := *pref
	updated.EnabledChannels = append([]model.Channel(nil), pref.EnabledChannels...)
	updated.EnabledCategories = append([]model.TemplateCategory(nil), pref.EnabledCategories...)

	if req.NotificationsEnabled != nil {
		updated.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.PreferredChannel != nil {
		updated.PreferredChannel = model.Channel(*req.PreferredChannel)
	}
	if req.EnabledChannels != nil {
		updated.EnabledChannels = make([]model.Channel, len(req.EnabledChannels))
		for i, c := range req.EnabledChannels {
			updated.EnabledChannels[i] = model.Channel(c)
		}
	}
	if req.EnabledCategories != nil {
		updated.EnabledCategories = make([]model.TemplateCategory, len(req.EnabledCategories))
		for i, c := range req.EnabledCategories {
			updated.EnabledCategories[i] = model.TemplateCategory(c)
		}
	}
	if req.EmailAddress != nil {
		updated.EmailAddress = req.EmailAddress
	}
	if req.PhoneNumber != nil {
		updated.PhoneNumber = req.PhoneNumber
	}
	if req.QuietHoursEnabled != nil {
		updated.QuietHoursEnabled = *req.QuietHoursEnabled
	}
	if req.QuietStart != nil {
		updated.QuietStart = *req.QuietStart
	}
	if req.QuietEnd != nil {
		updated.QuietEnd = *req.QuietEnd
	}
	if req.TimeZone != nil {
		if _, err := time.LoadLocation(*req.TimeZone); err != nil {
			return nil, fmt.Errorf("invalid time zone %q", *req.TimeZone)
		}
		updated.TimeZone = *req.TimeZone
	}
	if req.FrequencyLimitPerHour != nil {
		updated.FrequencyLimitPerHour = *req.FrequencyLimitPerHour
	}
	if req.FrequencyLimitPerDay != nil {
		updated.FrequencyLimitPerDay = *req.FrequencyLimitPerDay
	}
	if req.Language != nil {
		updated.Language = *req.Language
	}

	if err := s.repo.Upsert(ctx, &updated); err != nil {
		return nil, err
	}
	s.cache.Delete(userID)

	log.Info().Str("userID", userID).Msg("[PreferenceService] Preferences updated")
	return &updated, nil
}

func (s *preferenceService) Reset(ctx context.Context, userID string) (*model.UserPreference, error) {
	pref := model.DefaultPreference(userID)
	if err := s.repo.Upsert(ctx, pref); err != nil {
		return nil, err
	}
	s.cache.Delete(userID)

	log.Info().Str("userID", userID).Msg("[PreferenceService] Preferences reset to defaults")
	return pref, nil
}

// Evaluate runs the preference gate in order: master switch, channel set,
// category set, quiet hours. Urgent traffic bypasses quiet hours when the
// deployment allows it.
func (s *preferenceService) Evaluate(ctx context.Context, userID string, channel model.Channel, category model.TemplateCategory, priority model.Priority, at time.Time) Decision {
	pref, err := s.Get(ctx, userID)
	if err != nil {
		// Fail open on a preference read error: losing a notification is
		// worse than sending one the user would have filtered.
		log.Error().Err(err).Str("userID", userID).
			Msg("[PreferenceService] Preference lookup failed, allowing dispatch")
		return decisionAllowed
	}

	if !pref.NotificationsEnabled {
		return Decision{Reason: model.CancelReasonPreferences}
	}
	if !pref.HasChannel(channel) {
		return Decision{Reason: model.CancelReasonPreferences}
	}
	if !pref.HasCategory(category) {
		return Decision{Reason: model.CancelReasonPreferences}
	}

	if pref.QuietHoursEnabled && s.inQuietHours(pref, at) {
		if s.quietUrgentBypass && priority == model.PriorityUrgent {
			return decisionAllowed
		}
		return Decision{Reason: model.CancelReasonQuietHours}
	}

	return decisionAllowed
}

// inQuietHours checks at against the user's quiet window in their own time
// zone. A window like 22:00-07:00 wraps midnight; start == end means the
// whole day is quiet.
func (s *preferenceService) inQuietHours(pref *model.UserPreference, at time.Time) bool {
	loc, err := time.LoadLocation(pref.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	current := local.Hour()*60 + local.Minute()

	start, ok := parseMinutes(pref.QuietStart)
	if !ok {
		return false
	}
	end, ok := parseMinutes(pref.QuietEnd)
	if !ok {
		return false
	}

	if start == end {
		return true
	}
	if start < end {
		return current >= start && current < end
	}
	// Window wraps midnight.
	return current >= start || current < end
}

func parseMinutes(hhmm string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
