package service

import (
	"context"
	"sort"
	"time"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/repository"
)

type analyticsService struct {
	history repository.HistoryRepository
}

func NewAnalyticsService(history repository.HistoryRepository) AnalyticsService {
	return &analyticsService{history: history}
}

func (s *analyticsService) DeliveryRate(ctx context.Context, channel *model.Channel, from, to time.Time) (*model.DeliveryRateStats, error) {
	from, to = normalizeWindow(from, to)
	return s.history.DeliveryStats(ctx, channel, from, to)
}

func (s *analyticsService) Engagement(ctx context.Context, from, to time.Time) (*model.EngagementStats, error) {
	from, to = normalizeWindow(from, to)
	return s.history.EngagementStats(ctx, from, to)
}

// ChannelPerformance returns per-channel stats sorted by delivery rate,
// best first.
func (s *analyticsService) ChannelPerformance(ctx context.Context, from, to time.Time) ([]*model.ChannelPerformance, error) {
	from, to = normalizeWindow(from, to)
	results, err := s.history.ChannelPerformance(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DeliveryRate != results[j].DeliveryRate {
			return results[i].DeliveryRate > results[j].DeliveryRate
		}
		return results[i].Channel < results[j].Channel
	})
	return results, nil
}

func (s *analyticsService) FailureBreakdown(ctx context.Context, from, to time.Time, limit int) ([]*model.FailureBreakdown, error) {
	from, to = normalizeWindow(from, to)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.history.FailureBreakdown(ctx, from, to, limit)
}

// normalizeWindow defaults an empty window to the last 30 days.
func normalizeWindow(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() || !from.Before(to) {
		from = to.AddDate(0, 0, -30)
	}
	return from, to
}
