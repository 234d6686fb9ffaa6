package lifecycle

import (
	"context"
	"fmt"
	"time"

	"queueline/internal/models"
	"queueline/internal/store"
)

func (s *Service) ListScheduleWindows(ctx context.Context, businessID string) ([]models.ScheduleWindow, error) {
	return s.store.ListScheduleWindows(ctx, businessID)
}

func (s *Service) ReplaceScheduleWindows(ctx context.Context, businessID string, windows []models.ScheduleWindow) ([]models.ScheduleWindow, error) {
	for i, window := range windows {
		if err := window.Validate(); err != nil {
			return nil, fmt.Errorf("%w: window %d: %v", store.ErrValidation, i, err)
		}
	}
	return s.store.ReplaceScheduleWindows(ctx, businessID, windows)
}

func (s *Service) SetReservationOpen(ctx context.Context, businessID string, open bool) (models.Business, error) {
	return s.store.SetReservationOpen(ctx, businessID, open)
}

func (s *Service) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	return s.store.ListBusinesses(ctx)
}

func (s *Service) ListOutboxEvents(ctx context.Context, businessID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	return s.store.ListOutboxEvents(ctx, businessID, after, limit)
}
