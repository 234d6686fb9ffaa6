package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"queueline/internal/models"
	"queueline/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	return scanBusiness(s.pool.QueryRow(ctx, `
		SELECT business_id, name, is_reservation_open, avg_service_minutes, created_at
		FROM businesses
		WHERE business_id = $1
	`, businessID))
}

func (s *Store) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT business_id, name, is_reservation_open, avg_service_minutes, created_at
		FROM businesses
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var businesses []models.Business
	for rows.Next() {
		business, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		businesses = append(businesses, business)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return businesses, nil
}

func (s *Store) SetReservationOpen(ctx context.Context, businessID string, open bool) (models.Business, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Business{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	business, err := scanBusiness(tx.QueryRow(ctx, `
		UPDATE businesses
		SET is_reservation_open = $1
		WHERE business_id = $2
		RETURNING business_id, name, is_reservation_open, avg_service_minutes, created_at
	`, open, businessID))
	if err != nil {
		return models.Business{}, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"business_id":         business.BusinessID,
		"is_reservation_open": business.IsReservationOpen,
	})
	if err != nil {
		return models.Business{}, err
	}
	if err = publishChange(ctx, tx, store.Change{Kind: store.KindBusiness, BusinessID: businessID}, "business.updated", payload); err != nil {
		return models.Business{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Business{}, err
	}
	return business, nil
}

func (s *Store) ListScheduleWindows(ctx context.Context, businessID string) ([]models.ScheduleWindow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT window_id, business_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_active
		FROM reservation_schedule_windows
		WHERE business_id = $1
		ORDER BY day_of_week ASC, start_time ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []models.ScheduleWindow
	for rows.Next() {
		var window models.ScheduleWindow
		if err := rows.Scan(&window.WindowID, &window.BusinessID, &window.DayOfWeek, &window.StartTime, &window.EndTime, &window.IsActive); err != nil {
			return nil, err
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

func (s *Store) ReplaceScheduleWindows(ctx context.Context, businessID string, windows []models.ScheduleWindow) ([]models.ScheduleWindow, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = ensureBusiness(ctx, tx, businessID); err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM reservation_schedule_windows WHERE business_id = $1`, businessID); err != nil {
		return nil, err
	}

	saved := make([]models.ScheduleWindow, 0, len(windows))
	for _, window := range windows {
		window.WindowID = uuid.NewString()
		window.BusinessID = businessID
		if _, err = tx.Exec(ctx, `
			INSERT INTO reservation_schedule_windows (window_id, business_id, day_of_week, start_time, end_time, is_active)
			VALUES ($1, $2, $3, $4::time, $5::time, $6)
		`, window.WindowID, businessID, window.DayOfWeek, window.StartTime, window.EndTime, window.IsActive); err != nil {
			return nil, err
		}
		saved = append(saved, window)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"business_id": businessID,
		"windows":     len(saved),
	})
	if err != nil {
		return nil, err
	}
	if err = publishChange(ctx, tx, store.Change{Kind: store.KindSchedule, BusinessID: businessID}, "schedule.updated", payload); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) IsWithinScheduleWindow(ctx context.Context, businessID, date, clock string) (bool, error) {
	var within bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM reservation_schedule_windows
			WHERE business_id = $1
				AND is_active
				AND day_of_week = EXTRACT(DOW FROM $2::date)
				AND start_time <= $3::time
				AND end_time > $3::time
		)
	`, businessID, date, clock)
	if err := row.Scan(&within); err != nil {
		return false, err
	}
	return within, nil
}

func scanBusiness(row pgx.Row) (models.Business, error) {
	var business models.Business
	var avg sql.NullInt32
	if err := row.Scan(&business.BusinessID, &business.Name, &business.IsReservationOpen, &avg, &business.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Business{}, store.ErrBusinessNotFound
		}
		return models.Business{}, err
	}
	if avg.Valid {
		minutes := int(avg.Int32)
		business.AvgServiceMinutes = &minutes
	}
	return business, nil
}
