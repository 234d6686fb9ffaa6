package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"queueline/internal/models"
	"queueline/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `reservation_id, business_id, customer_id, request_id, customer_name, phone, email, party_size,
	to_char(reservation_date, 'YYYY-MM-DD'), to_char(reservation_time, 'HH24:MI'), service_id, notes, status,
	cancellation_reason, version, created_at, updated_at`

func (s *Store) CreateReservation(ctx context.Context, input store.ReservationInput) (models.Reservation, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Reservation{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if input.RequestID != "" {
		var existing models.Reservation
		existing, err = scanReservation(tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE request_id = $1`, input.RequestID))
		if err == nil {
			if err = tx.Commit(ctx); err != nil {
				return models.Reservation{}, false, err
			}
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrReservationNotFound) {
			return models.Reservation{}, false, err
		}
	}

	if err = ensureBusiness(ctx, tx, input.BusinessID); err != nil {
		return models.Reservation{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	reservation, err := scanReservation(tx.QueryRow(ctx, `
		INSERT INTO reservations (
			reservation_id, business_id, customer_id, request_id, customer_name, phone, email, party_size,
			reservation_date, reservation_time, service_id, notes, status, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::date,$10::time,$11,$12,$13,1,$14,$14)
		RETURNING `+reservationColumns,
		uuid.NewString(), input.BusinessID, nullIfEmpty(input.CustomerID), nullIfEmpty(input.RequestID),
		input.CustomerName, input.Phone, nullIfEmpty(input.Email), input.PartySize,
		input.Date, input.Time, nullIfEmpty(input.ServiceID), nullIfEmpty(input.Notes), models.ReservationPending, createdAt))
	if err != nil {
		return models.Reservation{}, false, err
	}

	if err = recordReservationChange(ctx, tx, reservation, "reservation.created"); err != nil {
		return models.Reservation{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Reservation{}, false, err
	}
	return reservation, true, nil
}

func (s *Store) GetReservation(ctx context.Context, reservationID string) (models.Reservation, error) {
	return scanReservation(s.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE reservation_id = $1`, reservationID))
}

func (s *Store) ListReservations(ctx context.Context, businessID string, from, to time.Time) ([]models.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE business_id = $1 AND reservation_date >= $2::date AND reservation_date <= $3::date
		ORDER BY reservation_date ASC, reservation_time ASC
	`, businessID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

func (s *Store) TransitionReservation(ctx context.Context, input store.ReservationTransitionInput) (models.Reservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Reservation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var reason interface{}
	if input.To == models.ReservationCancelled {
		reason = input.Reason
	}

	updateQuery := `
		UPDATE reservations
		SET status = $1, cancellation_reason = $2, version = version + 1, updated_at = $3
		WHERE reservation_id = $4 AND status = $5
	`
	args := []interface{}{input.To, reason, occurredAt, input.ReservationID, input.From}
	if input.ExpectedVersion > 0 {
		updateQuery += fmt.Sprintf(" AND version = $%d", len(args)+1)
		args = append(args, input.ExpectedVersion)
	}
	updateQuery += " RETURNING " + reservationColumns

	reservation, err := scanReservation(tx.QueryRow(ctx, updateQuery, args...))
	if err != nil {
		if errors.Is(err, store.ErrReservationNotFound) {
			exists, loadErr := rowExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE reservation_id = $1)`, input.ReservationID)
			if loadErr != nil {
				err = loadErr
				return models.Reservation{}, err
			}
			if exists {
				err = store.ErrStaleState
			}
		}
		return models.Reservation{}, err
	}

	if err = recordReservationChange(ctx, tx, reservation, "reservation."+reservation.Status); err != nil {
		return models.Reservation{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Reservation{}, err
	}
	return reservation, nil
}

func recordReservationChange(ctx context.Context, tx pgx.Tx, reservation models.Reservation, eventType string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"reservation_id":      reservation.ReservationID,
		"business_id":         reservation.BusinessID,
		"status":              reservation.Status,
		"reservation_date":    reservation.Date,
		"reservation_time":    reservation.Time,
		"cancellation_reason": reservation.CancellationReason,
		"version":             reservation.Version,
	})
	if err != nil {
		return err
	}
	if err := insertLifecycleEvent(ctx, tx, reservation.ReservationID, store.KindReservation, eventType, payload); err != nil {
		return err
	}
	return publishChange(ctx, tx, store.Change{Kind: store.KindReservation, BusinessID: reservation.BusinessID, SubjectID: reservation.ReservationID}, eventType, payload)
}

func scanReservation(row pgx.Row) (models.Reservation, error) {
	var reservation models.Reservation
	var customerID, requestID, email, serviceID, notes, reason sql.NullString
	if err := row.Scan(&reservation.ReservationID, &reservation.BusinessID, &customerID, &requestID, &reservation.CustomerName, &reservation.Phone, &email, &reservation.PartySize,
		&reservation.Date, &reservation.Time, &serviceID, &notes, &reservation.Status,
		&reason, &reservation.Version, &reservation.CreatedAt, &reservation.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, store.ErrReservationNotFound
		}
		return models.Reservation{}, err
	}
	reservation.CustomerID = nullStringPtr(customerID)
	reservation.RequestID = nullString(requestID)
	reservation.Email = nullString(email)
	reservation.ServiceID = nullString(serviceID)
	reservation.Notes = nullString(notes)
	reservation.CancellationReason = nullStringPtr(reason)
	return reservation, nil
}
