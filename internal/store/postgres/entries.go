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

const entryColumns = `entry_id, business_id, customer_id, request_id, customer_name, phone, email, party_size,
	service_id, notes, status, position, joined_at, called_at, attended_at, completed_at, cancellation_reason, version`

func (s *Store) CreateEntry(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if input.RequestID != "" {
		var existing models.QueueEntry
		existing, err = scanEntry(tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE request_id = $1`, input.RequestID))
		if err == nil {
			if err = tx.Commit(ctx); err != nil {
				return models.QueueEntry{}, false, err
			}
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrEntryNotFound) {
			return models.QueueEntry{}, false, err
		}
	}

	if err = ensureBusiness(ctx, tx, input.BusinessID); err != nil {
		return models.QueueEntry{}, false, err
	}

	position, err := nextPosition(ctx, tx, input.BusinessID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	joinedAt := input.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}

	entry, err := scanEntry(tx.QueryRow(ctx, `
		INSERT INTO queue_entries (
			entry_id, business_id, customer_id, request_id, customer_name, phone, email, party_size,
			service_id, notes, status, position, joined_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1)
		RETURNING `+entryColumns,
		uuid.NewString(), input.BusinessID, nullIfEmpty(input.CustomerID), nullIfEmpty(input.RequestID),
		input.CustomerName, input.Phone, nullIfEmpty(input.Email), input.PartySize,
		nullIfEmpty(input.ServiceID), nullIfEmpty(input.Notes), models.EntryWaiting, position, joinedAt))
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	if err = recordEntryChange(ctx, tx, entry, "queue_entry.created"); err != nil {
		return models.QueueEntry{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	return scanEntry(s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE entry_id = $1`, entryID))
}

func (s *Store) CountWaitingAhead(ctx context.Context, businessID string, position int64) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM queue_entries
		WHERE business_id = $1 AND status = $2 AND position < $3
	`, businessID, models.EntryWaiting, position)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListEntries(ctx context.Context, businessID string, statuses []string) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE business_id = $1`
	args := []interface{}{businessID}
	if len(statuses) > 0 {
		query += " AND status = ANY($2)"
		args = append(args, statuses)
	}
	query += " ORDER BY position ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) TransitionEntry(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
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
	if models.IsEntryCancellation(input.To) {
		reason = input.Reason
	}

	updateQuery := `
		UPDATE queue_entries
		SET status = $1, cancellation_reason = $2, version = version + 1
	`
	args := []interface{}{input.To, reason}
	argPos := 3

	if column := store.EntryTimestampColumn(input.To); column != "" {
		updateQuery += fmt.Sprintf(", %s = COALESCE(%s, $%d)", column, column, argPos)
		args = append(args, occurredAt)
		argPos++
	}

	updateQuery += fmt.Sprintf(" WHERE entry_id = $%d AND status = $%d", argPos, argPos+1)
	args = append(args, input.EntryID, input.From)
	argPos += 2

	if input.ExpectedVersion > 0 {
		updateQuery += fmt.Sprintf(" AND version = $%d", argPos)
		args = append(args, input.ExpectedVersion)
	}
	updateQuery += " RETURNING " + entryColumns

	entry, err := scanEntry(tx.QueryRow(ctx, updateQuery, args...))
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			exists, loadErr := rowExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM queue_entries WHERE entry_id = $1)`, input.EntryID)
			if loadErr != nil {
				err = loadErr
				return models.QueueEntry{}, err
			}
			if exists {
				err = store.ErrStaleState
			}
		}
		return models.QueueEntry{}, err
	}

	if err = recordEntryChange(ctx, tx, entry, "queue_entry."+entry.Status); err != nil {
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func recordEntryChange(ctx context.Context, tx pgx.Tx, entry models.QueueEntry, eventType string) error {
	payload, err := store.EntryEventPayload(entry)
	if err != nil {
		return err
	}
	if err := insertLifecycleEvent(ctx, tx, entry.EntryID, store.KindEntry, eventType, payload); err != nil {
		return err
	}
	outbox, err := json.Marshal(map[string]interface{}{
		"entry_id":    entry.EntryID,
		"business_id": entry.BusinessID,
		"status":      entry.Status,
		"position":    entry.Position,
		"version":     entry.Version,
	})
	if err != nil {
		return err
	}
	return publishChange(ctx, tx, store.Change{Kind: store.KindEntry, BusinessID: entry.BusinessID, SubjectID: entry.EntryID}, eventType, outbox)
}

func nextPosition(ctx context.Context, tx pgx.Tx, businessID string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO queue_sequences (business_id, next_position)
		VALUES ($1, 1)
		ON CONFLICT (business_id)
		DO UPDATE SET next_position = queue_sequences.next_position + 1
		RETURNING next_position
	`, businessID)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func rowExists(ctx context.Context, tx pgx.Tx, query string, id string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanEntry(row pgx.Row) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var customerID, requestID, email, serviceID, notes, reason sql.NullString
	var calledAt, attendedAt, completedAt sql.NullTime
	if err := row.Scan(&entry.EntryID, &entry.BusinessID, &customerID, &requestID, &entry.CustomerName, &entry.Phone, &email, &entry.PartySize,
		&serviceID, &notes, &entry.Status, &entry.Position, &entry.JoinedAt, &calledAt, &attendedAt, &completedAt, &reason, &entry.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	entry.CustomerID = nullStringPtr(customerID)
	entry.RequestID = nullString(requestID)
	entry.Email = nullString(email)
	entry.ServiceID = nullString(serviceID)
	entry.Notes = nullString(notes)
	entry.CalledAt = nullTimePtr(calledAt)
	entry.AttendedAt = nullTimePtr(attendedAt)
	entry.CompletedAt = nullTimePtr(completedAt)
	entry.CancellationReason = nullStringPtr(reason)
	return entry, nil
}
