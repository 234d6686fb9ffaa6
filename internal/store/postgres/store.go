package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"queueline/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ListOutboxEvents(ctx context.Context, businessID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, business_id, type, payload_json, created_at
		FROM outbox_events
		WHERE business_id = $1
	`
	args := []interface{}{businessID}
	if !after.IsZero() {
		query += " AND created_at > $2"
		args = append(args, after)
		query += " ORDER BY created_at ASC LIMIT $3"
		args = append(args, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEvents(rows)
}

func (s *Store) ListRecentOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, business_id, type, payload_json, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEvents(rows)
}

func (s *Store) DeleteOutboxBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outbox_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListLifecycleEvents(ctx context.Context, subjectID string) ([]store.LifecycleEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_id, subject_kind, seq, type, payload, created_at, prev_hash, hash
		FROM lifecycle_events
		WHERE subject_id = $1
		ORDER BY seq ASC
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.LifecycleEvent
	for rows.Next() {
		var event store.LifecycleEvent
		var payload string
		if err := rows.Scan(&event.SubjectID, &event.SubjectKind, &event.Seq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = json.RawMessage(payload)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanOutboxEvents(rows pgx.Rows) ([]store.OutboxEvent, error) {
	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.BusinessID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// publishChange writes the outbox row and queues a NOTIFY; both become visible on commit.
func publishChange(ctx context.Context, tx pgx.Tx, change store.Change, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, business_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), change.BusinessID, eventType, payload, time.Now().UTC())
	if err != nil {
		return err
	}

	notice, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, store.ChangeChannel, string(notice))
	return err
}

func insertLifecycleEvent(ctx context.Context, tx pgx.Tx, subjectID, subjectKind, eventType string, payload []byte) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, subjectID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM lifecycle_events
		WHERE subject_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, subjectID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	// Round to microseconds so the hash survives the timestamptz round trip.
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeLifecycleEventHash(prev, subjectID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO lifecycle_events (subject_id, subject_kind, seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, subjectID, subjectKind, nextSeq, eventType, string(payload), createdAt, prev, hash)
	return err
}

func ensureBusiness(ctx context.Context, tx pgx.Tx, businessID string) error {
	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM businesses WHERE business_id = $1)`, businessID)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrBusinessNotFound
	}
	return nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullString(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}
