package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"queueline/internal/models"
)

var ErrBrokenChain = errors.New("lifecycle event chain broken")

type LifecycleEvent struct {
	SubjectID   string          `json:"subject_id"`
	SubjectKind string          `json:"subject_kind"`
	Seq         int             `json:"seq"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
}

type entryEventPayload struct {
	EntryID            string     `json:"entry_id"`
	BusinessID         string     `json:"business_id"`
	Status             string     `json:"status"`
	Position           int64      `json:"position"`
	JoinedAt           *time.Time `json:"joined_at"`
	CalledAt           *time.Time `json:"called_at"`
	AttendedAt         *time.Time `json:"attended_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	CancellationReason *string    `json:"cancellation_reason"`
	Version            int        `json:"version"`
}

func ComputeLifecycleEventHash(prevHash, subjectID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, subjectID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyChain recomputes every hash and checks each event links to the previous one.
func VerifyChain(events []LifecycleEvent) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("%w: seq %d at index %d", ErrBrokenChain, event.Seq, i)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("%w: prev_hash mismatch at seq %d", ErrBrokenChain, event.Seq)
		}
		want := ComputeLifecycleEventHash(prev, event.SubjectID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if want != event.Hash {
			return fmt.Errorf("%w: hash mismatch at seq %d", ErrBrokenChain, event.Seq)
		}
		prev = event.Hash
	}
	return nil
}

func EntryEventPayload(entry models.QueueEntry) ([]byte, error) {
	joinedAt := entry.JoinedAt
	return json.Marshal(entryEventPayload{
		EntryID:            entry.EntryID,
		BusinessID:         entry.BusinessID,
		Status:             entry.Status,
		Position:           entry.Position,
		JoinedAt:           &joinedAt,
		CalledAt:           entry.CalledAt,
		AttendedAt:         entry.AttendedAt,
		CompletedAt:        entry.CompletedAt,
		CancellationReason: entry.CancellationReason,
		Version:            entry.Version,
	})
}

func RehydrateEntry(events []LifecycleEvent) (models.QueueEntry, error) {
	var entry models.QueueEntry
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload entryEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.QueueEntry{}, err
		}
		if payload.EntryID != "" {
			entry.EntryID = payload.EntryID
		}
		if payload.BusinessID != "" {
			entry.BusinessID = payload.BusinessID
		}
		if payload.Status != "" {
			entry.Status = payload.Status
		}
		if payload.Position != 0 {
			entry.Position = payload.Position
		}
		if payload.JoinedAt != nil {
			entry.JoinedAt = *payload.JoinedAt
		}
		if payload.CalledAt != nil {
			entry.CalledAt = payload.CalledAt
		}
		if payload.AttendedAt != nil {
			entry.AttendedAt = payload.AttendedAt
		}
		if payload.CompletedAt != nil {
			entry.CompletedAt = payload.CompletedAt
		}
		if payload.CancellationReason != nil {
			entry.CancellationReason = payload.CancellationReason
		}
		if payload.Version != 0 {
			entry.Version = payload.Version
		}
	}
	return entry, nil
}
