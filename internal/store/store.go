package store

import (
	"context"
	"encoding/json"
	"time"

	"queueline/internal/models"
)

type JoinInput struct {
	RequestID    string
	BusinessID   string
	CustomerID   string
	CustomerName string
	Phone        string
	Email        string
	PartySize    int
	ServiceID    string
	Notes        string
	JoinedAt     time.Time
}

// EntryTransitionInput moves an entry from From to To. The write only applies
// while the row still holds From (and ExpectedVersion, when non-zero).
type EntryTransitionInput struct {
	EntryID         string
	From            string
	To              string
	Reason          string
	ExpectedVersion int
	OccurredAt      time.Time
}

type ReservationInput struct {
	RequestID    string
	BusinessID   string
	CustomerID   string
	CustomerName string
	Phone        string
	Email        string
	PartySize    int
	Date         string
	Time         string
	ServiceID    string
	Notes        string
	CreatedAt    time.Time
}

type ReservationTransitionInput struct {
	ReservationID   string
	From            string
	To              string
	Reason          string
	ExpectedVersion int
	OccurredAt      time.Time
}

type EntryStore interface {
	CreateEntry(ctx context.Context, input JoinInput) (models.QueueEntry, bool, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error)
	CountWaitingAhead(ctx context.Context, businessID string, position int64) (int, error)
	ListEntries(ctx context.Context, businessID string, statuses []string) ([]models.QueueEntry, error)
	TransitionEntry(ctx context.Context, input EntryTransitionInput) (models.QueueEntry, error)
	ListLifecycleEvents(ctx context.Context, subjectID string) ([]LifecycleEvent, error)
}

type ReservationStore interface {
	CreateReservation(ctx context.Context, input ReservationInput) (models.Reservation, bool, error)
	GetReservation(ctx context.Context, reservationID string) (models.Reservation, error)
	ListReservations(ctx context.Context, businessID string, from, to time.Time) ([]models.Reservation, error)
	TransitionReservation(ctx context.Context, input ReservationTransitionInput) (models.Reservation, error)
}

type BusinessStore interface {
	GetBusiness(ctx context.Context, businessID string) (models.Business, error)
	ListBusinesses(ctx context.Context) ([]models.Business, error)
	SetReservationOpen(ctx context.Context, businessID string, open bool) (models.Business, error)
	ListScheduleWindows(ctx context.Context, businessID string) ([]models.ScheduleWindow, error)
	ReplaceScheduleWindows(ctx context.Context, businessID string, windows []models.ScheduleWindow) ([]models.ScheduleWindow, error)
	IsWithinScheduleWindow(ctx context.Context, businessID, date, clock string) (bool, error)
}

type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, businessID string, after time.Time, limit int) ([]OutboxEvent, error)
	ListRecentOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	DeleteOutboxBefore(ctx context.Context, before time.Time) (int64, error)
}

type Store interface {
	EntryStore
	ReservationStore
	BusinessStore
	OutboxStore
}

type OutboxEvent struct {
	EventID    string          `json:"event_id"`
	BusinessID string          `json:"business_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Change is the payload-free notice published for every committed state change.
type Change struct {
	Kind       string `json:"kind"`
	BusinessID string `json:"business_id"`
	SubjectID  string `json:"subject_id"`
}

const (
	KindEntry       = "queue_entry"
	KindReservation = "reservation"
	KindSchedule    = "schedule"
	KindBusiness    = "business"

	ChangeChannel = "queueline_changes"
)

// ChangeFromOutbox recovers the change notice from an outbox row so the polling
// path can publish the same shape as the notify path.
func ChangeFromOutbox(event OutboxEvent) Change {
	var payload struct {
		EntryID       string `json:"entry_id"`
		ReservationID string `json:"reservation_id"`
	}
	_ = json.Unmarshal(event.Payload, &payload)
	change := Change{BusinessID: event.BusinessID}
	switch {
	case payload.EntryID != "":
		change.Kind = KindEntry
		change.SubjectID = payload.EntryID
	case payload.ReservationID != "":
		change.Kind = KindReservation
		change.SubjectID = payload.ReservationID
	default:
		change.Kind = KindBusiness
	}
	return change
}
