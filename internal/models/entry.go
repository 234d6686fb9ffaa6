package models

import "time"

type QueueEntry struct {
	EntryID            string     `json:"entry_id"`
	BusinessID         string     `json:"business_id"`
	CustomerID         *string    `json:"customer_id,omitempty"`
	RequestID          string     `json:"request_id,omitempty"`
	CustomerName       string     `json:"customer_name"`
	Phone              string     `json:"phone"`
	Email              string     `json:"email,omitempty"`
	PartySize          int        `json:"party_size"`
	ServiceID          string     `json:"service_id,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	Status             string     `json:"status"`
	Position           int64      `json:"position"`
	JoinedAt           time.Time  `json:"joined_at"`
	CalledAt           *time.Time `json:"called_at,omitempty"`
	AttendedAt         *time.Time `json:"attended_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	Version            int        `json:"version"`
}

const (
	EntryWaiting   = "waiting"
	EntryCalled    = "called"
	EntryAttending = "attending"
	EntryCompleted = "completed"
	EntryCancelled = "cancelled"
	EntryNoShow    = "no_show"
)

// LiveState is the read-derived view a customer watches while queued.
// Live is false once the entry has left waiting; Position then carries the
// stored sequence value and observers keep whatever they computed last.
type LiveState struct {
	EntryID              string `json:"entry_id"`
	BusinessID           string `json:"business_id"`
	Status               string `json:"status"`
	Live                 bool   `json:"live"`
	Position             int64  `json:"position"`
	PeopleAhead          int    `json:"people_ahead"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Version              int    `json:"version"`
}

func IsEntryCancellation(status string) bool {
	return status == EntryCancelled || status == EntryNoShow
}

func IsEntryTerminal(status string) bool {
	switch status {
	case EntryCompleted, EntryCancelled, EntryNoShow:
		return true
	}
	return false
}

// WaitingLiveState derives the live rank for a waiting entry from the number of
// waiting entries ahead of it.
func WaitingLiveState(entry QueueEntry, ahead, serviceMinutes int) LiveState {
	return LiveState{
		EntryID:              entry.EntryID,
		BusinessID:           entry.BusinessID,
		Status:               entry.Status,
		Live:                 true,
		Position:             int64(ahead) + 1,
		PeopleAhead:          ahead,
		EstimatedWaitMinutes: ahead * serviceMinutes,
		Version:              entry.Version,
	}
}

func FrozenLiveState(entry QueueEntry) LiveState {
	return LiveState{
		EntryID:    entry.EntryID,
		BusinessID: entry.BusinessID,
		Status:     entry.Status,
		Position:   entry.Position,
		Version:    entry.Version,
	}
}
