package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"queueline/internal/models"
	"queueline/internal/store"
)

// memStore keeps rows in maps and mirrors the compare-and-set semantics of the
// Postgres store.
type memStore struct {
	mu           sync.Mutex
	businesses   map[string]models.Business
	entries      map[string]models.QueueEntry
	reservations map[string]models.Reservation
	windows      map[string][]models.ScheduleWindow
	sequences    map[string]int64
	events       map[string][]store.LifecycleEvent
	outbox       []store.OutboxEvent
	nextID       int

	// beforeTransition runs just before a transition is applied, letting tests
	// simulate a concurrent writer.
	beforeTransition func()
	admissionErr     error
}

func newMemStore(businessIDs ...string) *memStore {
	st := &memStore{
		businesses:   map[string]models.Business{},
		entries:      map[string]models.QueueEntry{},
		reservations: map[string]models.Reservation{},
		windows:      map[string][]models.ScheduleWindow{},
		sequences:    map[string]int64{},
		events:       map[string][]store.LifecycleEvent{},
	}
	for _, id := range businessIDs {
		st.businesses[id] = models.Business{BusinessID: id, Name: "Biz " + id, IsReservationOpen: true}
	}
	return st
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) record(change store.Change, eventType string) {
	m.outbox = append(m.outbox, store.OutboxEvent{
		EventID:    m.id("evt"),
		BusinessID: change.BusinessID,
		Type:       eventType,
		CreatedAt:  time.Now().UTC(),
	})
	if change.SubjectID != "" {
		m.events[change.SubjectID] = append(m.events[change.SubjectID], store.LifecycleEvent{
			SubjectID: change.SubjectID,
			Seq:       len(m.events[change.SubjectID]) + 1,
			Type:      eventType,
		})
	}
}

func (m *memStore) CreateEntry(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if input.RequestID != "" {
		for _, entry := range m.entries {
			if entry.RequestID == input.RequestID {
				return entry, false, nil
			}
		}
	}
	if _, ok := m.businesses[input.BusinessID]; !ok {
		return models.QueueEntry{}, false, store.ErrBusinessNotFound
	}
	m.sequences[input.BusinessID]++
	entry := models.QueueEntry{
		EntryID:      m.id("entry"),
		BusinessID:   input.BusinessID,
		RequestID:    input.RequestID,
		CustomerName: input.CustomerName,
		Phone:        input.Phone,
		Email:        input.Email,
		PartySize:    input.PartySize,
		Status:       models.EntryWaiting,
		Position:     m.sequences[input.BusinessID],
		JoinedAt:     input.JoinedAt,
		Version:      1,
	}
	m.entries[entry.EntryID] = entry
	m.record(store.Change{Kind: store.KindEntry, BusinessID: entry.BusinessID, SubjectID: entry.EntryID}, "queue_entry.created")
	return entry, true, nil
}

func (m *memStore) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[entryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, nil
}

func (m *memStore) CountWaitingAhead(ctx context.Context, businessID string, position int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.entries {
		if entry.BusinessID == businessID && entry.Status == models.EntryWaiting && entry.Position < position {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ListEntries(ctx context.Context, businessID string, statuses []string) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []models.QueueEntry
	for _, entry := range m.entries {
		if entry.BusinessID != businessID {
			continue
		}
		if len(statuses) > 0 && !containsString(statuses, entry.Status) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

func (m *memStore) TransitionEntry(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error) {
	if m.beforeTransition != nil {
		m.beforeTransition()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if entry.Status != input.From || (input.ExpectedVersion > 0 && entry.Version != input.ExpectedVersion) {
		return models.QueueEntry{}, store.ErrStaleState
	}
	entry.Status = input.To
	entry.Version++
	at := input.OccurredAt
	switch input.To {
	case models.EntryCalled:
		if entry.CalledAt == nil {
			entry.CalledAt = &at
		}
	case models.EntryAttending:
		if entry.AttendedAt == nil {
			entry.AttendedAt = &at
		}
	case models.EntryCompleted:
		if entry.CompletedAt == nil {
			entry.CompletedAt = &at
		}
	}
	if models.IsEntryCancellation(input.To) {
		reason := input.Reason
		entry.CancellationReason = &reason
	}
	m.entries[entry.EntryID] = entry
	m.record(store.Change{Kind: store.KindEntry, BusinessID: entry.BusinessID, SubjectID: entry.EntryID}, "queue_entry."+entry.Status)
	return entry, nil
}

func (m *memStore) ListLifecycleEvents(ctx context.Context, subjectID string) ([]store.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.LifecycleEvent(nil), m.events[subjectID]...), nil
}

func (m *memStore) CreateReservation(ctx context.Context, input store.ReservationInput) (models.Reservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if input.RequestID != "" {
		for _, reservation := range m.reservations {
			if reservation.RequestID == input.RequestID {
				return reservation, false, nil
			}
		}
	}
	if _, ok := m.businesses[input.BusinessID]; !ok {
		return models.Reservation{}, false, store.ErrBusinessNotFound
	}
	reservation := models.Reservation{
		ReservationID: m.id("res"),
		BusinessID:    input.BusinessID,
		RequestID:     input.RequestID,
		CustomerName:  input.CustomerName,
		Phone:         input.Phone,
		Email:         input.Email,
		PartySize:     input.PartySize,
		Date:          input.Date,
		Time:          input.Time,
		Status:        models.ReservationPending,
		Version:       1,
		CreatedAt:     input.CreatedAt,
		UpdatedAt:     input.CreatedAt,
	}
	m.reservations[reservation.ReservationID] = reservation
	m.record(store.Change{Kind: store.KindReservation, BusinessID: reservation.BusinessID, SubjectID: reservation.ReservationID}, "reservation.created")
	return reservation, true, nil
}

func (m *memStore) GetReservation(ctx context.Context, reservationID string) (models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[reservationID]
	if !ok {
		return models.Reservation{}, store.ErrReservationNotFound
	}
	return reservation, nil
}

func (m *memStore) ListReservations(ctx context.Context, businessID string, from, to time.Time) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := from.Format(models.DateLayout), to.Format(models.DateLayout)
	var reservations []models.Reservation
	for _, reservation := range m.reservations {
		if reservation.BusinessID == businessID && reservation.Date >= lo && reservation.Date <= hi {
			reservations = append(reservations, reservation)
		}
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].Date+reservations[i].Time < reservations[j].Date+reservations[j].Time
	})
	return reservations, nil
}

func (m *memStore) TransitionReservation(ctx context.Context, input store.ReservationTransitionInput) (models.Reservation, error) {
	if m.beforeTransition != nil {
		m.beforeTransition()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[input.ReservationID]
	if !ok {
		return models.Reservation{}, store.ErrReservationNotFound
	}
	if reservation.Status != input.From || (input.ExpectedVersion > 0 && reservation.Version != input.ExpectedVersion) {
		return models.Reservation{}, store.ErrStaleState
	}
	reservation.Status = input.To
	reservation.Version++
	reservation.UpdatedAt = input.OccurredAt
	if input.To == models.ReservationCancelled {
		reason := input.Reason
		reservation.CancellationReason = &reason
	}
	m.reservations[reservation.ReservationID] = reservation
	m.record(store.Change{Kind: store.KindReservation, BusinessID: reservation.BusinessID, SubjectID: reservation.ReservationID}, "reservation."+reservation.Status)
	return reservation, nil
}

func (m *memStore) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	business, ok := m.businesses[businessID]
	if !ok {
		return models.Business{}, store.ErrBusinessNotFound
	}
	return business, nil
}

func (m *memStore) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var businesses []models.Business
	for _, business := range m.businesses {
		businesses = append(businesses, business)
	}
	sort.Slice(businesses, func(i, j int) bool { return businesses[i].Name < businesses[j].Name })
	return businesses, nil
}

func (m *memStore) SetReservationOpen(ctx context.Context, businessID string, open bool) (models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	business, ok := m.businesses[businessID]
	if !ok {
		return models.Business{}, store.ErrBusinessNotFound
	}
	business.IsReservationOpen = open
	m.businesses[businessID] = business
	return business, nil
}

func (m *memStore) ListScheduleWindows(ctx context.Context, businessID string) ([]models.ScheduleWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScheduleWindow(nil), m.windows[businessID]...), nil
}

func (m *memStore) ReplaceScheduleWindows(ctx context.Context, businessID string, windows []models.ScheduleWindow) ([]models.ScheduleWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[businessID]; !ok {
		return nil, store.ErrBusinessNotFound
	}
	saved := make([]models.ScheduleWindow, 0, len(windows))
	for _, window := range windows {
		window.BusinessID = businessID
		window.WindowID = m.id("win")
		saved = append(saved, window)
	}
	m.windows[businessID] = saved
	return saved, nil
}

func (m *memStore) IsWithinScheduleWindow(ctx context.Context, businessID, date, clock string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admissionErr != nil {
		return false, m.admissionErr
	}
	return models.WithinWindows(m.windows[businessID], date, clock)
}

func (m *memStore) ListOutboxEvents(ctx context.Context, businessID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []store.OutboxEvent
	for _, event := range m.outbox {
		if event.BusinessID == businessID && event.CreatedAt.After(after) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (m *memStore) ListRecentOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []store.OutboxEvent
	for _, event := range m.outbox {
		if event.CreatedAt.After(after) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (m *memStore) DeleteOutboxBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []store.OutboxEvent
	var deleted int64
	for _, event := range m.outbox {
		if event.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	m.outbox = kept
	return deleted, nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
