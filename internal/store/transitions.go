package store

import "queueline/internal/models"

var entryTransitions = map[string][]string{
	models.EntryWaiting:   {models.EntryCalled, models.EntryCancelled, models.EntryNoShow},
	models.EntryCalled:    {models.EntryAttending, models.EntryCancelled, models.EntryNoShow},
	models.EntryAttending: {models.EntryCompleted, models.EntryCancelled, models.EntryNoShow},
}

// Cancellation is not part of this map; it has its own operation.
var reservationAdvances = map[string][]string{
	models.ReservationPending:   {models.ReservationConfirmed},
	models.ReservationConfirmed: {models.ReservationArrived},
	models.ReservationArrived:   {models.ReservationSeated},
	models.ReservationSeated:    {models.ReservationCompleted},
}

var reservationCancellable = []string{models.ReservationPending, models.ReservationConfirmed}

func ValidEntryTransition(from, to string) bool {
	return contains(entryTransitions[from], to)
}

func ValidReservationAdvance(from, to string) bool {
	return contains(reservationAdvances[from], to)
}

func ReservationCancellable(from string) bool {
	return contains(reservationCancellable, from)
}

// EntryTimestampColumn names the column a transition into status stamps, if any.
func EntryTimestampColumn(status string) string {
	switch status {
	case models.EntryCalled:
		return "called_at"
	case models.EntryAttending:
		return "attended_at"
	case models.EntryCompleted:
		return "completed_at"
	}
	return ""
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
