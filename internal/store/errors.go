package store

import "errors"

var (
	ErrValidation           = errors.New("invalid request")
	ErrBusinessNotFound     = errors.New("business not found")
	ErrEntryNotFound        = errors.New("queue entry not found")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrStaleState           = errors.New("status changed concurrently")
	ErrNotWaiting           = errors.New("entry is no longer waiting")
	ErrReasonRequired       = errors.New("cancellation reason required")
	ErrReservationsClosed   = errors.New("reservations closed")
	ErrAdmissionDenied      = errors.New("not accepting reservations at this time")
	ErrAdmissionUnavailable = errors.New("admission check unavailable")
	ErrAccessDenied         = errors.New("access denied")
)
