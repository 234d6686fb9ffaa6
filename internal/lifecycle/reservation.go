package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"queueline/internal/models"
	"queueline/internal/store"

	"github.com/jinzhu/now"
	"go.opentelemetry.io/otel/attribute"
)

type ReservationRequest struct {
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
}

type AdvanceReservationRequest struct {
	ReservationID   string
	To              string
	ExpectedVersion int
}

func (s *Service) RequestReservation(ctx context.Context, req ReservationRequest) (reservation models.Reservation, created bool, err error) {
	ctx, span := startSpan(ctx, "RequestReservation", attribute.String("business_id", req.BusinessID))
	defer func() { endSpan(span, err) }()

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.CustomerName == "" {
		return models.Reservation{}, false, fmt.Errorf("%w: customer_name is required", store.ErrValidation)
	}
	if req.Phone == "" {
		return models.Reservation{}, false, fmt.Errorf("%w: phone is required", store.ErrValidation)
	}
	if req.PartySize == 0 {
		req.PartySize = 1
	}
	if req.PartySize < 0 {
		return models.Reservation{}, false, fmt.Errorf("%w: party_size must be positive", store.ErrValidation)
	}
	if _, err := models.ParseDate(req.Date); err != nil {
		return models.Reservation{}, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if _, err := models.ParseClock(req.Time); err != nil {
		return models.Reservation{}, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	business, err := s.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return models.Reservation{}, false, err
	}
	if !business.IsReservationOpen {
		return models.Reservation{}, false, store.ErrReservationsClosed
	}

	within, admissionErr := s.admission.IsWithinScheduleWindow(ctx, req.BusinessID, req.Date, req.Time)
	switch {
	case admissionErr != nil && s.failOpen:
		log.Printf("admission check unavailable business_id=%s date=%s time=%s err=%v; admitting", req.BusinessID, req.Date, req.Time, admissionErr)
	case admissionErr != nil:
		return models.Reservation{}, false, fmt.Errorf("%w: %v", store.ErrAdmissionUnavailable, admissionErr)
	case !within:
		return models.Reservation{}, false, store.ErrAdmissionDenied
	}

	return s.store.CreateReservation(ctx, store.ReservationInput{
		RequestID:    req.RequestID,
		BusinessID:   req.BusinessID,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        strings.TrimSpace(req.Email),
		PartySize:    req.PartySize,
		Date:         req.Date,
		Time:         req.Time,
		ServiceID:    req.ServiceID,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedAt:    s.now(),
	})
}

func (s *Service) AdvanceReservation(ctx context.Context, scope Scope, req AdvanceReservationRequest) (reservation models.Reservation, err error) {
	ctx, span := startSpan(ctx, "AdvanceReservation", attribute.String("reservation_id", req.ReservationID), attribute.String("to", req.To))
	defer func() { endSpan(span, err) }()

	current, err := s.GetReservation(ctx, scope, req.ReservationID)
	if err != nil {
		return models.Reservation{}, err
	}
	if !store.ValidReservationAdvance(current.Status, req.To) {
		return models.Reservation{}, store.ErrInvalidTransition
	}

	reservation, err = s.store.TransitionReservation(ctx, store.ReservationTransitionInput{
		ReservationID:   current.ReservationID,
		From:            current.Status,
		To:              req.To,
		ExpectedVersion: req.ExpectedVersion,
		OccurredAt:      s.now(),
	})
	if err != nil {
		return models.Reservation{}, err
	}

	if current.Status == models.ReservationPending && reservation.Status == models.ReservationConfirmed && reservation.Email != "" && s.sender != nil {
		if sendErr := s.sender.SendConfirmationEmail(ctx, reservation); sendErr != nil {
			log.Printf("confirmation dispatch error reservation_id=%s err=%v", reservation.ReservationID, sendErr)
		}
	}
	return reservation, nil
}

// CancelReservation is allowed for operators of the business (scope) and for the
// customer holding the reservation; callers establish which before calling.
func (s *Service) CancelReservation(ctx context.Context, scope Scope, reservationID, reason string) (reservation models.Reservation, err error) {
	ctx, span := startSpan(ctx, "CancelReservation", attribute.String("reservation_id", reservationID))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Reservation{}, store.ErrReasonRequired
	}

	current, err := s.GetReservation(ctx, scope, reservationID)
	if err != nil {
		return models.Reservation{}, err
	}
	if !store.ReservationCancellable(current.Status) {
		return models.Reservation{}, store.ErrInvalidTransition
	}

	return s.store.TransitionReservation(ctx, store.ReservationTransitionInput{
		ReservationID: current.ReservationID,
		From:          current.Status,
		To:            models.ReservationCancelled,
		Reason:        reason,
		OccurredAt:    s.now(),
	})
}

func (s *Service) GetReservation(ctx context.Context, scope Scope, reservationID string) (models.Reservation, error) {
	reservation, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return models.Reservation{}, err
	}
	if !scope.allows(reservation.BusinessID) {
		return models.Reservation{}, store.ErrAccessDenied
	}
	return reservation, nil
}

// ListReservations defaults to today through the end of the current week.
func (s *Service) ListReservations(ctx context.Context, businessID string, from, to time.Time) ([]models.Reservation, error) {
	current := now.With(s.now())
	if from.IsZero() {
		from = current.BeginningOfDay()
	}
	if to.IsZero() {
		to = now.With(from).EndOfWeek()
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to must not be before from", store.ErrValidation)
	}
	return s.store.ListReservations(ctx, businessID, from, to)
}
