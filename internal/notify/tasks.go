package notify

import (
	"encoding/json"

	"queueline/internal/models"

	"github.com/hibiken/asynq"
)

const (
	TypeReservationConfirmation = "reservation:confirmation"
	TypeOutboxCleanup           = "outbox:cleanup"
)

type ConfirmationPayload struct {
	ReservationID string `json:"reservation_id"`
	BusinessID    string `json:"business_id"`
	CustomerName  string `json:"customer_name"`
	Email         string `json:"email"`
	PartySize     int    `json:"party_size"`
	Date          string `json:"reservation_date"`
	Time          string `json:"reservation_time"`
}

func NewConfirmationTask(reservation models.Reservation) (*asynq.Task, error) {
	payload, err := json.Marshal(ConfirmationPayload{
		ReservationID: reservation.ReservationID,
		BusinessID:    reservation.BusinessID,
		CustomerName:  reservation.CustomerName,
		Email:         reservation.Email,
		PartySize:     reservation.PartySize,
		Date:          reservation.Date,
		Time:          reservation.Time,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReservationConfirmation, payload), nil
}

func NewCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeOutboxCleanup, nil)
}
