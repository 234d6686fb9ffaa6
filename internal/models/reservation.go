package models

import "time"

type Reservation struct {
	ReservationID      string    `json:"reservation_id"`
	BusinessID         string    `json:"business_id"`
	CustomerID         *string   `json:"customer_id,omitempty"`
	RequestID          string    `json:"request_id,omitempty"`
	CustomerName       string    `json:"customer_name"`
	Phone              string    `json:"phone"`
	Email              string    `json:"email,omitempty"`
	PartySize          int       `json:"party_size"`
	Date               string    `json:"reservation_date"`
	Time               string    `json:"reservation_time"`
	ServiceID          string    `json:"service_id,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Status             string    `json:"status"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

const (
	ReservationPending   = "pending"
	ReservationConfirmed = "confirmed"
	ReservationArrived   = "arrived"
	ReservationSeated    = "seated"
	ReservationCompleted = "completed"
	ReservationCancelled = "cancelled"
)

type Business struct {
	BusinessID        string    `json:"business_id"`
	Name              string    `json:"name"`
	IsReservationOpen bool      `json:"is_reservation_open"`
	AvgServiceMinutes *int      `json:"avg_service_minutes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
