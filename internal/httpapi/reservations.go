package httpapi

import (
	"log"
	"net/http"
	"strings"
	"time"

	"queueline/internal/lifecycle"
	"queueline/internal/models"
	"queueline/internal/store"
)

type reservationRequest struct {
	RequestID    string `json:"request_id" validate:"omitempty,uuid"`
	BusinessID   string `json:"business_id" validate:"required,uuid"`
	CustomerID   string `json:"customer_id" validate:"omitempty,max=64"`
	CustomerName string `json:"customer_name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,min=6,max=20"`
	Email        string `json:"email" validate:"omitempty,email"`
	PartySize    int    `json:"party_size" validate:"omitempty,min=1,max=100"`
	Date         string `json:"reservation_date" validate:"required,datetime=2006-01-02"`
	Time         string `json:"reservation_time" validate:"required,datetime=15:04"`
	ServiceID    string `json:"service_id" validate:"omitempty,max=64"`
	Notes        string `json:"notes" validate:"max=500"`
}

type reservationResponse struct {
	Reservation models.Reservation `json:"reservation"`
	AccessToken string             `json:"access_token,omitempty"`
}

type advanceReservationRequest struct {
	To              string `json:"to" validate:"required,oneof=confirmed arrived seated completed"`
	ExpectedVersion int    `json:"expected_version" validate:"min=0"`
}

func (h *Handler) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRequestReservation(w, r)
	case http.MethodGet:
		h.handleListReservations(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRequestReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reservation, created, err := h.svc.RequestReservation(r.Context(), lifecycle.ReservationRequest{
		RequestID:    strings.TrimSpace(req.RequestID),
		BusinessID:   strings.TrimSpace(req.BusinessID),
		CustomerID:   strings.TrimSpace(req.CustomerID),
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        req.Email,
		PartySize:    req.PartySize,
		Date:         req.Date,
		Time:         req.Time,
		ServiceID:    strings.TrimSpace(req.ServiceID),
		Notes:        req.Notes,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	token, err := h.tokens.IssueCustomer(store.KindReservation, reservation.ReservationID, reservation.BusinessID)
	if err != nil {
		log.Printf("customer token error reservation_id=%s err=%v", reservation.ReservationID, err)
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, reservationResponse{Reservation: reservation, AccessToken: token})
}

func (h *Handler) handleListReservations(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromQuery(w, r)
	if !ok || !requireOperator(w, r, businessID) {
		return
	}

	var from, to time.Time
	for _, param := range []struct {
		name   string
		target *time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := strings.TrimSpace(r.URL.Query().Get(param.name))
		if raw == "" {
			continue
		}
		parsed, err := models.ParseDate(raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", param.name+" must be YYYY-MM-DD")
			return
		}
		*param.target = parsed
	}

	reservations, err := h.svc.ListReservations(r.Context(), businessID, from, to)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) handleReservationPaths(w http.ResponseWriter, r *http.Request) {
	reservationID, rest := splitSubjectPath(r.URL.Path, "/api/reservations/")
	if reservationID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(reservationID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "reservation_id must be a UUID")
		return
	}

	switch {
	case len(rest) == 0:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetReservation(w, r, reservationID)
	case len(rest) == 2 && rest[0] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch rest[1] {
		case "advance":
			h.handleAdvanceReservation(w, r, reservationID)
		case "cancel":
			h.handleCancelReservation(w, r, reservationID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// reservationScope admits operators (confined to their business) and the
// customer the reservation token was issued to.
func reservationScope(w http.ResponseWriter, r *http.Request, reservationID string) (lifecycle.Scope, bool) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return lifecycle.Scope{}, false
	}
	if claims.Owns(store.KindReservation, reservationID) {
		return lifecycle.Scope{BusinessID: claims.BusinessID}, true
	}
	return operatorScope(w, r)
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request, reservationID string) {
	scope, ok := reservationScope(w, r, reservationID)
	if !ok {
		return
	}
	reservation, err := h.svc.GetReservation(r.Context(), scope, reservationID)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleAdvanceReservation(w http.ResponseWriter, r *http.Request, reservationID string) {
	scope, ok := operatorScope(w, r)
	if !ok {
		return
	}
	var req advanceReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reservation, err := h.svc.AdvanceReservation(r.Context(), scope, lifecycle.AdvanceReservationRequest{
		ReservationID:   reservationID,
		To:              req.To,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleCancelReservation(w http.ResponseWriter, r *http.Request, reservationID string) {
	scope, ok := reservationScope(w, r, reservationID)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reservation, err := h.svc.CancelReservation(r.Context(), scope, reservationID, req.Reason)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
