package httpapi

import (
	"net/http"

	"queueline/internal/models"
)

type scheduleWindowPayload struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	IsActive  *bool  `json:"is_active"`
}

type replaceWindowsRequest struct {
	BusinessID string                  `json:"business_id" validate:"required,uuid"`
	Windows    []scheduleWindowPayload `json:"windows" validate:"dive"`
}

type businessSettingsRequest struct {
	BusinessID        string `json:"business_id" validate:"required,uuid"`
	IsReservationOpen *bool  `json:"is_reservation_open" validate:"required"`
}

func (h *Handler) handleScheduleWindows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		businessID, ok := businessIDFromQuery(w, r)
		if !ok || !requireOperator(w, r, businessID) {
			return
		}
		windows, err := h.svc.ListScheduleWindows(r.Context(), businessID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		if windows == nil {
			windows = []models.ScheduleWindow{}
		}
		writeJSON(w, http.StatusOK, windows)
	case http.MethodPut:
		var req replaceWindowsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if !requireOperator(w, r, req.BusinessID) {
			return
		}
		windows := make([]models.ScheduleWindow, 0, len(req.Windows))
		for _, payload := range req.Windows {
			active := true
			if payload.IsActive != nil {
				active = *payload.IsActive
			}
			windows = append(windows, models.ScheduleWindow{
				BusinessID: req.BusinessID,
				DayOfWeek:  payload.DayOfWeek,
				StartTime:  payload.StartTime,
				EndTime:    payload.EndTime,
				IsActive:   active,
			})
		}
		saved, err := h.svc.ReplaceScheduleWindows(r.Context(), req.BusinessID, windows)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleBusinessSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req businessSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOperator(w, r, req.BusinessID) {
		return
	}
	business, err := h.svc.SetReservationOpen(r.Context(), req.BusinessID, *req.IsReservationOpen)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, business)
}
