package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"queueline/internal/auth"
	"queueline/internal/lifecycle"
	"queueline/internal/models"
	"queueline/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	svc    *lifecycle.Service
	tokens *auth.Issuer
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(svc *lifecycle.Service, tokens *auth.Issuer) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue/entries", h.handleEntries)
	mux.HandleFunc("/api/queue/entries/", h.handleEntryPaths)
	mux.HandleFunc("/api/reservations", h.handleReservations)
	mux.HandleFunc("/api/reservations/", h.handleReservationPaths)
	mux.HandleFunc("/api/schedule-windows", h.handleScheduleWindows)
	mux.HandleFunc("/api/business-settings", h.handleBusinessSettings)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/admin/businesses", h.handleAdminBusinesses)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	businessID, ok := businessIDFromQuery(w, r)
	if !ok || !requireOperator(w, r, businessID) {
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.svc.ListOutboxEvents(r.Context(), businessID, after, limit)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleAdminBusinesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	if claims.Role != auth.RoleSuperAdmin {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "super admin only")
		return
	}

	businesses, err := h.svc.ListBusinesses(r.Context())
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, businesses)
}

// splitSubjectPath parses "{id}/{rest...}" below prefix.
func splitSubjectPath(path, prefix string) (string, []string) {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return "", nil
	}
	parts := strings.Split(trimmed, "/")
	return parts[0], parts[1:]
}

func businessIDFromQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "business_id is required")
		return "", false
	}
	if !isValidUUID(businessID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "business_id must be a UUID")
		return "", false
	}
	return businessID, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if err := validate.Struct(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, models.ErrInvalidWindow):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrBusinessNotFound):
		return http.StatusNotFound, "business_not_found", "business not found"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrReservationNotFound):
		return http.StatusNotFound, "reservation_not_found", "reservation not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "status does not allow this action"
	case errors.Is(err, store.ErrStaleState):
		return http.StatusConflict, "stale_state", "status changed, reload and retry"
	case errors.Is(err, store.ErrNotWaiting):
		return http.StatusConflict, "not_waiting", "entry is no longer waiting"
	case errors.Is(err, store.ErrReasonRequired):
		return http.StatusBadRequest, "reason_required", "a cancellation reason is required"
	case errors.Is(err, store.ErrReservationsClosed):
		return http.StatusConflict, "reservations_closed", "this business is not accepting reservations"
	case errors.Is(err, store.ErrAdmissionDenied):
		return http.StatusConflict, "admission_denied", "not accepting reservations at this time"
	case errors.Is(err, store.ErrAdmissionUnavailable):
		return http.StatusServiceUnavailable, "admission_unavailable", "reservation availability could not be checked"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
