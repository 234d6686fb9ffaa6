package httpapi

import (
	"log"
	"net/http"
	"strings"

	"queueline/internal/auth"
	"queueline/internal/lifecycle"
	"queueline/internal/models"
	"queueline/internal/store"
)

type joinRequest struct {
	RequestID    string `json:"request_id" validate:"omitempty,uuid"`
	BusinessID   string `json:"business_id" validate:"required,uuid"`
	CustomerID   string `json:"customer_id" validate:"omitempty,max=64"`
	CustomerName string `json:"customer_name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,min=6,max=20"`
	Email        string `json:"email" validate:"omitempty,email"`
	PartySize    int    `json:"party_size" validate:"omitempty,min=1,max=100"`
	ServiceID    string `json:"service_id" validate:"omitempty,max=64"`
	Notes        string `json:"notes" validate:"max=500"`
}

type joinResponse struct {
	Entry       models.QueueEntry `json:"entry"`
	Live        models.LiveState  `json:"live"`
	AccessToken string            `json:"access_token,omitempty"`
}

type advanceEntryRequest struct {
	To              string `json:"to" validate:"required,oneof=called attending completed cancelled no_show"`
	Reason          string `json:"reason" validate:"max=500"`
	ExpectedVersion int    `json:"expected_version" validate:"min=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleJoin(w, r)
	case http.MethodGet:
		h.handleListEntries(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Join(r.Context(), lifecycle.JoinRequest{
		RequestID:    strings.TrimSpace(req.RequestID),
		BusinessID:   strings.TrimSpace(req.BusinessID),
		CustomerID:   strings.TrimSpace(req.CustomerID),
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        req.Email,
		PartySize:    req.PartySize,
		ServiceID:    strings.TrimSpace(req.ServiceID),
		Notes:        req.Notes,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	token, err := h.tokens.IssueCustomer(store.KindEntry, result.Entry.EntryID, result.Entry.BusinessID)
	if err != nil {
		log.Printf("customer token error entry_id=%s err=%v", result.Entry.EntryID, err)
	}

	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	writeJSON(w, status, joinResponse{Entry: result.Entry, Live: result.Live, AccessToken: token})
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromQuery(w, r)
	if !ok || !requireOperator(w, r, businessID) {
		return
	}

	var statuses []string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			statuses = append(statuses, strings.TrimSpace(status))
		}
	}

	entries, err := h.svc.ListEntries(r.Context(), businessID, statuses)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleEntryPaths(w http.ResponseWriter, r *http.Request) {
	entryID, rest := splitSubjectPath(r.URL.Path, "/api/queue/entries/")
	if entryID == "" || len(rest) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	switch {
	case len(rest) == 1 && rest[0] == "live":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleLiveState(w, r, entryID)
	case len(rest) == 1 && rest[0] == "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEntryEvents(w, r, entryID)
	case len(rest) == 2 && rest[0] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch rest[1] {
		case "advance":
			h.handleAdvanceEntry(w, r, entryID)
		case "self-cancel":
			h.handleSelfCancel(w, r, entryID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleLiveState(w http.ResponseWriter, r *http.Request, entryID string) {
	state, err := h.svc.LiveState(r.Context(), entryID)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleEntryEvents(w http.ResponseWriter, r *http.Request, entryID string) {
	scope, ok := operatorScope(w, r)
	if !ok {
		return
	}
	history, err := h.svc.EntryHistory(r.Context(), scope, entryID)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleAdvanceEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	scope, ok := operatorScope(w, r)
	if !ok {
		return
	}
	var req advanceEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.svc.AdvanceEntry(r.Context(), scope, lifecycle.AdvanceEntryRequest{
		EntryID:         entryID,
		To:              req.To,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleSelfCancel(w http.ResponseWriter, r *http.Request, entryID string) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	if !claims.Owns(store.KindEntry, entryID) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "token does not belong to this entry")
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.svc.SelfCancel(r.Context(), entryID, req.Reason)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// operatorScope requires an operator or super-admin token and returns the
// business it is confined to.
func operatorScope(w http.ResponseWriter, r *http.Request) (lifecycle.Scope, bool) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return lifecycle.Scope{}, false
	}
	if claims.Role != auth.RoleOperator && claims.Role != auth.RoleSuperAdmin {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "operator access required")
		return lifecycle.Scope{}, false
	}
	return lifecycle.Scope{BusinessID: claims.OperatorScope()}, true
}
