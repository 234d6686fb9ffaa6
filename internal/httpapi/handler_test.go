package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"queueline/internal/auth"
	"queueline/internal/lifecycle"
	"queueline/internal/models"
	"queueline/internal/store"
)

const (
	businessID    = "22222222-2222-2222-2222-222222222222"
	otherBusiness = "99999999-9999-9999-9999-999999999999"
	entryID       = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	reservationID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

type fakeStore struct {
	createEntryFn       func(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error)
	getEntryFn          func(ctx context.Context, entryID string) (models.QueueEntry, error)
	countAheadFn        func(ctx context.Context, businessID string, position int64) (int, error)
	listEntriesFn       func(ctx context.Context, businessID string, statuses []string) ([]models.QueueEntry, error)
	transitionEntryFn   func(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error)
	eventsFn            func(ctx context.Context, subjectID string) ([]store.LifecycleEvent, error)
	createReservationFn func(ctx context.Context, input store.ReservationInput) (models.Reservation, bool, error)
	getReservationFn    func(ctx context.Context, reservationID string) (models.Reservation, error)
	listReservationsFn  func(ctx context.Context, businessID string, from, to time.Time) ([]models.Reservation, error)
	transitionResFn     func(ctx context.Context, input store.ReservationTransitionInput) (models.Reservation, error)
	getBusinessFn       func(ctx context.Context, businessID string) (models.Business, error)
	setOpenFn           func(ctx context.Context, businessID string, open bool) (models.Business, error)
	replaceWindowsFn    func(ctx context.Context, businessID string, windows []models.ScheduleWindow) ([]models.ScheduleWindow, error)
	withinFn            func(ctx context.Context, businessID, date, clock string) (bool, error)
	outboxFn            func(ctx context.Context, businessID string, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) CreateEntry(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error) {
	if f.createEntryFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.createEntryFn(ctx, input)
}

func (f fakeStore) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	if f.getEntryFn == nil {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return f.getEntryFn(ctx, entryID)
}

func (f fakeStore) CountWaitingAhead(ctx context.Context, businessID string, position int64) (int, error) {
	if f.countAheadFn == nil {
		return 0, nil
	}
	return f.countAheadFn(ctx, businessID, position)
}

func (f fakeStore) ListEntries(ctx context.Context, businessID string, statuses []string) ([]models.QueueEntry, error) {
	if f.listEntriesFn == nil {
		return nil, nil
	}
	return f.listEntriesFn(ctx, businessID, statuses)
}

func (f fakeStore) TransitionEntry(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error) {
	if f.transitionEntryFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.transitionEntryFn(ctx, input)
}

func (f fakeStore) ListLifecycleEvents(ctx context.Context, subjectID string) ([]store.LifecycleEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, subjectID)
}

func (f fakeStore) CreateReservation(ctx context.Context, input store.ReservationInput) (models.Reservation, bool, error) {
	if f.createReservationFn == nil {
		return models.Reservation{}, false, nil
	}
	return f.createReservationFn(ctx, input)
}

func (f fakeStore) GetReservation(ctx context.Context, reservationID string) (models.Reservation, error) {
	if f.getReservationFn == nil {
		return models.Reservation{}, store.ErrReservationNotFound
	}
	return f.getReservationFn(ctx, reservationID)
}

func (f fakeStore) ListReservations(ctx context.Context, businessID string, from, to time.Time) ([]models.Reservation, error) {
	if f.listReservationsFn == nil {
		return nil, nil
	}
	return f.listReservationsFn(ctx, businessID, from, to)
}

func (f fakeStore) TransitionReservation(ctx context.Context, input store.ReservationTransitionInput) (models.Reservation, error) {
	if f.transitionResFn == nil {
		return models.Reservation{}, nil
	}
	return f.transitionResFn(ctx, input)
}

func (f fakeStore) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	if f.getBusinessFn == nil {
		return models.Business{BusinessID: businessID, IsReservationOpen: true}, nil
	}
	return f.getBusinessFn(ctx, businessID)
}

func (f fakeStore) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	return []models.Business{{BusinessID: businessID, Name: "Kopi Kenangan"}}, nil
}

func (f fakeStore) SetReservationOpen(ctx context.Context, businessID string, open bool) (models.Business, error) {
	if f.setOpenFn == nil {
		return models.Business{BusinessID: businessID, IsReservationOpen: open}, nil
	}
	return f.setOpenFn(ctx, businessID, open)
}

func (f fakeStore) ListScheduleWindows(ctx context.Context, businessID string) ([]models.ScheduleWindow, error) {
	return nil, nil
}

func (f fakeStore) ReplaceScheduleWindows(ctx context.Context, businessID string, windows []models.ScheduleWindow) ([]models.ScheduleWindow, error) {
	if f.replaceWindowsFn == nil {
		return windows, nil
	}
	return f.replaceWindowsFn(ctx, businessID, windows)
}

func (f fakeStore) IsWithinScheduleWindow(ctx context.Context, businessID, date, clock string) (bool, error) {
	if f.withinFn == nil {
		return true, nil
	}
	return f.withinFn(ctx, businessID, date, clock)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, businessID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, businessID, after, limit)
}

func (f fakeStore) ListRecentOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	return nil, nil
}

func (f fakeStore) DeleteOutboxBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

var testIssuer = auth.NewIssuer("test-secret", time.Hour)

func newTestServer(st store.Store) http.Handler {
	svc := lifecycle.NewService(st, nil, lifecycle.Options{})
	return AuthMiddleware(testIssuer, NewHandler(svc, testIssuer).Routes())
}

func operatorToken(t *testing.T, business string) string {
	t.Helper()
	token, err := testIssuer.Issue(auth.Claims{Role: auth.RoleOperator, BusinessID: business})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func customerToken(t *testing.T, kind, subjectID string) string {
	t.Helper()
	token, err := testIssuer.IssueCustomer(kind, subjectID, businessID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(h http.Handler, method, target, token string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return errResp.Error.Code
}

func waitingEntry() models.QueueEntry {
	return models.QueueEntry{
		EntryID:      entryID,
		BusinessID:   businessID,
		CustomerName: "Rina",
		Phone:        "08123456789",
		Status:       models.EntryWaiting,
		Position:     4,
		Version:      1,
	}
}

func TestJoinQueueSuccess(t *testing.T) {
	st := fakeStore{
		createEntryFn: func(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error) {
			entry := waitingEntry()
			entry.CustomerName = input.CustomerName
			entry.PartySize = input.PartySize
			return entry, true, nil
		},
		countAheadFn: func(ctx context.Context, businessID string, position int64) (int, error) {
			return 2, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries", "", map[string]interface{}{
		"business_id":   businessID,
		"customer_name": "Rina",
		"phone":         "08123456789",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var body joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Live.Position != 3 || body.Live.EstimatedWaitMinutes != 30 || !body.Live.Live {
		t.Fatalf("unexpected live state: %+v", body.Live)
	}
	if body.Entry.PartySize != 1 {
		t.Fatalf("expected default party size 1, got %d", body.Entry.PartySize)
	}
	claims, err := testIssuer.Verify(body.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if !claims.Owns(store.KindEntry, entryID) {
		t.Fatalf("expected token bound to entry, got %+v", claims)
	}
}

func TestJoinQueueReplayReturnsOK(t *testing.T) {
	st := fakeStore{
		createEntryFn: func(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error) {
			return waitingEntry(), false, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries", "", map[string]interface{}{
		"request_id":    "11111111-1111-1111-1111-111111111111",
		"business_id":   businessID,
		"customer_name": "Rina",
		"phone":         "08123456789",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestJoinQueueMissingFields(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodPost, "/api/queue/entries", "", map[string]interface{}{
		"business_id": businessID,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", code)
	}
}

func TestJoinQueueUnknownBusiness(t *testing.T) {
	st := fakeStore{
		createEntryFn: func(ctx context.Context, input store.JoinInput) (models.QueueEntry, bool, error) {
			return models.QueueEntry{}, false, store.ErrBusinessNotFound
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries", "", map[string]interface{}{
		"business_id":   businessID,
		"customer_name": "Rina",
		"phone":         "08123456789",
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestLiveStateIsPublic(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodGet, "/api/queue/entries/"+entryID+"/live", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var state models.LiveState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if state.Position != 1 || state.PeopleAhead != 0 {
		t.Fatalf("unexpected live state: %+v", state)
	}
}

func TestLiveStateFrozenAfterCall(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			entry := waitingEntry()
			entry.Status = models.EntryCalled
			return entry, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodGet, "/api/queue/entries/"+entryID+"/live", "", nil)
	var state models.LiveState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if state.Live || state.Status != models.EntryCalled {
		t.Fatalf("expected frozen state, got %+v", state)
	}
}

func TestLiveStateInvalidID(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodGet, "/api/queue/entries/not-a-uuid/live", "", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestAdvanceEntryRequiresToken(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/advance", "", map[string]interface{}{"to": "called"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAdvanceEntrySuccess(t *testing.T) {
	var got store.EntryTransitionInput
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
		transitionEntryFn: func(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error) {
			got = input
			entry := waitingEntry()
			entry.Status = input.To
			entry.Version = 2
			return entry, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/advance", operatorToken(t, businessID), map[string]interface{}{
		"to":               "called",
		"expected_version": 1,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got.From != models.EntryWaiting || got.To != models.EntryCalled || got.ExpectedVersion != 1 {
		t.Fatalf("unexpected transition input: %+v", got)
	}
}

func TestAdvanceEntryOtherBusinessDenied(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/advance", operatorToken(t, otherBusiness), map[string]interface{}{"to": "called"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestAdvanceEntryInvalidTransition(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/advance", operatorToken(t, businessID), map[string]interface{}{"to": "completed"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}
}

func TestAdvanceEntryNoShowNeedsReason(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/advance", operatorToken(t, businessID), map[string]interface{}{"to": "no_show"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "reason_required" {
		t.Fatalf("expected reason_required, got %s", code)
	}
}

func TestAdvanceEntryStaleVersion(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
		transitionEntryFn: func(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrStaleState
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/advance", operatorToken(t, businessID), map[string]interface{}{
		"to":               "called",
		"expected_version": 7,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "stale_state" {
		t.Fatalf("expected stale_state, got %s", code)
	}
}

func TestSelfCancelByOwner(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			return waitingEntry(), nil
		},
		transitionEntryFn: func(ctx context.Context, input store.EntryTransitionInput) (models.QueueEntry, error) {
			if input.To != models.EntryCancelled || input.Reason != "running late" {
				t.Fatalf("unexpected transition input: %+v", input)
			}
			entry := waitingEntry()
			entry.Status = models.EntryCancelled
			entry.CancellationReason = &input.Reason
			return entry, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/self-cancel", customerToken(t, store.KindEntry, entryID), map[string]interface{}{"reason": "running late"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSelfCancelRejectsForeignToken(t *testing.T) {
	h := newTestServer(fakeStore{})

	otherEntry := "cccccccc-cccc-cccc-cccc-cccccccccccc"
	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/self-cancel", customerToken(t, store.KindEntry, otherEntry), map[string]interface{}{"reason": "running late"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestSelfCancelAfterCall(t *testing.T) {
	st := fakeStore{
		getEntryFn: func(ctx context.Context, id string) (models.QueueEntry, error) {
			entry := waitingEntry()
			entry.Status = models.EntryCalled
			return entry, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/queue/entries/"+entryID+"/actions/self-cancel", customerToken(t, store.KindEntry, entryID), map[string]interface{}{"reason": "running late"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "not_waiting" {
		t.Fatalf("expected not_waiting, got %s", code)
	}
}

func TestListEntriesPassesStatusFilter(t *testing.T) {
	var gotStatuses []string
	st := fakeStore{
		listEntriesFn: func(ctx context.Context, business string, statuses []string) ([]models.QueueEntry, error) {
			gotStatuses = statuses
			return []models.QueueEntry{waitingEntry()}, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodGet, "/api/queue/entries?business_id="+businessID+"&status=waiting,called", operatorToken(t, businessID), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(gotStatuses) != 2 || gotStatuses[0] != "waiting" || gotStatuses[1] != "called" {
		t.Fatalf("unexpected statuses: %v", gotStatuses)
	}
}

func reservationPayload() map[string]interface{} {
	return map[string]interface{}{
		"business_id":      businessID,
		"customer_name":    "Budi",
		"phone":            "08123456789",
		"email":            "budi@example.com",
		"party_size":       4,
		"reservation_date": "2024-06-03",
		"reservation_time": "19:00",
	}
}

func TestRequestReservationCreated(t *testing.T) {
	st := fakeStore{
		createReservationFn: func(ctx context.Context, input store.ReservationInput) (models.Reservation, bool, error) {
			return models.Reservation{
				ReservationID: reservationID,
				BusinessID:    input.BusinessID,
				Date:          input.Date,
				Time:          input.Time,
				Status:        models.ReservationPending,
			}, true, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/reservations", "", reservationPayload())
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var body reservationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Reservation.Status != models.ReservationPending || body.AccessToken == "" {
		t.Fatalf("unexpected response: %+v", body)
	}
}

func TestRequestReservationAdmissionDenied(t *testing.T) {
	st := fakeStore{
		withinFn: func(ctx context.Context, businessID, date, clock string) (bool, error) {
			return false, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/reservations", "", reservationPayload())
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "admission_denied" {
		t.Fatalf("expected admission_denied, got %s", code)
	}
}

func TestRequestReservationClosed(t *testing.T) {
	st := fakeStore{
		getBusinessFn: func(ctx context.Context, id string) (models.Business, error) {
			return models.Business{BusinessID: id}, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/reservations", "", reservationPayload())
	if code := decodeErrorCode(t, resp); code != "reservations_closed" {
		t.Fatalf("expected reservations_closed, got %s", code)
	}
}

func TestRequestReservationBadTime(t *testing.T) {
	h := newTestServer(fakeStore{})

	payload := reservationPayload()
	payload["reservation_time"] = "7pm"
	resp := doRequest(h, http.MethodPost, "/api/reservations", "", payload)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestGetReservationByOwner(t *testing.T) {
	st := fakeStore{
		getReservationFn: func(ctx context.Context, id string) (models.Reservation, error) {
			return models.Reservation{ReservationID: id, BusinessID: businessID, Status: models.ReservationPending}, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodGet, "/api/reservations/"+reservationID, customerToken(t, store.KindReservation, reservationID), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	resp = doRequest(h, http.MethodGet, "/api/reservations/"+reservationID, customerToken(t, store.KindEntry, entryID), nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for foreign customer, got %d", resp.Code)
	}
}

func TestCancelReservationAfterArrival(t *testing.T) {
	st := fakeStore{
		getReservationFn: func(ctx context.Context, id string) (models.Reservation, error) {
			return models.Reservation{ReservationID: id, BusinessID: businessID, Status: models.ReservationArrived}, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPost, "/api/reservations/"+reservationID+"/actions/cancel", operatorToken(t, businessID), map[string]interface{}{"reason": "closed early"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestAdvanceReservationRejectsCancelTarget(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodPost, "/api/reservations/"+reservationID+"/actions/advance", operatorToken(t, businessID), map[string]interface{}{"to": "cancelled"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestReplaceScheduleWindowsRejectsInvertedWindow(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodPut, "/api/schedule-windows", operatorToken(t, businessID), map[string]interface{}{
		"business_id": businessID,
		"windows": []map[string]interface{}{
			{"day_of_week": 1, "start_time": "21:00", "end_time": "09:00"},
		},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestBusinessSettingsToggle(t *testing.T) {
	var got bool
	st := fakeStore{
		setOpenFn: func(ctx context.Context, id string, open bool) (models.Business, error) {
			got = open
			return models.Business{BusinessID: id, IsReservationOpen: open}, nil
		},
	}
	h := newTestServer(st)

	resp := doRequest(h, http.MethodPut, "/api/business-settings", operatorToken(t, businessID), map[string]interface{}{
		"business_id":         businessID,
		"is_reservation_open": false,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got {
		t.Fatalf("expected reservations closed")
	}
}

func TestAdminBusinessesSuperAdminOnly(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodGet, "/api/admin/businesses", operatorToken(t, businessID), nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}

	admin, err := testIssuer.Issue(auth.Claims{Role: auth.RoleSuperAdmin})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	resp = doRequest(h, http.MethodGet, "/api/admin/businesses", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestEventsRequireBusinessAccess(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodGet, "/api/events?business_id="+businessID, operatorToken(t, otherBusiness), nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	h := newTestServer(fakeStore{})

	resp := doRequest(h, http.MethodGet, "/api/queue/entries?business_id="+businessID, "not-a-jwt", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}
