package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"queueline/internal/models"
	"queueline/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type JoinRequest struct {
	RequestID    string
	BusinessID   string
	CustomerID   string
	CustomerName string
	Phone        string
	Email        string
	PartySize    int
	ServiceID    string
	Notes        string
}

type JoinResult struct {
	Entry   models.QueueEntry
	Live    models.LiveState
	Created bool
}

type AdvanceEntryRequest struct {
	EntryID         string
	To              string
	Reason          string
	ExpectedVersion int
}

type EntryHistory struct {
	Events   []store.LifecycleEvent `json:"events"`
	Verified bool                   `json:"verified"`
}

func (s *Service) Join(ctx context.Context, req JoinRequest) (result JoinResult, err error) {
	ctx, span := startSpan(ctx, "Join", attribute.String("business_id", req.BusinessID))
	defer func() { endSpan(span, err) }()

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.CustomerName == "" {
		return JoinResult{}, fmt.Errorf("%w: customer_name is required", store.ErrValidation)
	}
	if req.Phone == "" {
		return JoinResult{}, fmt.Errorf("%w: phone is required", store.ErrValidation)
	}
	if req.PartySize == 0 {
		req.PartySize = 1
	}
	if req.PartySize < 0 {
		return JoinResult{}, fmt.Errorf("%w: party_size must be positive", store.ErrValidation)
	}

	entry, created, err := s.store.CreateEntry(ctx, store.JoinInput{
		RequestID:    req.RequestID,
		BusinessID:   req.BusinessID,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        strings.TrimSpace(req.Email),
		PartySize:    req.PartySize,
		ServiceID:    req.ServiceID,
		Notes:        strings.TrimSpace(req.Notes),
		JoinedAt:     s.now(),
	})
	if err != nil {
		return JoinResult{}, err
	}

	live, err := s.liveState(ctx, entry)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Entry: entry, Live: live, Created: created}, nil
}

func (s *Service) AdvanceEntry(ctx context.Context, scope Scope, req AdvanceEntryRequest) (entry models.QueueEntry, err error) {
	ctx, span := startSpan(ctx, "AdvanceEntry", attribute.String("entry_id", req.EntryID), attribute.String("to", req.To))
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetEntry(ctx, req.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !scope.allows(current.BusinessID) {
		return models.QueueEntry{}, store.ErrAccessDenied
	}
	if !store.ValidEntryTransition(current.Status, req.To) {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}
	reason := strings.TrimSpace(req.Reason)
	if models.IsEntryCancellation(req.To) && reason == "" {
		return models.QueueEntry{}, store.ErrReasonRequired
	}

	return s.store.TransitionEntry(ctx, store.EntryTransitionInput{
		EntryID:         current.EntryID,
		From:            current.Status,
		To:              req.To,
		Reason:          reason,
		ExpectedVersion: req.ExpectedVersion,
		OccurredAt:      s.now(),
	})
}

func (s *Service) SelfCancel(ctx context.Context, entryID, reason string) (entry models.QueueEntry, err error) {
	ctx, span := startSpan(ctx, "SelfCancel", attribute.String("entry_id", entryID))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.QueueEntry{}, store.ErrReasonRequired
	}

	current, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if current.Status != models.EntryWaiting {
		return models.QueueEntry{}, store.ErrNotWaiting
	}

	entry, err = s.store.TransitionEntry(ctx, store.EntryTransitionInput{
		EntryID:    entryID,
		From:       models.EntryWaiting,
		To:         models.EntryCancelled,
		Reason:     reason,
		OccurredAt: s.now(),
	})
	if errors.Is(err, store.ErrStaleState) {
		return models.QueueEntry{}, store.ErrNotWaiting
	}
	return entry, err
}

func (s *Service) LiveState(ctx context.Context, entryID string) (state models.LiveState, err error) {
	ctx, span := startSpan(ctx, "LiveState", attribute.String("entry_id", entryID))
	defer func() { endSpan(span, err) }()

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.LiveState{}, err
	}
	return s.liveState(ctx, entry)
}

func (s *Service) liveState(ctx context.Context, entry models.QueueEntry) (models.LiveState, error) {
	if entry.Status != models.EntryWaiting {
		return models.FrozenLiveState(entry), nil
	}
	ahead, err := s.store.CountWaitingAhead(ctx, entry.BusinessID, entry.Position)
	if err != nil {
		return models.LiveState{}, err
	}
	return models.WaitingLiveState(entry, ahead, s.minutesFor(ctx, entry.BusinessID)), nil
}

func (s *Service) minutesFor(ctx context.Context, businessID string) int {
	business, err := s.store.GetBusiness(ctx, businessID)
	if err != nil || business.AvgServiceMinutes == nil || *business.AvgServiceMinutes <= 0 {
		return s.serviceMinutes
	}
	return *business.AvgServiceMinutes
}

func (s *Service) GetEntry(ctx context.Context, scope Scope, entryID string) (models.QueueEntry, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !scope.allows(entry.BusinessID) {
		return models.QueueEntry{}, store.ErrAccessDenied
	}
	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, businessID string, statuses []string) ([]models.QueueEntry, error) {
	return s.store.ListEntries(ctx, businessID, statuses)
}

func (s *Service) EntryHistory(ctx context.Context, scope Scope, entryID string) (EntryHistory, error) {
	if _, err := s.GetEntry(ctx, scope, entryID); err != nil {
		return EntryHistory{}, err
	}
	events, err := s.store.ListLifecycleEvents(ctx, entryID)
	if err != nil {
		return EntryHistory{}, err
	}
	return EntryHistory{Events: events, Verified: store.VerifyChain(events) == nil}, nil
}
