package observer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"queueline/internal/models"
)

type Fetcher interface {
	FetchLive(ctx context.Context, entryID string) (models.LiveState, error)
}

// Subscriber opens a change subscription for one entry. The returned channel
// yields a value per change notice and is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, entryID string) (<-chan struct{}, error)
}

// View is what a watcher displays. Position and wait keep their last live
// values once the entry has left the queue.
type View struct {
	EntryID              string
	Status               string
	Position             int64
	PeopleAhead          int
	EstimatedWaitMinutes int
	Live                 bool
}

type Options struct {
	PollInterval     time.Duration
	ResubscribeAfter time.Duration
	OnView           func(View)
}

type Observer struct {
	entryID    string
	fetcher    Fetcher
	subscriber Subscriber
	alerter    Alerter
	edges      EdgeDetector

	pollInterval     time.Duration
	resubscribeAfter time.Duration
	onView           func(View)

	mu   sync.Mutex
	view View
}

func New(entryID string, fetcher Fetcher, subscriber Subscriber, alerter Alerter, options Options) *Observer {
	if options.PollInterval <= 0 {
		options.PollInterval = 3 * time.Second
	}
	if options.ResubscribeAfter <= 0 {
		options.ResubscribeAfter = 30 * time.Second
	}
	return &Observer{
		entryID:          entryID,
		fetcher:          fetcher,
		subscriber:       subscriber,
		alerter:          alerter,
		pollInterval:     options.PollInterval,
		resubscribeAfter: options.ResubscribeAfter,
		onView:           options.OnView,
		view:             View{EntryID: entryID},
	}
}

func (o *Observer) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// Run watches the entry until ctx ends or the entry reaches a terminal status.
// It follows the subscription while one is open and polls otherwise.
func (o *Observer) Run(ctx context.Context) error {
	o.Refresh(ctx)
	for ctx.Err() == nil && !o.done() {
		if o.subscriber != nil {
			notices, err := o.subscriber.Subscribe(ctx, o.entryID)
			if err == nil {
				// Anything that changed while we were connecting.
				o.Refresh(ctx)
				o.follow(ctx, notices)
				if ctx.Err() != nil || o.done() {
					break
				}
				log.Printf("subscription closed entry_id=%s; polling", o.entryID)
			} else {
				log.Printf("subscribe error entry_id=%s err=%v; polling", o.entryID, err)
			}
		}
		o.poll(ctx)
	}
	return ctx.Err()
}

func (o *Observer) follow(ctx context.Context, notices <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notices:
			if !ok {
				return
			}
			o.Refresh(ctx)
			if o.done() {
				return
			}
		}
	}
}

// poll refreshes every interval until it is time to try subscribing again.
// Without a subscriber it polls until ctx ends.
func (o *Observer) poll(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	var resubscribe <-chan time.Time
	if o.subscriber != nil {
		timer := time.NewTimer(o.resubscribeAfter)
		defer timer.Stop()
		resubscribe = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-resubscribe:
			return
		case <-ticker.C:
			o.Refresh(ctx)
			if o.done() {
				return
			}
		}
	}
}

// Refresh re-fetches the live state and applies it. Fetching an unchanged
// state is a no-op.
func (o *Observer) Refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	state, err := o.fetcher.FetchLive(fetchCtx, o.entryID)
	cancel()
	if err != nil {
		log.Printf("fetch live state error entry_id=%s err=%v", o.entryID, err)
		return
	}
	o.apply(ctx, state)
}

func (o *Observer) apply(ctx context.Context, state models.LiveState) {
	o.mu.Lock()
	next := o.view
	next.Status = state.Status
	next.Live = state.Live
	if state.Live {
		next.Position = state.Position
		next.PeopleAhead = state.PeopleAhead
		next.EstimatedWaitMinutes = state.EstimatedWaitMinutes
	}
	changed := next != o.view
	o.view = next
	o.mu.Unlock()

	previous, edge := o.edges.Observe(state.Status)
	if edge && state.Status == models.EntryCalled {
		o.alerter.Alert(ctx, calledText(previous))
	}
	if changed && o.onView != nil {
		o.onView(next)
	}
}

func (o *Observer) done() bool {
	return models.IsEntryTerminal(o.edges.Last())
}

func calledText(previous string) string {
	if previous == models.EntryWaiting {
		return "It's your turn! Please proceed to the counter."
	}
	return fmt.Sprintf("You have been called (was %s).", previous)
}
