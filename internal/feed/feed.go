package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"queueline/internal/store"
)

// Listener delivers raw notification payloads published on channel until ctx
// ends or the connection fails. ready is called once the subscription is live.
type Listener interface {
	Listen(ctx context.Context, channel string, ready func(), handle func(payload string)) error
}

type OutboxSource interface {
	ListRecentOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	RetryMin     time.Duration
	RetryMax     time.Duration
	Now          func() time.Time
}

// Feed turns committed changes into store.Change notices. It prefers the
// LISTEN channel and falls back to polling the outbox while that is down.
// Delivery is at-least-once: a change may be published by both paths.
type Feed struct {
	listener     Listener
	outbox       OutboxSource
	publish      func(store.Change)
	pollInterval time.Duration
	batchSize    int
	retryMin     time.Duration
	retryMax     time.Duration
	now          func() time.Time

	mu     sync.Mutex
	cursor time.Time
}

func New(listener Listener, outbox OutboxSource, publish func(store.Change), options Options) *Feed {
	if options.PollInterval <= 0 {
		options.PollInterval = 3 * time.Second
	}
	if options.BatchSize <= 0 {
		options.BatchSize = 100
	}
	if options.RetryMin <= 0 {
		options.RetryMin = time.Second
	}
	if options.RetryMax < options.RetryMin {
		options.RetryMax = 30 * time.Second
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Feed{
		listener:     listener,
		outbox:       outbox,
		publish:      publish,
		pollInterval: options.PollInterval,
		batchSize:    options.BatchSize,
		retryMin:     options.RetryMin,
		retryMax:     options.RetryMax,
		now:          options.Now,
	}
}

// Run blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.mu.Lock()
	if f.cursor.IsZero() {
		f.cursor = f.now()
	}
	f.mu.Unlock()

	backoff := f.retryMin
	for ctx.Err() == nil {
		var err error
		if f.listener != nil {
			started := time.Now()
			err = f.listener.Listen(ctx, store.ChangeChannel, func() {
				log.Printf("change feed listening channel=%s", store.ChangeChannel)
				f.PollOnce(ctx)
			}, f.handleNotification)
			if ctx.Err() != nil {
				return
			}
			if time.Since(started) > f.retryMax {
				backoff = f.retryMin
			}
			log.Printf("change feed listen error err=%v; polling for %s", err, backoff)
		}
		f.pollFor(ctx, backoff)
		backoff *= 2
		if backoff > f.retryMax {
			backoff = f.retryMax
		}
	}
}

func (f *Feed) handleNotification(payload string) {
	var change store.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		log.Printf("change feed decode error payload=%q err=%v", payload, err)
		return
	}
	f.publish(change)
}

// pollFor polls the outbox every interval until d has passed. Without a
// listener it never returns before ctx ends.
func (f *Feed) pollFor(ctx context.Context, d time.Duration) {
	f.PollOnce(ctx)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if f.listener != nil {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			f.PollOnce(ctx)
		}
	}
}

// PollOnce publishes every outbox event newer than the cursor.
func (f *Feed) PollOnce(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		events, err := f.outbox.ListRecentOutboxEvents(pollCtx, f.cursor, f.batchSize)
		cancel()
		if err != nil {
			log.Printf("change feed poll error err=%v", err)
			return
		}
		for _, event := range events {
			f.publish(store.ChangeFromOutbox(event))
			f.cursor = event.CreatedAt
		}
		if len(events) < f.batchSize {
			return
		}
	}
}
