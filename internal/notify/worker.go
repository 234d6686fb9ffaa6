package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultSubject  = "Reservation confirmed"
	defaultTemplate = "Hi {customer_name}, your reservation for {party_size} on {reservation_date} at {reservation_time} is confirmed. Reference: {reservation_id}."
)

// OutboxPruner is the slice of the store the cleanup task needs.
type OutboxPruner interface {
	DeleteOutboxBefore(ctx context.Context, before time.Time) (int64, error)
}

type WorkerConfig struct {
	From            string
	Template        string
	OutboxRetention time.Duration
}

type Worker struct {
	provider  Provider
	pruner    OutboxPruner
	from      string
	template  string
	retention time.Duration
	now       func() time.Time
}

func NewWorker(provider Provider, pruner OutboxPruner, cfg WorkerConfig) *Worker {
	template := cfg.Template
	if template == "" {
		template = defaultTemplate
	}
	retention := cfg.OutboxRetention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Worker{
		provider:  provider,
		pruner:    pruner,
		from:      cfg.From,
		template:  template,
		retention: retention,
		now:       time.Now,
	}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReservationConfirmation, w.HandleConfirmation)
	mux.HandleFunc(TypeOutboxCleanup, w.HandleOutboxCleanup)
}

// HandleConfirmation sends one confirmation email. Provider errors are
// returned so asynq retries them; malformed payloads are not retried.
func (w *Worker) HandleConfirmation(ctx context.Context, task *asynq.Task) error {
	var payload ConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode confirmation payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.Email) == "" {
		log.Printf("confirmation skipped reservation_id=%s reason=no_email", payload.ReservationID)
		return nil
	}

	message := Message{
		From:      w.from,
		Recipient: payload.Email,
		Subject:   defaultSubject,
		Body:      renderTemplate(w.template, payload),
	}
	if err := w.provider.Send(ctx, message); err != nil {
		log.Printf("confirmation send error reservation_id=%s err=%v", payload.ReservationID, err)
		return err
	}
	log.Printf("confirmation sent reservation_id=%s to=%s", payload.ReservationID, payload.Email)
	return nil
}

func (w *Worker) HandleOutboxCleanup(ctx context.Context, task *asynq.Task) error {
	if w.pruner == nil {
		return nil
	}
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.pruner.DeleteOutboxBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup outbox: %w", err)
	}
	log.Printf("outbox cleanup before=%s deleted=%d", cutoff.Format(time.RFC3339), deleted)
	return nil
}

func renderTemplate(template string, payload ConfirmationPayload) string {
	partySize := payload.PartySize
	if partySize <= 0 {
		partySize = 1
	}
	replacer := strings.NewReplacer(
		"{customer_name}", payload.CustomerName,
		"{party_size}", strconv.Itoa(partySize),
		"{reservation_date}", payload.Date,
		"{reservation_time}", payload.Time,
		"{reservation_id}", payload.ReservationID,
		"{business_id}", payload.BusinessID,
	)
	return replacer.Replace(template)
}
