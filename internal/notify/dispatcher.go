package notify

import (
	"context"
	"fmt"
	"log"

	"queueline/internal/models"

	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher hands confirmation emails to the notification worker through
// a Redis-backed asynq queue.
type AsynqDispatcher struct {
	client   Enqueuer
	maxRetry int
}

func NewAsynqDispatcher(client Enqueuer, maxRetry int) *AsynqDispatcher {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &AsynqDispatcher{client: client, maxRetry: maxRetry}
}

func (d *AsynqDispatcher) SendConfirmationEmail(ctx context.Context, reservation models.Reservation) error {
	task, err := NewConfirmationTask(reservation)
	if err != nil {
		return fmt.Errorf("build confirmation task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue("default"),
		asynq.MaxRetry(d.maxRetry),
		asynq.TaskID("confirmation:"+reservation.ReservationID),
	)
	if err != nil {
		return fmt.Errorf("enqueue confirmation: %w", err)
	}
	log.Printf("confirmation enqueued reservation_id=%s task_id=%s queue=%s", reservation.ReservationID, info.ID, info.Queue)
	return nil
}

// LogDispatcher stands in when no Redis is configured.
type LogDispatcher struct{}

func (LogDispatcher) SendConfirmationEmail(ctx context.Context, reservation models.Reservation) error {
	log.Printf("confirmation email reservation_id=%s to=%s date=%s time=%s", reservation.ReservationID, reservation.Email, reservation.Date, reservation.Time)
	return nil
}
