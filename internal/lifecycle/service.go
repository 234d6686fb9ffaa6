package lifecycle

import (
	"context"
	"time"

	"queueline/internal/models"
	"queueline/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultServiceMinutes = 15

var tracer = otel.Tracer("queueline/lifecycle")

// AdmissionChecker answers whether a reservation slot falls inside the business's
// active schedule windows. An error means the answer is unavailable.
type AdmissionChecker interface {
	IsWithinScheduleWindow(ctx context.Context, businessID, date, clock string) (bool, error)
}

type ConfirmationSender interface {
	SendConfirmationEmail(ctx context.Context, reservation models.Reservation) error
}

type Options struct {
	ServiceMinutes    int
	AdmissionFailOpen bool
	Admission         AdmissionChecker
	Now               func() time.Time
}

type Service struct {
	store          store.Store
	admission      AdmissionChecker
	sender         ConfirmationSender
	serviceMinutes int
	failOpen       bool
	now            func() time.Time
}

func NewService(st store.Store, sender ConfirmationSender, options Options) *Service {
	minutes := options.ServiceMinutes
	if minutes <= 0 {
		minutes = DefaultServiceMinutes
	}
	admission := options.Admission
	if admission == nil {
		admission = st
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:          st,
		admission:      admission,
		sender:         sender,
		serviceMinutes: minutes,
		failOpen:       options.AdmissionFailOpen,
		now:            now,
	}
}

// Scope restricts an operation to one business. An empty BusinessID means
// platform-wide access.
type Scope struct {
	BusinessID string
}

func (s Scope) allows(businessID string) bool {
	return s.BusinessID == "" || s.BusinessID == businessID
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lifecycle."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
