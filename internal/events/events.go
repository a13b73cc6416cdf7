package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a ledger or risk event. Types double as AMQP routing keys.
type Type string

const (
	DonationRecorded      Type = "donation.recorded"
	DonationSettled       Type = "donation.settled"
	DonationPaymentFailed Type = "donation.payment_failed"
	DonationRefunded      Type = "donation.refunded"
	SchoolSelected        Type = "project.school_selected"
	UtilizationRecorded   Type = "utilization.recorded"
	UtilizationApproved   Type = "utilization.approved"
	UtilizationRejected   Type = "utilization.rejected"
	TransparencyAttached  Type = "transparency.attached"
	TransparencyVerified  Type = "transparency.verified"
	TransparencyPublished Type = "transparency.published"
	RiskTierChanged       Type = "risk.tier_changed"
)

// Event is emitted after the change it describes has been committed.
type Event struct {
	ID            uuid.UUID      `json:"id"`
	Type          Type           `json:"type"`
	OccurredAt    time.Time      `json:"occurred_at"`
	DonorID       int64          `json:"donor_id,omitempty"`
	DonationID    int64          `json:"donation_id,omitempty"`
	ProjectID     int64          `json:"project_id,omitempty"`
	SchoolID      int64          `json:"school_id,omitempty"`
	StudentID     int64          `json:"student_id,omitempty"`
	UtilizationID int64          `json:"utilization_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// New stamps a fresh event.
func New(t Type, at time.Time) Event {
	return Event{ID: uuid.New(), Type: t, OccurredAt: at.UTC()}
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
