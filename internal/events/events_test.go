package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	fan := Fanout{rec, nil, failingPublisher{err: boom}, Nop{}}

	err := fan.Publish(context.Background(), New(DonationSettled, time.Now()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined boom error, got %v", err)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != DonationSettled {
		t.Fatalf("recorder types = %v", got)
	}
}

type stubChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (s *stubChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	s.exchange = exchange
	s.key = key
	s.msg = msg
	return s.err
}

func (s *stubChannel) Close() error { return nil }

func TestAMQPPublisherRoutesByType(t *testing.T) {
	ch := &stubChannel{}
	p := newAMQPPublisher(ch, "fundtrace.events", zerolog.Nop())

	e := New(UtilizationApproved, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	e.UtilizationID = 9
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if ch.exchange != "fundtrace.events" || ch.key != "utilization.approved" {
		t.Fatalf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.MessageId != e.ID.String() {
		t.Fatalf("unexpected publishing %+v", ch.msg)
	}
	var decoded Event
	if err := json.Unmarshal(ch.msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.UtilizationID != 9 || decoded.Type != UtilizationApproved {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestAMQPPublisherWrapsError(t *testing.T) {
	boom := errors.New("channel closed")
	p := newAMQPPublisher(&stubChannel{err: boom}, "x", zerolog.Nop())
	if err := p.Publish(context.Background(), New(DonationRecorded, time.Now())); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
