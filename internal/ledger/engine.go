package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fundtrace/internal/domain"
	"fundtrace/internal/events"
)

// Engine enforces the donation, settlement and utilization state machines.
// Every mutation of a donation's or project's cumulative spend runs under the
// keyed locks and inside one store unit of work.
type Engine struct {
	store  domain.LedgerStore
	locks  *keyLock
	now    func() time.Time
	logger zerolog.Logger
	events events.Publisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPublisher sets where committed changes are announced.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// New builds an Engine over store.
func New(store domain.LedgerStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		locks:  newKeyLock(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: zerolog.Nop(),
		events: events.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// publish runs after commit. Delivery failures are logged, never returned:
// the ledger change already happened.
func (e *Engine) publish(ctx context.Context, evs ...events.Event) {
	for _, ev := range evs {
		if err := e.events.Publish(ctx, ev); err != nil {
			e.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("event publish failed")
		}
	}
}

func (e *Engine) event(t events.Type) events.Event {
	return events.New(t, e.now())
}

// asInvalidTarget turns a missing reference entity into ErrInvalidTarget.
func asInvalidTarget(err error, what string, id int64) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrInvalidTarget)
	}
	return err
}
