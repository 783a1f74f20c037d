package eventdb

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/railpay/paymentsd/internal/core/engine"
)

// Sink bridges the engine's event stream into the log. Emit runs under
// the engine lock, so it only hands the event to a buffered channel;
// Run writes rows on its own goroutine. When the buffer is full the
// event is dropped and counted rather than stalling settlement.
type Sink struct {
	store  *Store
	epoch  func() uint64
	events chan engine.Event

	dropped atomic.Uint64
}

// NewSink wires a store to an engine epoch source. The epoch is sampled
// by the writer goroutine, never inside Emit, because the engine lock
// is held there. The buffer bounds how far the writer may fall behind
// before events are shed.
func NewSink(store *Store, epoch func() uint64, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	return &Sink{
		store:  store,
		epoch:  epoch,
		events: make(chan engine.Event, buffer),
	}
}

// Emit implements engine.EventSink.
func (s *Sink) Emit(ev engine.Event) {
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Run drains the buffer into the store until ctx is cancelled. Queued
// events are flushed before returning.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-s.events:
			s.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-s.events:
					s.write(ev)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Sink) write(ev engine.Event) {
	if err := s.store.Append(context.Background(), s.epoch(), ev); err != nil {
		log.Printf("eventdb: append %s failed: %v", ev.Kind(), err)
	}
}

// Dropped reports how many events were shed because the buffer was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}
