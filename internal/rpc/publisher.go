package rpc

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/railpay/paymentsd/internal/core/engine"
)

// EventPublisher fans committed engine events out to subscribers. The
// engine publishes through this interface so it never depends on the
// websocket implementation.
type EventPublisher interface {
	engine.EventSink

	// SubscriberCount returns the number of connected subscribers.
	SubscriberCount() int
}

// eventMessage is the wire shape of a pushed event.
type eventMessage struct {
	Type    string       `json:"type"`
	Kind    string       `json:"kind"`
	Epoch   uint64       `json:"epoch"`
	Payload engine.Event `json:"payload"`
}

// Publisher bridges the engine's event stream to the websocket hub.
// Emit runs under the engine lock, so events are queued and marshalled
// on Run's goroutine; slow consumption sheds events rather than
// stalling settlement.
type Publisher struct {
	hub    *WebSocketServer
	epoch  func() uint64
	events chan engine.Event

	dropped atomic.Uint64
}

// NewPublisher wires a websocket hub to an engine epoch source.
func NewPublisher(hub *WebSocketServer, epoch func() uint64, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		hub:    hub,
		epoch:  epoch,
		events: make(chan engine.Event, buffer),
	}
}

// Emit implements engine.EventSink.
func (p *Publisher) Emit(ev engine.Event) {
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Run broadcasts queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-p.events:
			p.broadcast(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Publisher) broadcast(ev engine.Event) {
	data, err := json.Marshal(eventMessage{
		Type:    "event",
		Kind:    ev.Kind(),
		Epoch:   p.epoch(),
		Payload: ev,
	})
	if err != nil {
		log.Printf("publisher: marshal %s failed: %v", ev.Kind(), err)
		return
	}
	p.hub.Broadcast(ev.Kind(), data)
}

// Dropped reports how many events were shed because the buffer was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) SubscriberCount() int {
	return p.hub.SubscriberCount()
}

// NoOpPublisher discards events, for tests and subscription-less runs.
type NoOpPublisher struct{}

func NewNoOpPublisher() *NoOpPublisher { return &NoOpPublisher{} }

func (*NoOpPublisher) Emit(ev engine.Event) {}
func (*NoOpPublisher) SubscriberCount() int { return 0 }

var _ EventPublisher = (*Publisher)(nil)
var _ EventPublisher = (*NoOpPublisher)(nil)
