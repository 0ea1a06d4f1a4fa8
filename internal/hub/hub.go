// Package hub fans out board events to connected stream clients.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 64

// Event names carried on the stream.
const (
	EventInit           = "init"
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskDeleted    = "task-deleted"
	EventAgentCreated   = "agent-created"
	EventAgentUpdated   = "agent-updated"
	EventMessageCreated = "message-created"
	EventAgentsReloaded = "agents-reloaded"
	EventDemoStarted    = "demo-started"
)

// Envelope is one named event with its payload already encoded, so a
// publish marshals once no matter how many clients are connected.
type Envelope struct {
	Event string
	Data  []byte
}

// SSE renders the envelope as a server-sent-events frame.
func (e Envelope) SSE() []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Event, e.Data))
}

// HeartbeatFrame is the comment frame sent to keep idle connections
// open through proxies.
var HeartbeatFrame = []byte(":heartbeat\n\n")

// Subscriber is one connected client.
type Subscriber struct {
	id   string
	demo bool
	ch   chan Envelope
}

// ID returns the subscriber's connection id.
func (s *Subscriber) ID() string { return s.id }

// Demo reports whether this client asked for demo-mode task movement.
func (s *Subscriber) Demo() bool { return s.demo }

// Ch returns the channel to receive envelopes on.
func (s *Subscriber) Ch() <-chan Envelope { return s.ch }

// Hub is an in-process broadcaster. Every subscriber receives every
// published event; there is no topic filtering.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	logger *slog.Logger
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscriber),
		logger: logger,
	}
}

// Subscribe registers a new client. The returned channel has a bounded
// buffer; slow consumers miss events rather than stalling the publisher.
func (h *Hub) Subscribe(demo bool) *Subscriber {
	sub := &Subscriber{
		id:   uuid.NewString(),
		demo: demo,
		ch:   make(chan Envelope, defaultBufferSize),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Info("client connected", "client_id", sub.id, "demo", demo, "clients", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Calling it
// more than once for the same subscriber is safe.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[sub.id]
	if ok {
		delete(h.subs, sub.id)
		close(sub.ch)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.logger.Info("client disconnected", "client_id", sub.id, "clients", count)
	}
}

// Publish encodes the payload and delivers it to every subscriber.
// Delivery is non-blocking: a full buffer drops the event for that
// subscriber only.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode event payload", "event", event, "error", err)
		return
	}
	env := Envelope{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- env:
		default:
			h.logger.Warn("dropping event for slow client", "event", event, "client_id", sub.id)
		}
	}
}

// Send delivers an envelope to a single subscriber, non-blocking. A
// subscriber that already unsubscribed is skipped.
func (h *Hub) Send(sub *Subscriber, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subs[sub.id]; !ok {
		return nil
	}
	select {
	case sub.ch <- Envelope{Event: event, Data: data}:
	default:
		h.logger.Warn("dropping event for slow client", "event", event, "client_id", sub.id)
	}
	return nil
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
