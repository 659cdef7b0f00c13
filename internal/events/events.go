// Package events carries workflow domain events from the ledgers to
// downstream consumers such as the e-mail notifier.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEventType is returned by Decode for types this build does not know.
var ErrUnknownEventType = errors.New("events: unknown event type")

// Event is a versioned domain event.
type Event interface {
	EventType() string
}

// Envelope captures transport metadata for events.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp overrides the timestamp stored in microseconds.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if ts.IsZero() {
			return
		}
		e.TimestampMicros = ts.UTC().UnixMicro()
	}
}

// WithCorrelationID ties the event to the request that caused it.
func WithCorrelationID(id string) EnvelopeOption {
	return func(e *Envelope) {
		e.CorrelationID = strings.TrimSpace(id)
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: event required")
	nowFunc             = time.Now
)

// NewEnvelope wraps evt for transport.
func NewEnvelope(aggregate string, evt Event, opts ...EnvelopeOption) (Envelope, error) {
	if strings.TrimSpace(aggregate) == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		Aggregate:       strings.TrimSpace(aggregate),
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Decode unmarshals the envelope payload into the typed event it names.
func (e Envelope) Decode() (Event, error) {
	var evt Event
	switch e.EventType {
	case TypeAppointmentBooked:
		evt = &AppointmentBookedV1{}
	case TypeAppointmentCancelled:
		evt = &AppointmentCancelledV1{}
	case TypePrescriptionCreated:
		evt = &PrescriptionCreatedV1{}
	case TypeOrderPlaced:
		evt = &OrderPlacedV1{}
	case TypeOrderStatusChanged:
		evt = &OrderStatusChangedV1{}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEventType, e.EventType)
	}
	if err := json.Unmarshal(e.Payload, evt); err != nil {
		return nil, fmt.Errorf("events: decode %s: %w", e.EventType, err)
	}
	return evt, nil
}

// Publisher delivers envelopes to a transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu        sync.Mutex
	envelopes []Envelope
}

func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
	return nil
}

// Envelopes returns a copy of everything published so far.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envelopes...)
}

// Types returns the event types published so far, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.envelopes))
	for i, env := range r.envelopes {
		out[i] = env.EventType
	}
	return out
}
