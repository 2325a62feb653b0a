package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSource identifies events emitted by the provisioner.
const DefaultSource = "telehealth-provisioner"

// CanonicalEvent is a versioned domain event. Types end in ".v<N>".
type CanonicalEvent interface {
	EventType() string
}

// Envelope is the wire form published to SQS.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	Source        string          `json:"source"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope.
type EnvelopeOption func(*Envelope)

// WithEventID overrides the generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithOccurredAt overrides the envelope time.
func WithOccurredAt(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.OccurredAt = ts.UTC()
		}
	}
}

func WithSource(source string) EnvelopeOption {
	return func(e *Envelope) {
		if s := strings.TrimSpace(source); s != "" {
			e.Source = s
		}
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: canonical event required")
	nowFunc             = time.Now
)

// ErrEventTypeMismatch is returned by Decode when the target type differs from the envelope.
var ErrEventTypeMismatch = errors.New("events: event type mismatch")

// NewEnvelope wraps evt for publishing.
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if strings.TrimSpace(aggregate) == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	version, err := schemaVersion(eventType)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		SchemaVersion: version,
		Source:        DefaultSource,
		Aggregate:     strings.TrimSpace(aggregate),
		OccurredAt:    nowFunc().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Decode unmarshals the payload into dst after checking the event type.
func (e Envelope) Decode(dst CanonicalEvent) error {
	if dst == nil {
		return errNilEvent
	}
	if want := dst.EventType(); want != e.EventType {
		return fmt.Errorf("%w: envelope %q, target %q", ErrEventTypeMismatch, e.EventType, want)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("events: decode %s payload: %w", e.EventType, err)
	}
	return nil
}

func schemaVersion(eventType string) (int, error) {
	if eventType == "" {
		return 0, errors.New("events: event type missing")
	}
	idx := strings.LastIndex(eventType, ".v")
	if idx < 0 {
		return 0, fmt.Errorf("events: event type %q has no version suffix", eventType)
	}
	v, err := strconv.Atoi(eventType[idx+2:])
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("events: event type %q has no version suffix", eventType)
	}
	return v, nil
}
