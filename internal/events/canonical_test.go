package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type badEvent struct{}

func (badEvent) EventType() string { return "" }

type unversionedEvent struct{}

func (unversionedEvent) EventType() string { return "meeting.provisioned" }

type otherEvent struct{}

func (*otherEvent) EventType() string { return "meeting.cancelled.v1" }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	evt := MeetingProvisionedV1{
		AppointmentID:     "appt-1",
		MeetingID:         "meeting-1",
		ProviderSessionID: "abc123",
		JoinURL:           "https://provider/j/abc123",
		StartTime:         fixedNow,
		ProvisionedAt:     fixedNow,
	}
	env, err := NewEnvelope(evt.Aggregate(), "tick-1", evt, WithEventID(id))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if !env.OccurredAt.Equal(fixedNow) {
		t.Fatalf("unexpected occurred_at: %s", env.OccurredAt)
	}
	if env.EventType != "meeting.provisioned.v1" || env.SchemaVersion != 1 {
		t.Fatalf("unexpected type/version: %s v%d", env.EventType, env.SchemaVersion)
	}
	if env.Source != DefaultSource {
		t.Fatalf("unexpected source: %s", env.Source)
	}
	if env.Aggregate != "appointment:appt-1" || env.CorrelationID != "tick-1" {
		t.Fatalf("unexpected aggregate/correlation: %s %s", env.Aggregate, env.CorrelationID)
	}

	var decoded MeetingProvisionedV1
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ProviderSessionID != "abc123" || decoded.JoinURL != evt.JoinURL {
		t.Fatalf("unexpected decoded payload: %+v", decoded)
	}
}

func TestEnvelopeValidation(t *testing.T) {
	if _, err := NewEnvelope("", "", MeetingProvisionedV1{}); err == nil {
		t.Fatal("expected aggregate error")
	}
	if _, err := NewEnvelope("agg", "", nil); err == nil {
		t.Fatal("expected nil event error")
	}
	if _, err := NewEnvelope("agg", "", badEvent{}); err == nil {
		t.Fatal("expected event type error")
	}
	if _, err := NewEnvelope("agg", "", unversionedEvent{}); err == nil {
		t.Fatal("expected version suffix error")
	}
}

func TestEnvelopeOptions(t *testing.T) {
	target := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))
	env, err := NewEnvelope("agg", "", MeetingProvisionedV1{MeetingID: "x"},
		WithOccurredAt(target), WithSource("replay-tool"), WithEventID(uuid.Nil))
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if !env.OccurredAt.Equal(target) || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC occurred_at override, got %s", env.OccurredAt)
	}
	if env.Source != "replay-tool" {
		t.Fatalf("expected source override, got %s", env.Source)
	}
	if env.EventID == uuid.Nil {
		t.Fatal("nil id option must keep the generated id")
	}
}

func TestDecodeRejectsOtherType(t *testing.T) {
	env, err := NewEnvelope("agg", "", MeetingProvisionedV1{MeetingID: "x"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := env.Decode(&otherEvent{}); !errors.Is(err, ErrEventTypeMismatch) {
		t.Fatalf("expected ErrEventTypeMismatch, got %v", err)
	}
}
