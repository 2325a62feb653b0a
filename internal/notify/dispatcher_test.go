package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/telehealth-provisioner/internal/appointments"
)

type mockEmailSender struct {
	mu     sync.Mutex
	sent   []EmailMessage
	failOn string // fail if To matches this
	panics bool
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.panics {
		panic("transport exploded")
	}
	if m.failOn != "" && msg.To == m.failOn {
		return errors.New("mock email error")
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

type recordedDelivery struct{ recipient, status string }

type mockRecorder struct {
	observed []recordedDelivery
}

func (m *mockRecorder) ObserveNotification(recipient, status string) {
	m.observed = append(m.observed, recordedDelivery{recipient, status})
}

func testAppointment() appointments.Appointment {
	return appointments.Appointment{
		ID:             uuid.MustParse("6f1c1d38-3f4e-4b8a-9a55-0c6ad2c0b001"),
		PatientName:    "Ada Lovelace",
		PatientEmail:   "ada@example.com",
		ClinicianName:  "Dr. Grace Hopper",
		ClinicianEmail: "grace@example.com",
		ScheduledAt:    time.Date(2026, 3, 2, 15, 3, 0, 0, time.UTC),
		Reason:         "follow-up <labs>",
		Status:         appointments.StatusConfirmed,
	}
}

func TestDispatcher_NotifiesBothParties(t *testing.T) {
	sender := &mockEmailSender{}
	rec := &mockRecorder{}
	d := NewDispatcher(sender, rec, nil)

	d.NotifyMeetingReady(context.Background(), testAppointment(), "https://provider/j/abc123")

	require.Len(t, sender.sent, 2)
	patient, clinician := sender.sent[0], sender.sent[1]

	assert.Equal(t, "ada@example.com", patient.To)
	assert.Contains(t, patient.Body, "https://provider/j/abc123")
	assert.Contains(t, patient.Body, "Your video visit with Dr. Grace Hopper is ready.")
	assert.Contains(t, patient.Body, "Monday, March 2 at 3:03 PM UTC")
	assert.Contains(t, patient.HTML, `href="https://provider/j/abc123"`)
	assert.Contains(t, patient.HTML, "follow-up &lt;labs&gt;", "html body is escaped")

	assert.Equal(t, "grace@example.com", clinician.To)
	assert.Equal(t, "Video visit with Ada Lovelace", clinician.Subject)
	assert.Contains(t, clinician.Body, "Your video visit with Ada Lovelace is ready.")

	assert.Equal(t, []recordedDelivery{{RecipientPatient, StatusSent}, {RecipientClinician, StatusSent}}, rec.observed)
}

func TestDispatcher_ClinicianFailureStillNotifiesPatient(t *testing.T) {
	sender := &mockEmailSender{failOn: "grace@example.com"}
	rec := &mockRecorder{}
	d := NewDispatcher(sender, rec, nil)

	d.NotifyMeetingReady(context.Background(), testAppointment(), "https://provider/j/abc123")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Equal(t, []recordedDelivery{{RecipientPatient, StatusSent}, {RecipientClinician, StatusFailed}}, rec.observed)
}

func TestDispatcher_PatientFailureStillNotifiesClinician(t *testing.T) {
	sender := &mockEmailSender{failOn: "ada@example.com"}
	d := NewDispatcher(sender, nil, nil)

	d.NotifyMeetingReady(context.Background(), testAppointment(), "https://provider/j/abc123")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "grace@example.com", sender.sent[0].To)
}

func TestDispatcher_UnknownClinicianEmail(t *testing.T) {
	sender := &mockEmailSender{}
	rec := &mockRecorder{}
	d := NewDispatcher(sender, rec, nil)

	appt := testAppointment()
	appt.ClinicianEmail = ""
	appt.ClinicianName = ""
	d.NotifyMeetingReady(context.Background(), appt, "https://provider/j/abc123")

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.Contains(sender.sent[0].Body, "your clinician"))
	assert.Equal(t, recordedDelivery{RecipientClinician, StatusSkipped}, rec.observed[1])
}

func TestDispatcher_RecoversSenderPanic(t *testing.T) {
	rec := &mockRecorder{}
	d := NewDispatcher(&mockEmailSender{panics: true}, rec, nil)

	assert.NotPanics(t, func() {
		d.NotifyMeetingReady(context.Background(), testAppointment(), "https://provider/j/abc123")
	})
	assert.Equal(t, []recordedDelivery{{RecipientPatient, StatusFailed}, {RecipientClinician, StatusFailed}}, rec.observed)
}

func TestDispatcher_NilSenderUsesStub(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	assert.NotPanics(t, func() {
		d.NotifyMeetingReady(context.Background(), testAppointment(), "https://provider/j/abc123")
	})
}
