package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreEligibility(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	start, end := now.Add(-15*time.Minute), now.Add(5*time.Minute)

	store := NewMemoryStore()
	linkedID := uuid.New()
	soon := store.AddAppointment(Appointment{PatientName: "Ada", ScheduledAt: now.Add(3 * time.Minute), Status: StatusConfirmed})
	atStart := store.AddAppointment(Appointment{PatientName: "Edge start", ScheduledAt: start, Status: StatusPending})
	atEnd := store.AddAppointment(Appointment{PatientName: "Edge end", ScheduledAt: end, Status: StatusPending})
	store.AddAppointment(Appointment{PatientName: "Too old", ScheduledAt: now.Add(-20 * time.Minute), Status: StatusConfirmed})
	store.AddAppointment(Appointment{PatientName: "Too far", ScheduledAt: now.Add(6 * time.Minute), Status: StatusConfirmed})
	store.AddAppointment(Appointment{PatientName: "Cancelled", ScheduledAt: now, Status: StatusCancelled})
	store.AddAppointment(Appointment{PatientName: "Completed", ScheduledAt: now, Status: StatusCompleted})
	store.AddAppointment(Appointment{PatientName: "Unverified", ScheduledAt: now, Status: StatusUnverified})
	store.AddAppointment(Appointment{PatientName: "Linked", ScheduledAt: now, Status: StatusConfirmed, MeetingID: &linkedID})

	got, err := store.FindEligibleAppointments(ctx, start, end)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{soon.ID, atStart.ID, atEnd.ID}, ids)
}

func TestMemoryStoreCreateAndLink(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	appt := store.AddAppointment(Appointment{PatientName: "Ada", ScheduledAt: time.Now(), Status: StatusConfirmed})

	meeting := &Meeting{AppointmentID: appt.ID, ProviderSessionID: "abc123", JoinURL: "https://provider/j/abc123", StartTime: appt.ScheduledAt}
	id, err := store.CreateMeeting(ctx, meeting)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	stored, err := store.GetMeeting(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, MeetingScheduled, stored.Status)
	assert.JSONEq(t, `{}`, string(stored.Metadata))

	orphan, err := store.FindOrphanMeeting(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Equal(t, id, orphan.ID)

	require.NoError(t, store.LinkMeetingToAppointment(ctx, appt.ID, id))

	orphan, err = store.FindOrphanMeeting(ctx, appt.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan)

	err = store.LinkMeetingToAppointment(ctx, appt.ID, uuid.New())
	assert.True(t, errors.Is(err, ErrAlreadyLinked), "got %v", err)

	err = store.LinkMeetingToAppointment(ctx, uuid.New(), id)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	reloaded, err := store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.MeetingID)
	assert.Equal(t, id, *reloaded.MeetingID)
}

func TestMemoryStoreUpdateMeetingStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	appt := store.AddAppointment(Appointment{ScheduledAt: time.Now(), Status: StatusPending})
	id, err := store.CreateMeeting(ctx, &Meeting{AppointmentID: appt.ID, ProviderSessionID: "x"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateMeetingStatus(ctx, id, MeetingFailed))
	orphan, err := store.FindOrphanMeeting(ctx, appt.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan, "failed meetings are never reused")

	assert.Error(t, store.UpdateMeetingStatus(ctx, id, MeetingStatus("bogus")))
	assert.ErrorIs(t, store.UpdateMeetingStatus(ctx, uuid.New(), MeetingActive), ErrNotFound)
}
