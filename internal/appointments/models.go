package appointments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an appointment or meeting does not exist.
	ErrNotFound = errors.New("appointments: not found")
	// ErrAlreadyLinked is returned when the appointment already references a meeting.
	ErrAlreadyLinked = errors.New("appointments: appointment already has a meeting")
)

// Status is the booking lifecycle of an appointment.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
)

// ParseStatus validates a stored status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusUnverified, StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("appointments: unknown status %q", raw)
}

// Provisionable reports whether a video meeting may be created for the status.
func (s Status) Provisionable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ProvisionableStatuses lists the statuses the eligibility scan selects.
func ProvisionableStatuses() []Status {
	return []Status{StatusPending, StatusConfirmed}
}

// Appointment is the read model the provisioning loop consumes.
type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
	PatientName    string     `json:"patient_name"`
	PatientEmail   string     `json:"patient_email"`
	PatientPhone   string     `json:"patient_phone"`
	ClinicianID    uuid.UUID  `json:"clinician_id"`
	ClinicianName  string     `json:"clinician_name"`
	ClinicianEmail string     `json:"clinician_email,omitempty"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	Reason         string     `json:"reason"`
	Status         Status     `json:"status"`
	MeetingID      *uuid.UUID `json:"meeting_id,omitempty"`
}

// HasMeeting reports whether a meeting has already been linked.
func (a *Appointment) HasMeeting() bool {
	return a.MeetingID != nil && *a.MeetingID != uuid.Nil
}

// EligibleAt reports whether the appointment falls inside the provisioning window.
// Both bounds are inclusive.
func (a *Appointment) EligibleAt(windowStart, windowEnd time.Time) bool {
	if !a.Status.Provisionable() || a.HasMeeting() {
		return false
	}
	return !a.ScheduledAt.Before(windowStart) && !a.ScheduledAt.After(windowEnd)
}

// MeetingStatus tracks a provisioned video session.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingCompleted MeetingStatus = "completed"
	MeetingFailed    MeetingStatus = "failed"
	MeetingCancelled MeetingStatus = "cancelled"
)

// ParseMeetingStatus validates a stored meeting status string.
func ParseMeetingStatus(raw string) (MeetingStatus, error) {
	s := MeetingStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case MeetingScheduled, MeetingActive, MeetingCompleted, MeetingFailed, MeetingCancelled:
		return s, nil
	}
	return "", fmt.Errorf("appointments: unknown meeting status %q", raw)
}

// Meeting is a provisioned video session owned by exactly one appointment.
type Meeting struct {
	ID                uuid.UUID       `json:"id"`
	AppointmentID     uuid.UUID       `json:"appointment_id"`
	ProviderSessionID string          `json:"provider_session_id"`
	JoinURL           string          `json:"join_url"`
	Passcode          string          `json:"passcode,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           *time.Time      `json:"end_time,omitempty"`
	Status            MeetingStatus   `json:"status"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (m *Meeting) prepareInsert(now time.Time) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = MeetingScheduled
	}
	if len(m.Metadata) == 0 {
		m.Metadata = json.RawMessage(`{}`)
	}
	m.CreatedAt = now
	m.UpdatedAt = now
}
