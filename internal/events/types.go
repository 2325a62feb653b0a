package events

import "time"

// MeetingProvisionedV1 is emitted after a meeting has been created and linked to its appointment.
type MeetingProvisionedV1 struct {
	AppointmentID     string     `json:"appointment_id"`
	MeetingID         string     `json:"meeting_id"`
	ClinicianID       string     `json:"clinician_id"`
	ProviderSessionID string     `json:"provider_session_id"`
	JoinURL           string     `json:"join_url"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	ProvisionedAt     time.Time  `json:"provisioned_at"`
	// Reused is true when an unlinked meeting from an earlier attempt was linked instead of creating a new session.
	Reused bool `json:"reused,omitempty"`
}

func (MeetingProvisionedV1) EventType() string { return "meeting.provisioned.v1" }

// Aggregate keys events by appointment.
func (e MeetingProvisionedV1) Aggregate() string { return "appointment:" + e.AppointmentID }
