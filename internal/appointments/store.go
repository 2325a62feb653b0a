package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads appointments and records provisioned meetings.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// NewPostgresStore creates a store over a pgx pool (or any DB implementation).
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const appointmentColumns = `
	a.id, a.patient_id, a.patient_name, a.patient_email, a.patient_phone,
	a.clinician_id, COALESCE(c.name, ''), COALESCE(c.email, ''),
	a.scheduled_at, a.reason, a.status, a.meeting_id`

const meetingColumns = `
	m.id, m.appointment_id, m.provider_session_id, m.join_url, COALESCE(m.passcode, ''),
	m.start_time, m.end_time, m.status, m.metadata, m.created_at, m.updated_at`

// FindEligibleAppointments returns pending or confirmed appointments scheduled inside
// [windowStart, windowEnd] that have no meeting yet.
func (s *PostgresStore) FindEligibleAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		LEFT JOIN clinicians c ON c.id = a.clinician_id
		WHERE a.status IN ('pending', 'confirmed')
		  AND a.scheduled_at BETWEEN $1 AND $2
		  AND a.meeting_id IS NULL`,
		windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: find eligible: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// GetAppointment loads a single appointment with its clinician contact.
func (s *PostgresStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		LEFT JOIN clinicians c ON c.id = a.clinician_id
		WHERE a.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: get appointment: %w", err)
	}
	defer rows.Close()
	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, ErrNotFound
	}
	return &appts[0], nil
}

// CreateMeeting inserts a meeting row and returns its id.
func (s *PostgresStore) CreateMeeting(ctx context.Context, m *Meeting) (uuid.UUID, error) {
	if m == nil {
		return uuid.Nil, errors.New("appointments: create meeting: nil meeting")
	}
	m.prepareInsert(s.now())

	_, err := s.db.Exec(ctx, `
		INSERT INTO meetings (id, appointment_id, provider_session_id, join_url, passcode, start_time, end_time, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.AppointmentID, m.ProviderSessionID, m.JoinURL, m.Passcode,
		m.StartTime.UTC(), toPGNullableTime(m.EndTime), string(m.Status), []byte(m.Metadata),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("appointments: create meeting: %w", err)
	}
	return m.ID, nil
}

// LinkMeetingToAppointment sets appointments.meeting_id when it is still empty.
func (s *PostgresStore) LinkMeetingToAppointment(ctx context.Context, appointmentID, meetingID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET meeting_id = $1, updated_at = $2
		WHERE id = $3 AND meeting_id IS NULL`, meetingID, s.now(), appointmentID)
	if err != nil {
		return fmt.Errorf("appointments: link meeting: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var existing pgtype.UUID
	err = s.db.QueryRow(ctx, `SELECT meeting_id FROM appointments WHERE id = $1`, appointmentID).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("appointments: link meeting %s: %w", appointmentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("appointments: link meeting: %w", err)
	}
	return fmt.Errorf("appointments: link meeting %s: %w", appointmentID, ErrAlreadyLinked)
}

// FindOrphanMeeting returns the newest non-failed meeting created for the appointment
// that no appointment references. It returns nil, nil when there is none.
func (s *PostgresStore) FindOrphanMeeting(ctx context.Context, appointmentID uuid.UUID) (*Meeting, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+meetingColumns+`
		FROM meetings m
		WHERE m.appointment_id = $1
		  AND m.status <> 'failed'
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.meeting_id = m.id)
		ORDER BY m.created_at DESC LIMIT 1`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("appointments: find orphan meeting: %w", err)
	}
	defer rows.Close()
	meetings, err := scanMeetings(rows)
	if err != nil {
		return nil, err
	}
	if len(meetings) == 0 {
		return nil, nil
	}
	return &meetings[0], nil
}

// GetMeeting loads a meeting by id.
func (s *PostgresStore) GetMeeting(ctx context.Context, id uuid.UUID) (*Meeting, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+meetingColumns+`
		FROM meetings m
		WHERE m.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: get meeting: %w", err)
	}
	defer rows.Close()
	meetings, err := scanMeetings(rows)
	if err != nil {
		return nil, err
	}
	if len(meetings) == 0 {
		return nil, ErrNotFound
	}
	return &meetings[0], nil
}

// UpdateMeetingStatus records a lifecycle change reported by a reconciliation job.
func (s *PostgresStore) UpdateMeetingStatus(ctx context.Context, id uuid.UUID, status MeetingStatus) error {
	if _, err := ParseMeetingStatus(string(status)); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE meetings SET status = $1, updated_at = $2
		WHERE id = $3`, string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("appointments: update meeting status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: update meeting status %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var a Appointment
		var patientID, meetingID pgtype.UUID
		var status string
		err := rows.Scan(
			&a.ID, &patientID, &a.PatientName, &a.PatientEmail, &a.PatientPhone,
			&a.ClinicianID, &a.ClinicianName, &a.ClinicianEmail,
			&a.ScheduledAt, &a.Reason, &status, &meetingID,
		)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		a.Status = parsed
		a.PatientID = fromPGUUID(patientID)
		a.MeetingID = fromPGUUID(meetingID)
		a.ScheduledAt = a.ScheduledAt.UTC()
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanMeetings(rows pgx.Rows) ([]Meeting, error) {
	var result []Meeting
	for rows.Next() {
		var m Meeting
		var endTime pgtype.Timestamptz
		var status string
		var metadata []byte
		err := rows.Scan(
			&m.ID, &m.AppointmentID, &m.ProviderSessionID, &m.JoinURL, &m.Passcode,
			&m.StartTime, &endTime, &status, &metadata, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan meeting: %w", err)
		}
		parsed, err := ParseMeetingStatus(status)
		if err != nil {
			return nil, err
		}
		m.Status = parsed
		if endTime.Valid {
			t := endTime.Time.UTC()
			m.EndTime = &t
		}
		m.Metadata = append([]byte(nil), metadata...)
		result = append(result, m)
	}
	return result, rows.Err()
}

func fromPGUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	out := uuid.UUID(id.Bytes)
	return &out
}

func toPGNullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}
