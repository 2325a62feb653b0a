package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store for local runs without Postgres.
type MemoryStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]Appointment
	meetings     map[uuid.UUID]Meeting
	now          func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[uuid.UUID]Appointment),
		meetings:     make(map[uuid.UUID]Meeting),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AddAppointment inserts or replaces an appointment. A nil ID is assigned.
func (s *MemoryStore) AddAppointment(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.ScheduledAt = a.ScheduledAt.UTC()
	s.mu.Lock()
	s.appointments[a.ID] = a
	s.mu.Unlock()
	return a
}

// Meetings returns a snapshot of all stored meetings ordered by creation time.
func (s *MemoryStore) Meetings() []Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) FindEligibleAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Appointment
	for _, a := range s.appointments {
		if a.EligibleAt(windowStart, windowEnd) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) CreateMeeting(_ context.Context, m *Meeting) (uuid.UUID, error) {
	if m == nil {
		return uuid.Nil, errors.New("appointments: create meeting: nil meeting")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[m.AppointmentID]; !ok {
		return uuid.Nil, fmt.Errorf("appointments: create meeting for %s: %w", m.AppointmentID, ErrNotFound)
	}
	m.prepareInsert(s.now())
	s.meetings[m.ID] = *m
	return m.ID, nil
}

func (s *MemoryStore) LinkMeetingToAppointment(_ context.Context, appointmentID, meetingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return fmt.Errorf("appointments: link meeting %s: %w", appointmentID, ErrNotFound)
	}
	if a.HasMeeting() {
		return fmt.Errorf("appointments: link meeting %s: %w", appointmentID, ErrAlreadyLinked)
	}
	id := meetingID
	a.MeetingID = &id
	s.appointments[appointmentID] = a
	return nil
}

func (s *MemoryStore) FindOrphanMeeting(_ context.Context, appointmentID uuid.UUID) (*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	linked := make(map[uuid.UUID]struct{}, len(s.appointments))
	for _, a := range s.appointments {
		if a.HasMeeting() {
			linked[*a.MeetingID] = struct{}{}
		}
	}
	var newest *Meeting
	for _, m := range s.meetings {
		if m.AppointmentID != appointmentID || m.Status == MeetingFailed {
			continue
		}
		if _, ok := linked[m.ID]; ok {
			continue
		}
		if newest == nil || m.CreatedAt.After(newest.CreatedAt) {
			candidate := m
			newest = &candidate
		}
	}
	return newest, nil
}

func (s *MemoryStore) GetMeeting(_ context.Context, id uuid.UUID) (*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) UpdateMeetingStatus(_ context.Context, id uuid.UUID, status MeetingStatus) error {
	if _, err := ParseMeetingStatus(string(status)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return fmt.Errorf("appointments: update meeting status %s: %w", id, ErrNotFound)
	}
	m.Status = status
	m.UpdatedAt = s.now()
	s.meetings[id] = m
	return nil
}
