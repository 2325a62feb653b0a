package zoomclient

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const scheduledMeeting = 2

// createMeetingRequest is the POST /users/{userId}/meetings body.
type createMeetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone"`
	Password  string          `json:"password,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	JoinBeforeHost bool `json:"join_before_host"`
	// 2 = no registration required
	ApprovalType int  `json:"approval_type"`
	WaitingRoom  bool `json:"waiting_room"`
}

func defaultSettings() meetingSettings {
	return meetingSettings{
		JoinBeforeHost: false,
		ApprovalType:   2,
		WaitingRoom:    true,
	}
}

// meetingResponse holds the fields the provisioning loop reads. Everything else stays in Raw.
type meetingResponse struct {
	ID        sessionID `json:"id"`
	JoinURL   string    `json:"join_url"`
	Password  string    `json:"password"`
	StartTime string    `json:"start_time"`
	Duration  int       `json:"duration"`
	Status    string    `json:"status"`
}

// sessionID accepts both numeric and string meeting ids.
type sessionID string

func (s *sessionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = sessionID(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = sessionID(num.String())
	return nil
}

// Session is the provider's scheduled meeting. Raw is the verbatim response body.
type Session struct {
	ID        string
	JoinURL   string
	Password  string
	StartTime time.Time
	// Duration in minutes; zero when the provider omits it.
	Duration int
	Status   string
	Raw      json.RawMessage
}

// EndTime returns StartTime plus Duration, or nil when no duration was reported.
func (s *Session) EndTime() *time.Time {
	if s == nil || s.Duration <= 0 || s.StartTime.IsZero() {
		return nil
	}
	end := s.StartTime.Add(time.Duration(s.Duration) * time.Minute)
	return &end
}

func decodeSession(body []byte, fallbackStart time.Time) (*Session, error) {
	var resp meetingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	start := fallbackStart.UTC()
	if raw := strings.TrimSpace(resp.StartTime); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			start = parsed.UTC()
		}
	}
	return &Session{
		ID:        string(resp.ID),
		JoinURL:   resp.JoinURL,
		Password:  resp.Password,
		StartTime: start,
		Duration:  resp.Duration,
		Status:    resp.Status,
		Raw:       json.RawMessage(append([]byte(nil), body...)),
	}, nil
}
