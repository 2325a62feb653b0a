package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

const visitTimeLayout = "Monday, January 2 at 3:04 PM MST"

// meetingReadyData feeds both the text and HTML bodies.
type meetingReadyData struct {
	RecipientName  string
	PatientName    string
	ClinicianName  string
	ScheduledAt    string
	Reason         string
	JoinURL        string
	ForClinician   bool
	AppointmentRef string
}

const meetingReadyText = `Hi {{.RecipientName}},

{{if .ForClinician}}Your video visit with {{.PatientName}} is ready.{{else}}Your video visit with {{.ClinicianName}} is ready.{{end}}

When: {{.ScheduledAt}}
{{- if .Reason}}
Reason: {{.Reason}}
{{- end}}

Join here: {{.JoinURL}}

Reference: {{.AppointmentRef}}
`

const meetingReadyHTML = `<p>Hi {{.RecipientName}},</p>
<p>{{if .ForClinician}}Your video visit with {{.PatientName}} is ready.{{else}}Your video visit with {{.ClinicianName}} is ready.{{end}}</p>
<p><strong>When:</strong> {{.ScheduledAt}}{{if .Reason}}<br><strong>Reason:</strong> {{.Reason}}{{end}}</p>
<p><a href="{{.JoinURL}}">Join the video visit</a></p>
<p style="color:#666">Reference: {{.AppointmentRef}}</p>
`

var (
	textTmpl = template.Must(template.New("meeting_ready_text").Option("missingkey=error").Parse(meetingReadyText))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("meeting_ready_html").Option("missingkey=error").Parse(meetingReadyHTML))
)

func formatVisitTime(t time.Time) string {
	return t.UTC().Format(visitTimeLayout)
}

func renderMeetingReady(data meetingReadyData) (text, html string, err error) {
	var tb bytes.Buffer
	if err := textTmpl.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("notify: render text: %w", err)
	}
	var hb bytes.Buffer
	if err := htmlTmpl.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("notify: render html: %w", err)
	}
	return tb.String(), hb.String(), nil
}
