package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/telehealth-provisioner/internal/appointments"
	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
)

const (
	RecipientPatient   = "patient"
	RecipientClinician = "clinician"

	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// DeliveryRecorder counts notification attempts. metrics.ProvisioningMetrics satisfies it.
type DeliveryRecorder interface {
	ObserveNotification(recipient, status string)
}

// Dispatcher tells patient and clinician that a video visit link is ready.
// Delivery is best effort: failures are logged and counted, never returned.
type Dispatcher struct {
	email    EmailSender
	recorder DeliveryRecorder
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher. A nil sender falls back to the stub sender.
func NewDispatcher(email EmailSender, recorder DeliveryRecorder, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Dispatcher{
		email:    email,
		recorder: recorder,
		logger:   logger.Component("notify"),
	}
}

// NotifyMeetingReady sends the join link to the patient and, when known, the clinician.
// Each send is independent of the other.
func (d *Dispatcher) NotifyMeetingReady(ctx context.Context, appt appointments.Appointment, joinURL string) {
	log := d.logger.With("appointment_id", appt.ID.String())

	clinicianName := strings.TrimSpace(appt.ClinicianName)
	if clinicianName == "" {
		clinicianName = "your clinician"
	}
	patientName := strings.TrimSpace(appt.PatientName)
	if patientName == "" {
		patientName = "your patient"
	}
	base := meetingReadyData{
		PatientName:    patientName,
		ClinicianName:  clinicianName,
		ScheduledAt:    formatVisitTime(appt.ScheduledAt),
		Reason:         appt.Reason,
		JoinURL:        joinURL,
		AppointmentRef: appt.ID.String(),
	}

	patient := base
	patient.RecipientName = firstNonEmpty(appt.PatientName, "there")
	d.deliver(ctx, log, RecipientPatient, appt.PatientEmail, appt.PatientName, "Your video visit link", patient)

	clinician := base
	clinician.ForClinician = true
	clinician.RecipientName = firstNonEmpty(appt.ClinicianName, "there")
	d.deliver(ctx, log, RecipientClinician, appt.ClinicianEmail, appt.ClinicianName,
		fmt.Sprintf("Video visit with %s", patientName), clinician)
}

func (d *Dispatcher) deliver(ctx context.Context, log *logging.Logger, recipient, to, toName, subject string, data meetingReadyData) {
	if strings.TrimSpace(to) == "" {
		log.Debug("notify: no email on file, skipping", "recipient", recipient)
		d.observe(recipient, StatusSkipped)
		return
	}

	err := d.send(ctx, recipient, to, toName, subject, data)
	if err != nil {
		log.Warn("notify: meeting link delivery failed", "recipient", recipient, "error", err)
		d.observe(recipient, StatusFailed)
		return
	}
	log.Info("notify: meeting link delivered", "recipient", recipient)
	d.observe(recipient, StatusSent)
}

func (d *Dispatcher) send(ctx context.Context, recipient, to, toName, subject string, data meetingReadyData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: %s sender panic: %v", recipient, r)
		}
	}()

	text, html, err := renderMeetingReady(data)
	if err != nil {
		return err
	}
	return d.email.Send(ctx, EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: subject,
		Body:    text,
		HTML:    html,
	})
}

func (d *Dispatcher) observe(recipient, status string) {
	if d.recorder != nil {
		d.recorder.ObserveNotification(recipient, status)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
