package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/telehealth-provisioner/internal/appointments"
	"github.com/wolfman30/telehealth-provisioner/internal/events"
	"github.com/wolfman30/telehealth-provisioner/internal/observability/metrics"
	"github.com/wolfman30/telehealth-provisioner/internal/zoomclient"
	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
)

const (
	DefaultLead        = 5 * time.Minute
	DefaultLookback    = 15 * time.Minute
	DefaultInterval    = 30 * time.Second
	DefaultDuration    = 30 * time.Minute
	DefaultConcurrency = 4
)

// Store is the persistence the loop needs. appointments.PostgresStore and
// appointments.MemoryStore both satisfy it.
type Store interface {
	FindEligibleAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]appointments.Appointment, error)
	CreateMeeting(ctx context.Context, m *appointments.Meeting) (uuid.UUID, error)
	LinkMeetingToAppointment(ctx context.Context, appointmentID, meetingID uuid.UUID) error
	FindOrphanMeeting(ctx context.Context, appointmentID uuid.UUID) (*appointments.Meeting, error)
}

// Provider creates remote video sessions.
type Provider interface {
	CreateSession(ctx context.Context, topic string, start time.Time, durationMinutes int, passcode string) (*zoomclient.Session, error)
}

// Notifier delivers the join link. It must not return failures to the loop.
type Notifier interface {
	NotifyMeetingReady(ctx context.Context, appt appointments.Appointment, joinURL string)
}

// Config is fixed at construction.
type Config struct {
	Lead     time.Duration
	Lookback time.Duration
	Interval time.Duration
	// Duration requested for every session.
	Duration    time.Duration
	Concurrency int
	// ReuseOrphans links an existing unlinked meeting instead of creating a second session.
	ReuseOrphans bool
	// LockTTL is the cross-replica lease length. Defaults to three intervals; the Redis
	// locker also renews it while the tick runs.
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Lead <= 0 {
		c.Lead = DefaultLead
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 3 * c.Interval
	}
	return c
}

// TickResult summarizes one scan.
type TickResult struct {
	Selected    int
	Provisioned int
	Failed      int
	// Skipped is true when the tick did not scan (overlap or lock held elsewhere).
	Skipped  bool
	Outcomes map[uuid.UUID]Outcome
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ProvisioningMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTicker replaces the interval ticker, mostly for tests. stop may be nil.
func WithTicker(tick <-chan time.Time, stop func()) Option {
	return func(s *Scheduler) {
		s.tick = tick
		s.stopTick = stop
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Scheduler finds appointments entering the lead window and provisions a meeting for each.
type Scheduler struct {
	store     Store
	provider  Provider
	notifier  Notifier
	cfg       Config
	logger    *logging.Logger
	metrics   *metrics.ProvisioningMetrics
	publisher events.Publisher
	locker    Locker
	tracer    trace.Tracer
	now       func() time.Time

	tick     <-chan time.Time
	stopTick func()

	running atomic.Bool
}

func NewScheduler(store Store, provider Provider, notifier Notifier, cfg Config, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("provisioning: store required")
	}
	if provider == nil {
		return nil, errors.New("provisioning: meeting provider required")
	}
	if notifier == nil {
		return nil, errors.New("provisioning: notifier required")
	}
	s := &Scheduler{
		store:    store,
		provider: provider,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logging.Default(),
		tracer:   otel.Tracer("github.com/wolfman30/telehealth-provisioner/internal/provisioning"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Component("provisioning")
	return s, nil
}

// Config returns the effective configuration after defaults.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start runs one tick synchronously, then ticks on the interval until stop is called.
// stop blocks until an in-flight tick has finished.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	tick, stopTick := s.tick, s.stopTick
	if tick == nil {
		ticker := time.NewTicker(s.cfg.Interval)
		tick, stopTick = ticker.C, ticker.Stop
	}

	s.logger.Info("provisioning loop starting",
		"lead", s.cfg.Lead.String(),
		"lookback", s.cfg.Lookback.String(),
		"interval", s.cfg.Interval.String(),
		"lock_ttl", s.cfg.LockTTL.String(),
		"reuse_orphans", s.cfg.ReuseOrphans,
	)
	s.Tick(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if stopTick != nil {
				stopTick()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				if ctx.Err() != nil {
					return
				}
				s.Tick(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			s.logger.Info("provisioning loop stopped")
		})
	}
}

// Tick performs one scan. It never panics and never returns an error; failures are logged
// and reflected in the result. A call that overlaps a running tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("provisioning tick skipped: previous tick still running")
		s.metrics.ObserveTick(tickOverlap, 0)
		return TickResult{Skipped: true}
	}
	defer s.running.Store(false)

	// Shutdown must not abort writes that follow a successful provider call.
	ctx = context.WithoutCancel(ctx)
	started := s.now()
	tickID := uuid.NewString()
	log := s.logger.With("tick_id", tickID)

	ctx, span := s.tracer.Start(ctx, "provisioning.Tick")
	defer span.End()

	var (
		res   TickResult
		label = tickOK
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				label = tickPanic
				log.Error("provisioning tick panicked", "panic", fmt.Sprint(r))
				span.SetStatus(codes.Error, "panic")
			}
		}()
		res, label = s.scan(ctx, log, tickID, started)
	}()

	span.SetAttributes(
		attribute.Int("provisioning.selected", res.Selected),
		attribute.Int("provisioning.provisioned", res.Provisioned),
		attribute.Int("provisioning.failed", res.Failed),
	)
	s.metrics.ObserveTick(label, s.now().Sub(started))
	return res
}

func (s *Scheduler) scan(ctx context.Context, log *logging.Logger, tickID string, now time.Time) (TickResult, string) {
	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, s.cfg.LockTTL)
		if err != nil {
			log.Warn("provisioning tick skipped: lock unavailable", "error", err)
			return TickResult{Skipped: true}, tickLockError
		}
		if !acquired {
			log.Debug("provisioning tick skipped: another replica holds the lock")
			return TickResult{Skipped: true}, tickLocked
		}
		defer release()
	}

	windowStart, windowEnd := now.Add(-s.cfg.Lookback), now.Add(s.cfg.Lead)
	due, err := s.store.FindEligibleAppointments(ctx, windowStart, windowEnd)
	if err != nil {
		log.Error("provisioning: find eligible appointments failed", "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
		return TickResult{}, tickError
	}
	s.metrics.SetSelected(len(due))

	res := TickResult{Selected: len(due), Outcomes: make(map[uuid.UUID]Outcome, len(due))}
	if len(due) == 0 {
		return res, tickOK
	}
	log.Info("provisioning eligible appointments",
		"count", len(due),
		"window_start", windowStart,
		"window_end", windowEnd,
	)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, appt := range due {
		g.Go(func() error {
			outcome := s.provisionIsolated(ctx, log, tickID, appt)
			s.metrics.ObserveOutcome(string(outcome))
			mu.Lock()
			res.Outcomes[appt.ID] = outcome
			if outcome.Failed() {
				res.Failed++
			} else {
				res.Provisioned++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Info("provisioning tick complete", "selected", res.Selected, "provisioned", res.Provisioned, "failed", res.Failed)
	return res, tickOK
}

func (s *Scheduler) provisionIsolated(ctx context.Context, log *logging.Logger, tickID string, appt appointments.Appointment) (outcome Outcome) {
	log = log.With("appointment_id", appt.ID.String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("provisioning: appointment panicked", "panic", fmt.Sprint(r))
			outcome = OutcomePanic
		}
	}()
	return s.provision(ctx, log, tickID, appt)
}

func (s *Scheduler) provision(ctx context.Context, log *logging.Logger, tickID string, appt appointments.Appointment) Outcome {
	ctx, span := s.tracer.Start(ctx, "provisioning.Appointment",
		trace.WithAttributes(attribute.String("appointment.id", appt.ID.String())))
	defer span.End()

	if s.cfg.ReuseOrphans {
		orphan, err := s.store.FindOrphanMeeting(ctx, appt.ID)
		if err != nil {
			log.Warn("provisioning: orphan lookup failed, creating a new session", "error", err)
		} else if orphan != nil {
			return s.linkOrphan(ctx, log, tickID, appt, orphan)
		}
	}

	callStart := s.now()
	session, err := s.provider.CreateSession(ctx, Topic(appt), appt.ScheduledAt, int(s.cfg.Duration/time.Minute), "")
	if err != nil {
		s.metrics.ObserveProviderCall("error", s.now().Sub(callStart))
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		if zoomclient.IsFatalConfig(err) {
			log.Error("provisioning: meeting provider is not configured", "error", err, "fatal_config", true)
			return OutcomeConfigError
		}
		log.Error("provisioning: create session failed", "error", err, "status_code", zoomclient.StatusCode(err))
		return OutcomeProviderFailed
	}
	s.metrics.ObserveProviderCall("ok", s.now().Sub(callStart))
	log = log.With("provider_session_id", session.ID)

	meeting := meetingFromSession(appt, session)
	meetingID, err := s.store.CreateMeeting(ctx, meeting)
	if err != nil {
		span.RecordError(err)
		log.Error("provisioning: persist meeting failed, provider session has no record", "error", err)
		return OutcomePersistFailed
	}
	log = log.With("meeting_id", meetingID.String())

	if err := s.store.LinkMeetingToAppointment(ctx, appt.ID, meetingID); err != nil {
		span.RecordError(err)
		log.Error("orphan meeting", "error", err)
		if errors.Is(err, appointments.ErrAlreadyLinked) {
			return OutcomeAlreadyLinked
		}
		return OutcomeLinkFailed
	}

	appt.MeetingID = &meetingID
	log.Info("meeting provisioned", "start_time", meeting.StartTime)
	s.announce(ctx, log, tickID, appt, meeting, false)
	return OutcomeProvisioned
}

func (s *Scheduler) linkOrphan(ctx context.Context, log *logging.Logger, tickID string, appt appointments.Appointment, orphan *appointments.Meeting) Outcome {
	log = log.With("meeting_id", orphan.ID.String(), "provider_session_id", orphan.ProviderSessionID)
	if err := s.store.LinkMeetingToAppointment(ctx, appt.ID, orphan.ID); err != nil {
		log.Error("orphan meeting", "error", err, "reuse", true)
		if errors.Is(err, appointments.ErrAlreadyLinked) {
			return OutcomeAlreadyLinked
		}
		return OutcomeLinkFailed
	}
	appt.MeetingID = &orphan.ID
	log.Info("meeting provisioned from orphan")
	s.announce(ctx, log, tickID, appt, orphan, true)
	return OutcomeReused
}

// announce notifies both parties and publishes the event. Neither can undo provisioning.
func (s *Scheduler) announce(ctx context.Context, log *logging.Logger, tickID string, appt appointments.Appointment, meeting *appointments.Meeting, reused bool) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("provisioning: notifier panicked", "panic", fmt.Sprint(r))
			}
		}()
		s.notifier.NotifyMeetingReady(ctx, appt, meeting.JoinURL)
	}()

	if s.publisher == nil {
		return
	}
	evt := events.MeetingProvisionedV1{
		AppointmentID:     appt.ID.String(),
		MeetingID:         meeting.ID.String(),
		ClinicianID:       appt.ClinicianID.String(),
		ProviderSessionID: meeting.ProviderSessionID,
		JoinURL:           meeting.JoinURL,
		StartTime:         meeting.StartTime,
		EndTime:           meeting.EndTime,
		ProvisionedAt:     s.now(),
		Reused:            reused,
	}
	if _, err := s.publisher.Publish(ctx, evt.Aggregate(), tickID, evt); err != nil {
		log.Warn("provisioning: publish event failed", "error", err)
		s.metrics.ObserveEvent("failed")
		return
	}
	s.metrics.ObserveEvent("published")
}

// Topic is the session title shown to both parties.
func Topic(appt appointments.Appointment) string {
	patient := strings.TrimSpace(appt.PatientName)
	if patient == "" {
		patient = "Patient"
	}
	clinician := strings.TrimSpace(appt.ClinicianName)
	if clinician == "" {
		clinician = "your clinician"
	}
	return fmt.Sprintf("Video visit: %s with %s", patient, clinician)
}

func meetingFromSession(appt appointments.Appointment, session *zoomclient.Session) *appointments.Meeting {
	canonical := *session
	if canonical.StartTime.IsZero() {
		canonical.StartTime = appt.ScheduledAt
	}
	return &appointments.Meeting{
		AppointmentID:     appt.ID,
		ProviderSessionID: canonical.ID,
		JoinURL:           canonical.JoinURL,
		Passcode:          canonical.Password,
		StartTime:         canonical.StartTime.UTC(),
		EndTime:           canonical.EndTime(),
		Status:            appointments.MeetingScheduled,
		Metadata:          canonical.Raw,
	}
}
