package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvisioningMetrics exposes counters/histograms for the meeting provisioning loop.
type ProvisioningMetrics struct {
	ticksTotal          *prometheus.CounterVec
	selected            prometheus.Gauge
	provisionedTotal    *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec
	tickDuration        prometheus.Histogram
	providerCallLatency *prometheus.HistogramVec
}

func NewProvisioningMetrics(reg prometheus.Registerer) *ProvisioningMetrics {
	m := &ProvisioningMetrics{
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "ticks_total",
			Help:      "Scheduling ticks by result (ok, error, skipped, locked)",
		}, []string{"result"}),
		selected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "appointments_selected",
			Help:      "Eligible appointments found by the most recent tick",
		}),
		provisionedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "appointments_total",
			Help:      "Per-appointment provisioning outcomes",
		}, []string{"outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "notifications_total",
			Help:      "Meeting link notifications by recipient and status",
		}, []string{"recipient", "status"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "events_published_total",
			Help:      "meeting.provisioned events by publish status",
		}, []string{"status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a full scheduling tick",
			Buckets:   prometheus.DefBuckets,
		}),
		providerCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "provisioning",
			Name:      "provider_call_seconds",
			Help:      "Latency of meeting provider session creation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ticksTotal, m.selected, m.provisionedTotal, m.notificationsTotal, m.eventsTotal, m.tickDuration, m.providerCallLatency)
	return m
}

func (m *ProvisioningMetrics) ObserveTick(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.tickDuration.Observe(elapsed.Seconds())
	}
}

func (m *ProvisioningMetrics) SetSelected(n int) {
	if m == nil {
		return
	}
	m.selected.Set(float64(n))
}

func (m *ProvisioningMetrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.provisionedTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification satisfies notify.DeliveryRecorder.
func (m *ProvisioningMetrics) ObserveNotification(recipient, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(recipient, status).Inc()
}

func (m *ProvisioningMetrics) ObserveEvent(status string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(status).Inc()
}

func (m *ProvisioningMetrics) ObserveProviderCall(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerCallLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}
