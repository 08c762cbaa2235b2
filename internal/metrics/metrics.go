package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	messagesCounted prometheus.Counter
	messagesIgnored *prometheus.CounterVec
	ingestFailures  prometheus.Counter
	evaluations     *prometheus.CounterVec
	roleChanges     *prometheus.CounterVec
	scheduleGroups  prometheus.Gauge
	eventsDropped   prometheus.Counter
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesCounted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "activerole_messages_counted_total",
			Help: "Messages that incremented a weekly count.",
		}),
		messagesIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activerole_messages_ignored_total",
			Help: "Messages skipped by ingestion, by reason.",
		}, []string{"reason"}),
		ingestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "activerole_ingest_failures_total",
			Help: "Messages whose count could not be recorded.",
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activerole_evaluations_total",
			Help: "Weekly evaluation runs by outcome.",
		}, []string{"outcome"}),
		roleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activerole_role_changes_total",
			Help: "Role grant and revoke calls by action and result.",
		}, []string{"action", "result"}),
		scheduleGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activerole_schedule_groups",
			Help: "Distinct (week start, timezone) schedules currently registered.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "activerole_events_dropped_total",
			Help: "Platform events dropped because the event queue was full.",
		}),
	}
	collectors := []prometheus.Collector{
		m.messagesCounted,
		m.messagesIgnored,
		m.ingestFailures,
		m.evaluations,
		m.roleChanges,
		m.scheduleGroups,
		m.eventsDropped,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveMessageCounted() {
	if m == nil {
		return
	}
	m.messagesCounted.Inc()
}

func (m *Metrics) ObserveMessageIgnored(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.messagesIgnored.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveIngestFailure() {
	if m == nil {
		return
	}
	m.ingestFailures.Inc()
}

// ObserveEvaluation records a finished run; outcome is one of completed, skipped, failed, busy.
func (m *Metrics) ObserveEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

// ObserveRoleChange records one grant or revoke call.
func (m *Metrics) ObserveRoleChange(action string, succeeded bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !succeeded {
		result = "error"
	}
	m.roleChanges.WithLabelValues(action, result).Inc()
}

func (m *Metrics) SetScheduleGroups(count int) {
	if m == nil {
		return
	}
	m.scheduleGroups.Set(float64(count))
}

func (m *Metrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
