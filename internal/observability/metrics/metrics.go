package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for availability and booking flows.
type BookingMetrics struct {
	commitsTotal        *prometheus.CounterVec
	cancellationsTotal  *prometheus.CounterVec
	availabilityQueries *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	notificationsTotal  *prometheus.CounterVec
	reminderJobsTotal   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonie",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Booking commit attempts by result",
		}, []string{"service", "result"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonie",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Booking cancellations by result",
		}, []string{"result"}),
		availabilityQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonie",
			Subsystem: "availability",
			Name:      "queries_total",
			Help:      "Availability queries by kind and whether any window was free",
		}, []string{"kind", "empty"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "harmonie",
			Subsystem: "availability",
			Name:      "query_latency_seconds",
			Help:      "Latency of availability queries including store loads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonie",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Customer emails by kind and status",
		}, []string{"kind", "status"}),
		reminderJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonie",
			Subsystem: "reminder",
			Name:      "jobs_total",
			Help:      "Reminder job scheduling operations by action and status",
		}, []string{"action", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.commitsTotal,
		m.cancellationsTotal,
		m.availabilityQueries,
		m.availabilityLatency,
		m.notificationsTotal,
		m.reminderJobsTotal,
	)
	return m
}

func (m *BookingMetrics) ObserveCommit(service, result string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(service, result).Inc()
}

func (m *BookingMetrics) ObserveCancel(result string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveAvailability(kind string, windows int, seconds float64) {
	if m == nil {
		return
	}
	empty := "false"
	if windows == 0 {
		empty = "true"
	}
	m.availabilityQueries.WithLabelValues(kind, empty).Inc()
	m.availabilityLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *BookingMetrics) ObserveNotification(kind string, err error) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, status(err)).Inc()
}

func (m *BookingMetrics) ObserveReminder(action string, err error) {
	if m == nil {
		return
	}
	m.reminderJobsTotal.WithLabelValues(action, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
