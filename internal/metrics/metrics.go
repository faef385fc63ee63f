package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

const namespace = "gateway"

// Rejection reason labels.
const (
	reasonIdentity  = "invalid_identity"
	reasonDuplicate = "already_online"
	reasonTimeout   = "verify_timeout"
	reasonClosed    = "peer_closed"
	reasonOther     = "other"
)

// Metrics holds the gateway's Prometheus collectors.
//
// Event-driven counters are fed by HandleEvent. Gauges that mirror gateway
// state are read from gateway.Stats at scrape time.
type Metrics struct {
	registry *prometheus.Registry

	Registrations    prometheus.Counter
	Rejections       *prometheus.CounterVec
	Disconnections   prometheus.Counter
	DataFrames       prometheus.Counter
	DataBytes        prometheus.Counter
	CommandsWritten  prometheus.Counter
	LagEvents        prometheus.Counter
	CommandsSkipped  prometheus.Counter
	SessionDuration  prometheus.Histogram
	OnlineDevices    prometheus.Gauge
	CommandReceivers prometheus.Histogram
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devices",
			Name:      "registrations_total",
			Help:      "Total number of successful device registrations",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devices",
			Name:      "rejections_total",
			Help:      "Total number of connections closed before registration",
		}, []string{"reason"}),
		Disconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devices",
			Name:      "disconnections_total",
			Help:      "Total number of registered sessions that ended",
		}),
		DataFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "frames_total",
			Help:      "Total number of data messages logged",
		}),
		DataBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "bytes_total",
			Help:      "Total payload bytes of logged data messages",
		}),
		CommandsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "written_total",
			Help:      "Total number of commands written to devices",
		}),
		LagEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "lag_events_total",
			Help:      "Total number of times a session fell behind the command bus",
		}),
		CommandsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "skipped_total",
			Help:      "Total number of commands lagging sessions missed",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Duration of registered sessions",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		OnlineDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "devices",
			Name:      "online",
			Help:      "Number of registered, connected devices",
		}),
		CommandReceivers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "receivers",
			Help:      "Live subscriptions per submitted command",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Registrations,
		m.Rejections,
		m.Disconnections,
		m.DataFrames,
		m.DataBytes,
		m.CommandsWritten,
		m.LagEvents,
		m.CommandsSkipped,
		m.SessionDuration,
		m.OnlineDevices,
		m.CommandReceivers,
	)
	return m
}

// StatsSource exposes gateway counters. *gateway.Gateway satisfies it.
type StatsSource interface {
	Stats() gateway.Stats
}

// RegisterGateway exports gateway counters that are read at scrape time.
func (m *Metrics) RegisterGateway(src StatsSource) {
	stat := func(f func(gateway.Stats) float64) func() float64 {
		return func() float64 { return f(src.Stats()) }
	}

	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Total number of TCP connections accepted",
		}, stat(func(s gateway.Stats) float64 { return float64(s.ConnectionsAccepted) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of open sessions, registered or not",
		}, stat(func(s gateway.Stats) float64 { return float64(s.SessionsActive) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "sent_total",
			Help:      "Total number of commands submitted",
		}, stat(func(s gateway.Stats) float64 { return float64(s.CommandsSent) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "unheard_total",
			Help:      "Total number of commands submitted with no session listening",
		}, stat(func(s gateway.Stats) float64 { return float64(s.CommandsUnheard) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of lifecycle events dropped because the observer queue was full",
		}, stat(func(s gateway.Stats) float64 { return float64(s.EventsDropped) })),
	)
}

// HandleEvent implements gateway.Observer.
func (m *Metrics) HandleEvent(ev session.Event) {
	switch ev.Type {
	case session.EventRegistered:
		m.Registrations.Inc()
		m.OnlineDevices.Inc()
	case session.EventRejected:
		m.Rejections.WithLabelValues(rejectionReason(ev.Err)).Inc()
	case session.EventDisconnected:
		m.Disconnections.Inc()
		m.OnlineDevices.Dec()
		m.SessionDuration.Observe(ev.Duration.Seconds())
	case session.EventData:
		m.DataFrames.Inc()
		m.DataBytes.Add(float64(len(ev.Payload)))
	case session.EventCommand:
		m.CommandsWritten.Inc()
	case session.EventLagged:
		m.LagEvents.Inc()
		m.CommandsSkipped.Add(float64(ev.Skipped))
	case session.EventCommandSent:
		m.CommandReceivers.Observe(float64(ev.Receivers))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// rejectionReason maps a termination error onto a bounded label value.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, device.ErrInvalidIdentity):
		return reasonIdentity
	case errors.Is(err, device.ErrAlreadyOnline):
		return reasonDuplicate
	case errors.Is(err, session.ErrVerifyTimeout):
		return reasonTimeout
	case errors.Is(err, session.ErrPeerClosed):
		return reasonClosed
	default:
		return reasonOther
	}
}
