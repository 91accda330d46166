// Package metrics exposes directory node counters and gauges to Prometheus.
// A Registry satisfies the small Metrics interfaces of accounts, directory,
// session and auth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	requests      *prometheus.CounterVec
	registrations *prometheus.CounterVec
	online        prometheus.Gauge
	supersessions prometheus.Counter
	connections   prometheus.Gauge
}

// New builds a private registry. withRuntime adds the Go runtime and process
// collectors.
func New(withRuntime bool) *Registry {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_requests_total",
				Help: "Control requests handled, by command and result",
			},
			[]string{"command", "result"},
		),
		registrations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_registrations_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"result"},
		),
		online: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "directory_online_users",
				Help: "Usernames currently bound to a live session",
			},
		),
		supersessions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_supersessions_total",
				Help: "Logins that displaced an older session for the same username",
			},
		),
		connections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "directory_connections",
				Help: "Open transport sessions",
			},
		),
	}
}

func (r *Registry) IncRequest(command, result string) {
	r.requests.WithLabelValues(command, result).Inc()
}

func (r *Registry) ObserveRegistration(result string) {
	r.registrations.WithLabelValues(result).Inc()
}

func (r *Registry) SetOnline(n int) { r.online.Set(float64(n)) }

func (r *Registry) IncSupersession() { r.supersessions.Inc() }

func (r *Registry) SetConnections(n int) { r.connections.Set(float64(n)) }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
