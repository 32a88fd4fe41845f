// Package metrics exposes Prometheus counters for authentications and writes.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	authTotal     *prometheus.CounterVec
	writesTotal   *prometheus.CounterVec
	bytesWritten  prometheus.Counter
	writeDuration *prometheus.HistogramVec
	vaultUp       prometheus.Gauge
}

// New registers the collectors on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		authTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashivault_auth_total",
				Help: "Vault logins by auth type and outcome",
			},
			[]string{"authtype", "outcome"},
		),
		writesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashivault_writes_total",
				Help: "Write-file operations by outcome (changed, unchanged, check, or a failure reason)",
			},
			[]string{"outcome"},
		),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "hashivault_bytes_written_total",
			Help: "Decoded payload bytes written to Vault",
		}),
		writeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hashivault_write_duration_seconds",
				Help:    "Duration of write-file operations including login",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		vaultUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "hashivault_vault_up",
			Help: "Whether the default Vault answered its last health probe unsealed (1) or not (0)",
		}),
	}
}

// RecordAuth counts one login attempt. outcome is "ok" or a failure reason.
func (m *Metrics) RecordAuth(authType, outcome string) {
	if m == nil {
		return
	}
	m.authTotal.WithLabelValues(authType, outcome).Inc()
}

// RecordWrite counts one finished operation.
func (m *Metrics) RecordWrite(outcome string, bytes int, d time.Duration) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(outcome).Inc()
	m.writeDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if bytes > 0 {
		m.bytesWritten.Add(float64(bytes))
	}
}

func (m *Metrics) SetVaultUp(up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.vaultUp.Set(v)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
