package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeUnknown  = "unknown"
	OutcomeError    = "error"
)

// Metrics records vault activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	secretsLoaded    *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	masterKeySources *prometheus.CounterVec
	initDuration     prometheus.Histogram
}

// New registers the vault metrics with reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated. When reg already holds the
// vault metrics, for example from an earlier Vault sharing
// prometheus.DefaultRegisterer, the existing collectors are reused. A nil
// reg leaves the metrics unregistered.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		secretsLoaded: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secvault_secrets_loaded_total",
				Help: "Total number of secrets decrypted into repository caches",
			},
			[]string{"repository"},
		)),
		resolutions: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secvault_resolutions_total",
				Help: "Total number of alias resolutions by outcome",
			},
			[]string{"outcome"},
		)),
		masterKeySources: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secvault_master_key_sources_total",
				Help: "Master keys resolved, by the source that supplied them",
			},
			[]string{"source"},
		)),
		initDuration: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "secvault_init_duration_seconds",
				Help:    "Duration of vault initialization in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)),
	}
}

// register adds c to reg and returns the collector to record into: c
// itself, or the one reg already holds under the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// RecordSecretsLoaded adds n loaded secrets for repository.
func (m *Metrics) RecordSecretsLoaded(repository string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.secretsLoaded.WithLabelValues(repository).Add(float64(n))
}

// RecordResolution counts one alias resolution.
func (m *Metrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// RecordMasterKeySource counts one master key resolved from source.
func (m *Metrics) RecordMasterKeySource(source string) {
	if m == nil {
		return
	}
	m.masterKeySources.WithLabelValues(source).Inc()
}

// ObserveInit records how long initialization took.
func (m *Metrics) ObserveInit(d time.Duration) {
	if m == nil {
		return
	}
	m.initDuration.Observe(d.Seconds())
}
