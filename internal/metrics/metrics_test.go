package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.RecordSecretsLoaded("file", 3)
	m.RecordSecretsLoaded("file", 0)
	m.RecordResolution(OutcomeResolved)
	m.RecordResolution(OutcomeResolved)
	m.RecordResolution(OutcomeUnknown)
	m.RecordMasterKeySource("environment")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.secretsLoaded.WithLabelValues("file")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeResolved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.masterKeySources.WithLabelValues("environment")))
}

func TestMetrics_InitDuration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveInit(20 * time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "secvault_init_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSecretsLoaded("file", 1)
		m.RecordResolution(OutcomeError)
		m.RecordMasterKeySource("file")
		m.ObserveInit(time.Second)
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestMetrics_SharedRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	var first, second *Metrics
	require.NotPanics(t, func() {
		first = New(reg)
		second = New(reg)
	})

	first.RecordResolution(OutcomeResolved)
	second.RecordResolution(OutcomeResolved)
	second.ObserveInit(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.resolutions.WithLabelValues(OutcomeResolved)))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "secvault_init_duration_seconds" {
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
}

func TestMetrics_NilRegisterer(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.RecordResolution(OutcomeError)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeError)))
}
