package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(InitLogger("debug", &buf), "syncengine")

	logger.Info().Str("local_id", "txn_1").Msg("synced")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "synced", entry["message"])
	assert.Equal(t, "syncengine", entry["component"])
	assert.Equal(t, "txn_1", entry["local_id"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "caller")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("posqueue", reg)

	m.SubmissionsTotal.WithLabelValues("drain", "synced").Inc()
	m.SetQueueDepth(4)
	m.SetOnline(true)
	m.SetDegraded(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("drain", "synced")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Online))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "posqueue_queue_depth")
	assert.Contains(t, names, "posqueue_submissions_total")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetOnline(true)
		m.SetQueueDepth(1)
		m.SetDegraded(true)
	})
}
