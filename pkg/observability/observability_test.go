package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueMetricsAreNilSafe(t *testing.T) {
	ctx := context.Background()
	var m *PrometheusMetrics

	m.RecordStep(ctx, "email", "classify", time.Millisecond, nil)
	(&PrometheusMetrics{}).RecordRun(ctx, "email", "terminated")
	assert.NoError(t, m.Shutdown(ctx))
}

func TestInitMetricsDisabled(t *testing.T) {
	m, handler, err := InitMetrics(MetricsConfig{})
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Nil(t, handler)
}

func TestInitMetricsExposesInstruments(t *testing.T) {
	full := Config{Metrics: MetricsConfig{Enabled: true}}
	full.SetDefaults()
	require.NoError(t, full.Validate())
	cfg := full.Metrics

	m, handler, err := InitMetrics(cfg)
	require.NoError(t, err)
	require.NotNil(t, handler)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordStep(ctx, "email", "classify", 20*time.Millisecond, nil)
	m.RecordStep(ctx, "email", "classify", 5*time.Millisecond, errors.New("boom"))
	m.RecordRun(ctx, "email", "suspended")
	m.RecordInterrupt(ctx, "email", "human_review")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), "waypoint_step_executions_total")
	assert.Contains(t, string(body), "waypoint_step_errors_total")
	assert.Contains(t, string(body), "waypoint_interrupts_total")
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := Config{Tracing: TracingConfig{Enabled: true}}
	cfg.SetDefaults()

	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Tracing.Endpoint)
	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.True(t, cfg.Tracing.IsInsecure())
	assert.NoError(t, cfg.Validate())

	cfg.Tracing.Exporter = "zipkin"
	assert.Error(t, cfg.Validate())

	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 2
	assert.Error(t, cfg.Validate())
}

func TestManagerBeforeInitialize(t *testing.T) {
	m := NewManager(Config{})
	assert.NotNil(t, m.Tracer("test"))
	assert.IsType(t, NoopRecorder{}, m.Recorder())
	assert.Nil(t, m.MetricsHandler())
}

func TestManagerInitializeDisabled(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	m := NewManager(cfg)
	require.NoError(t, m.Initialize(context.Background()))

	_, span := m.Tracer("test").Start(context.Background(), SpanStep)
	span.End()
	assert.NoError(t, m.Shutdown(context.Background()))
}
