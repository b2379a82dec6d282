package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. Fields are plain atomics so components
// and tests can read them directly; the Prometheus collectors read the same values.
type Metrics struct {
	// Capture loop
	Ticks             atomic.Uint64
	Samples           atomic.Uint64
	CaptureFailures   atomic.Uint64
	InferenceFailures atomic.Uint64
	DeviceErrors      atomic.Uint64
	Capturing         atomic.Uint64 // 0 = idle, 1 = sampling

	// Persistence
	CheckpointWrites   atomic.Uint64
	CheckpointFailures atomic.Uint64

	// Feedback sync
	SyncMerges   atomic.Uint64
	SyncSkipped  atomic.Uint64
	SyncFailures atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.register()

	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"emotion_capture_ticks_total", "Capture ticks started", &m.Ticks},
		{"emotion_capture_samples_total", "Samples appended to the session buffer", &m.Samples},
		{"emotion_capture_frame_failures_total", "Ticks skipped because no frame could be captured or encoded", &m.CaptureFailures},
		{"emotion_inference_failures_total", "Ticks skipped because the inference call failed", &m.InferenceFailures},
		{"emotion_device_errors_total", "Failed capture device acquisitions", &m.DeviceErrors},
		{"emotion_checkpoint_writes_total", "Summary checkpoints written", &m.CheckpointWrites},
		{"emotion_checkpoint_failures_total", "Summary checkpoints that failed to persist", &m.CheckpointFailures},
		{"emotion_sync_merges_total", "Summaries merged into feedback records", &m.SyncMerges},
		{"emotion_sync_skipped_total", "Sync attempts abandoned without merging", &m.SyncSkipped},
		{"emotion_sync_failures_total", "Sync attempts that failed", &m.SyncFailures},
	}

	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "emotion_capture_active",
			Help: "Capture loop active (0=idle, 1=sampling)",
		},
		func() float64 { return float64(m.Capturing.Load()) },
	))
}

// SetCapturing records whether the capture loop is sampling.
func (m *Metrics) SetCapturing(active bool) {
	if active {
		m.Capturing.Store(1)
		return
	}
	m.Capturing.Store(0)
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
