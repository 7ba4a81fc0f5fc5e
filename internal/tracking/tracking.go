// Package tracking routes scalar training metrics to logging backends.
//
// The model and trainer emit named scalars tagged by global step; sinks
// decide where they land. A zap-backed sink covers interactive runs, a
// Prometheus sink exposes gauges for scraping long runs, and Multi fans out
// to both.
package tracking

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Sink receives named scalar metrics.
type Sink interface {
	// LogScalar records one value for a metric at a global step.
	LogScalar(name string, value float64, step int)
}

// NopSink discards everything. Useful in tests.
type NopSink struct{}

// LogScalar discards the value.
func (NopSink) LogScalar(string, float64, int) {}

// ZapSink logs every scalar as a structured log entry.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink writing through the given logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// LogScalar writes one metric entry.
func (s *ZapSink) LogScalar(name string, value float64, step int) {
	s.logger.Info("metric",
		zap.String("name", name),
		zap.Float64("value", value),
		zap.Int("step", step),
	)
}

// PrometheusSink exposes every scalar as a gauge labeled by run ID. Metric
// names are sanitized into the Prometheus namespace ("train/loss" becomes
// "sensemble_train_loss").
type PrometheusSink struct {
	registerer prometheus.Registerer
	runID      string

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

// NewPrometheusSink creates a sink registering gauges with registerer.
func NewPrometheusSink(registerer prometheus.Registerer, runID string) *PrometheusSink {
	return &PrometheusSink{
		registerer: registerer,
		runID:      runID,
		gauges:     make(map[string]prometheus.Gauge),
	}
}

// LogScalar sets the gauge for the metric, creating it on first use.
func (s *PrometheusSink) LogScalar(name string, value float64, _ int) {
	s.mu.Lock()
	g, ok := s.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sensemble_" + sanitize(name),
			Help:        "Sensemble training metric " + name,
			ConstLabels: prometheus.Labels{"run_id": s.runID},
		})
		s.registerer.MustRegister(g)
		s.gauges[name] = g
	}
	s.mu.Unlock()
	g.Set(value)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Multi fans a scalar out to several sinks.
type Multi []Sink

// LogScalar forwards to every sink.
func (m Multi) LogScalar(name string, value float64, step int) {
	for _, s := range m {
		s.LogScalar(name, value, step)
	}
}
