package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dhamidi/streamparse/failure"
)

// Metrics counts parser activity. One Metrics value may be shared by many
// parsers; series are labelled with the grammar name. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	bytesTotal     *prometheus.CounterVec
	tokensTotal    *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	bufferPeakSize *prometheus.GaugeVec

	mu    sync.Mutex
	peaks map[string]int
}

// NewMetrics registers the parser metrics with r.
func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		bytesTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamparse",
			Name:      "input_bytes_total",
			Help:      "Total number of input bytes fed to parsers.",
		}, []string{"grammar"}),
		tokensTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamparse",
			Name:      "tokens_total",
			Help:      "Total number of tokens recognized, by whether they were skipped.",
		}, []string{"grammar", "skipped"}),
		eventsTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamparse",
			Name:      "events_total",
			Help:      "Total number of events produced, by kind.",
		}, []string{"grammar", "kind"}),
		errorsTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamparse",
			Name:      "errors_total",
			Help:      "Total number of parser failures, by kind.",
		}, []string{"grammar", "kind"}),
		bufferPeakSize: promauto.With(r).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamparse",
			Name:      "buffer_peak_bytes",
			Help:      "Largest number of bytes held by a parser buffer.",
		}, []string{"grammar"}),
		peaks: make(map[string]int),
	}
}

func (m *Metrics) observeBytes(g string, n int) {
	if m == nil {
		return
	}
	m.bytesTotal.WithLabelValues(g).Add(float64(n))
}

func (m *Metrics) observeToken(g string, skipped bool) {
	if m == nil {
		return
	}
	label := "false"
	if skipped {
		label = "true"
	}
	m.tokensTotal.WithLabelValues(g, label).Inc()
}

func (m *Metrics) observeEvent(g string, kind EventKind) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(g, kind.String()).Inc()
}

func (m *Metrics) observeError(g string, kind failure.Kind) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(g, kind.String()).Inc()
}

func (m *Metrics) observeBufferPeak(g string, n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.peaks[g] {
		m.peaks[g] = n
		m.bufferPeakSize.WithLabelValues(g).Set(float64(n))
	}
}
