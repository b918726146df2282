// Package metrics provides Prometheus-backed counters for the ssh
// transport core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gosshc"

// Recorder implements ssh.MetricsRecorder against a Prometheus
// registry, grounded on the corpus's promauto.With(registry) wiring
// pattern for per-instance metric sets.
type Recorder struct {
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	handshakes      prometheus.Counter
	handshakeLatency prometheus.Histogram
	channelsOpen    prometheus.Gauge
	channelsTotal   prometheus.Counter
}

// NewRecorder registers a fresh metric set against reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes framed and sent.",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes unframed from the peer.",
		}),
		handshakes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Total key exchanges completed.",
		}),
		handshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Wall-clock time spent in banner exchange plus key exchange.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		channelsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_open",
			Help:      "Number of currently open channels.",
		}),
		channelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_opened_total",
			Help:      "Total channels opened.",
		}),
	}
}

func (r *Recorder) BytesSent(n int)     { r.bytesSent.Add(float64(n)) }
func (r *Recorder) BytesReceived(n int) { r.bytesReceived.Add(float64(n)) }

func (r *Recorder) HandshakeComplete(d time.Duration) {
	r.handshakes.Inc()
	r.handshakeLatency.Observe(d.Seconds())
}

func (r *Recorder) ChannelOpened() {
	r.channelsOpen.Inc()
	r.channelsTotal.Inc()
}

func (r *Recorder) ChannelClosed() { r.channelsOpen.Dec() }
