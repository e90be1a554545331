package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// PrometheusCollector records call, gesture and relay metrics.
type PrometheusCollector struct {
	// Call
	connectionStates  *prometheus.CounterVec
	glareResolutions  *prometheus.CounterVec
	candidatesDrained prometheus.Counter

	// Gesture engine
	gesturesEmitted   *prometheus.CounterVec
	detectionDuration prometheus.Histogram
	inferenceFailures prometheus.Counter
	attentionScore    *prometheus.GaugeVec
	mutualAttention   prometheus.Gauge

	// Relay
	relayConnections prometheus.Gauge
	relayRooms       prometheus.Gauge
	relayMessages    *prometheus.CounterVec
	relayRejected    *prometheus.CounterVec
}

var _ ports.CallMetrics = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers on reg, or on the default registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionStates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xsimwink_connection_state_changes_total",
			Help: "Peer connection state transitions",
		}, []string{"state"}),

		glareResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xsimwink_glare_resolutions_total",
			Help: "Offer collisions resolved, by the local role",
		}, []string{"polite"}),

		candidatesDrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "xsimwink_ice_candidates_drained_total",
			Help: "Queued ICE candidates applied after the remote description arrived",
		}),

		gesturesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xsimwink_gestures_emitted_total",
			Help: "Gesture events emitted by the engine",
		}, []string{"gesture"}),

		detectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "xsimwink_detection_duration_seconds",
			Help:    "Landmark inference latency per detection tick",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		inferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "xsimwink_inference_failures_total",
			Help: "Model load or detection failures",
		}),

		attentionScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xsimwink_attention_score",
			Help: "Fraction of recent samples in which the side was looking",
		}, []string{"side"}),

		mutualAttention: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xsimwink_mutual_attention_ratio",
			Help: "Mutual attention time over total call time",
		}),

		relayConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xsimwink_relay_connections",
			Help: "Open relay websocket connections",
		}),

		relayRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xsimwink_relay_rooms",
			Help: "Rooms with at least one member",
		}),

		relayMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xsimwink_relay_messages_total",
			Help: "Signal messages accepted by the relay",
		}, []string{"type"}),

		relayRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xsimwink_relay_rejected_total",
			Help: "Frames the relay refused",
		}, []string{"reason"}),
	}
}

func (p *PrometheusCollector) ConnectionStateChanged(state domain.ConnectionState) {
	p.connectionStates.WithLabelValues(string(state)).Inc()
}

func (p *PrometheusCollector) GlareResolved(polite bool) {
	p.glareResolutions.WithLabelValues(strconv.FormatBool(polite)).Inc()
}

func (p *PrometheusCollector) CandidatesDrained(n int) {
	p.candidatesDrained.Add(float64(n))
}

func (p *PrometheusCollector) GestureEmitted(gesture domain.GestureType) {
	p.gesturesEmitted.WithLabelValues(string(gesture)).Inc()
}

func (p *PrometheusCollector) DetectionObserved(d time.Duration) {
	p.detectionDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) InferenceFailed() {
	p.inferenceFailures.Inc()
}

func (p *PrometheusCollector) ObserveAttention(m domain.AttentionMetrics) {
	p.attentionScore.WithLabelValues("local").Set(m.LocalScore)
	p.attentionScore.WithLabelValues("remote").Set(m.RemoteScore)
	if m.TotalCallTime > 0 {
		p.mutualAttention.Set(m.MutualAttentionTime.Seconds() / m.TotalCallTime.Seconds())
	}
}

func (p *PrometheusCollector) ClientConnected() {
	p.relayConnections.Inc()
}

func (p *PrometheusCollector) ClientDisconnected() {
	p.relayConnections.Dec()
}

func (p *PrometheusCollector) RoomCount(n int) {
	p.relayRooms.Set(float64(n))
}

func (p *PrometheusCollector) MessageRelayed(typ domain.SignalType) {
	p.relayMessages.WithLabelValues(string(typ)).Inc()
}

func (p *PrometheusCollector) MessageRejected(reason string) {
	p.relayRejected.WithLabelValues(reason).Inc()
}
