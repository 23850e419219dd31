package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	stageDuration *prometheus.HistogramVec
	snapshots     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	consensus     *prometheus.GaugeVec
	confidence    *prometheus.GaugeVec
	abstentions   *prometheus.CounterVec
	quality       *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldpulse_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		snapshots: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldpulse_snapshots_total",
				Help: "Snapshots persisted, by kind",
			},
			[]string{"kind", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldpulse_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"type"},
		),
		consensus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fieldpulse_consensus_score",
				Help: "Latest swarm consensus score per symbol",
			},
			[]string{"symbol"},
		),
		confidence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fieldpulse_consensus_confidence",
				Help: "Latest swarm consensus confidence per symbol",
			},
			[]string{"symbol"},
		),
		abstentions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldpulse_agent_abstentions_total",
				Help: "Agent abstentions, by agent",
			},
			[]string{"agent"},
		),
		quality: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldpulse_state_quality_total",
				Help: "State vectors produced, by quality",
			},
			[]string{"symbol", "quality"},
		),
	}
}

func (r *Recorder) RecordStageDuration(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordSnapshot(kind, symbol string) {
	r.snapshots.WithLabelValues(kind, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordConsensus(symbol string, score, confidence float64) {
	r.consensus.WithLabelValues(symbol).Set(score)
	r.confidence.WithLabelValues(symbol).Set(confidence)
}

func (r *Recorder) RecordAbstention(agent string) {
	r.abstentions.WithLabelValues(agent).Inc()
}

func (r *Recorder) RecordQuality(symbol, quality string) {
	r.quality.WithLabelValues(symbol, quality).Inc()
}
