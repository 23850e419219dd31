package repository

// Metrics records pipeline observability signals.
type Metrics interface {
	RecordStageDuration(stage string, seconds float64)
	RecordSnapshot(kind, symbol string)
	RecordError(kind string)
	RecordConsensus(symbol string, score, confidence float64)
	RecordAbstention(agent string)
	RecordQuality(symbol, quality string)
}
