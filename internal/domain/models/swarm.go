package models

import "time"

// AgentVote is one agent's contribution to a consensus round.
// Score is in [-1, 1], Confidence in [0, 1] after aggregation clamping.
type AgentVote struct {
	AgentID    string  `json:"agent_id"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// SwarmSnapshot is the weighted consensus of all agent votes for one bucket,
// plus the normalized weights that produced it. Immutable.
type SwarmSnapshot struct {
	Timestamp           time.Time          `json:"timestamp"`
	Symbol              string             `json:"symbol"`
	ConsensusScore      float64            `json:"consensus_score"`
	ConsensusConfidence float64            `json:"consensus_confidence"`
	// Persistence is an EWMA of consensus scores across buckets
	// (0.7 * previous + 0.3 * current).
	Persistence    float64            `json:"persistence"`
	Contributions  []AgentVote        `json:"contributions"`
	WeightsUsed    map[string]float64 `json:"weights_used"`
	WeightsVersion int64              `json:"weights_version"`
}

// AgentWeightState is the per-symbol adaptive weight table, owned by the
// swarm aggregator and persisted externally. Callers running concurrent
// pipelines for the same symbol must serialize updates (single writer).
type AgentWeightState struct {
	Symbol      string             `json:"symbol"`
	Weights     map[string]float64 `json:"weights"`
	Version     int64              `json:"version"`
	LastUpdated time.Time          `json:"last_updated"`
}

// Clone returns a deep copy so updates never alias a caller's map.
func (s AgentWeightState) Clone() AgentWeightState {
	w := make(map[string]float64, len(s.Weights))
	for k, v := range s.Weights {
		w[k] = v
	}
	return AgentWeightState{Symbol: s.Symbol, Weights: w, Version: s.Version, LastUpdated: s.LastUpdated}
}
