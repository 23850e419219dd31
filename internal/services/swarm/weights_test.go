package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldPulse/internal/domain/models"
)

func pastSnapshot(votes ...models.AgentVote) models.SwarmSnapshot {
	return models.SwarmSnapshot{Symbol: "BTC-USD", Contributions: votes}
}

func uniformState(names ...string) models.AgentWeightState {
	w := make(map[string]float64, len(names))
	for _, n := range names {
		w[n] = 1.0 / float64(len(names))
	}
	return models.AgentWeightState{Symbol: "BTC-USD", Weights: w, Version: 1}
}

func weightSum(w map[string]float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

func TestUpdateWeightsAlignedGainsOpposedLoses(t *testing.T) {
	past := pastSnapshot(
		models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 0.8},
		models.AgentVote{AgentID: "bear", Score: -0.5, Confidence: 0.8},
	)
	state := uniformState("bull", "bear")

	next, err := UpdateWeights(past, 0.9, state)
	require.NoError(t, err)

	assert.Greater(t, next.Weights["bull"], state.Weights["bull"])
	assert.Less(t, next.Weights["bear"], state.Weights["bear"])
	assert.InDelta(t, 1.0, weightSum(next.Weights), 1e-9)
	assert.Equal(t, int64(2), next.Version)
}

func TestUpdateWeightsZeroRealizedUnchanged(t *testing.T) {
	past := pastSnapshot(
		models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 0.8},
		models.AgentVote{AgentID: "bear", Score: -0.5, Confidence: 0.8},
	)
	state := uniformState("bull", "bear")

	next, err := UpdateWeights(past, 0, state)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, next.Weights["bull"], 1e-9)
	assert.InDelta(t, 0.5, next.Weights["bear"], 1e-9)
	assert.Equal(t, int64(2), next.Version)
}

func TestUpdateWeightsZeroScoreUnchanged(t *testing.T) {
	past := pastSnapshot(models.AgentVote{AgentID: "fence", Score: 0, Confidence: 1})
	state := uniformState("fence", "other")

	next, err := UpdateWeights(past, 0.9, state)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, next.Weights["fence"], 1e-9)
}

func TestUpdateWeightsAbstainerOnlyRescaled(t *testing.T) {
	past := pastSnapshot(
		models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 1},
		models.AgentVote{AgentID: "bear", Score: -0.5, Confidence: 1},
	)
	state := uniformState("bull", "bear", "quiet")

	next, err := UpdateWeights(past, 1, state)
	require.NoError(t, err)

	// The abstainer keeps its relative position between winner and loser.
	assert.Greater(t, next.Weights["bull"], next.Weights["quiet"])
	assert.Greater(t, next.Weights["quiet"], next.Weights["bear"])
	assert.InDelta(t, 1.0, weightSum(next.Weights), 1e-9)
}

func TestUpdateWeightsDoesNotMutateInput(t *testing.T) {
	past := pastSnapshot(models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 1})
	state := uniformState("bull", "bear")

	_, err := UpdateWeights(past, 1, state)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, state.Weights["bull"], 1e-9)
	assert.Equal(t, int64(1), state.Version)
}

func TestUpdateWeightsFloorKeepsAgentsRevivable(t *testing.T) {
	state := uniformState("bull", "bear")
	past := pastSnapshot(
		models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 1},
		models.AgentVote{AgentID: "bear", Score: -0.5, Confidence: 1},
	)

	// Hammer the losing agent for many rounds; the floor must hold.
	var err error
	for i := 0; i < 60; i++ {
		state, err = UpdateWeights(past, 1, state)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, state.Weights["bear"], WeightFloor-1e-12)
	assert.InDelta(t, 1.0, weightSum(state.Weights), 1e-9)
	assert.Equal(t, int64(61), state.Version)
}

func TestUpdateWeightsStepScalesWithRealizedMagnitude(t *testing.T) {
	past := pastSnapshot(models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 1})
	small, err := UpdateWeights(past, 0.1, uniformState("bull", "bear"))
	require.NoError(t, err)
	large, err := UpdateWeights(past, 1.0, uniformState("bull", "bear"))
	require.NoError(t, err)

	assert.Greater(t, large.Weights["bull"], small.Weights["bull"])
}

func TestUpdateWeightsEmptyStateErrors(t *testing.T) {
	past := pastSnapshot(models.AgentVote{AgentID: "bull", Score: 0.5, Confidence: 1})
	_, err := UpdateWeights(past, 1, models.AgentWeightState{Symbol: "BTC-USD"})
	assert.Error(t, err)
}

func TestUpdateWeightsUnknownAgentIgnored(t *testing.T) {
	past := pastSnapshot(models.AgentVote{AgentID: "retired", Score: 1, Confidence: 1})
	state := uniformState("bull", "bear")

	next, err := UpdateWeights(past, 1, state)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, next.Weights["bull"], 1e-9)
	assert.InDelta(t, 0.5, next.Weights["bear"], 1e-9)
	assert.NotContains(t, next.Weights, "retired")
}
