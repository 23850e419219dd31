package swarm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldPulse/internal/domain/models"
)

func fixedVote(score, confidence float64) AgentFunc {
	return func(models.StateVector, models.GeometrySnapshot) (models.AgentVote, error) {
		return models.AgentVote{Score: score, Confidence: confidence}, nil
	}
}

func abstaining(models.StateVector, models.GeometrySnapshot) (models.AgentVote, error) {
	return models.AgentVote{}, errors.New("input unavailable")
}

func panicking(models.StateVector, models.GeometrySnapshot) (models.AgentVote, error) {
	panic("degenerate agent")
}

func testVec(symbol string) models.StateVector {
	return models.StateVector{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbol:    symbol,
		Features:  []models.FeatureValue{{Name: "spot_return", Value: 0.01}},
		Quality:   models.QualityComplete,
	}
}

func TestAggregateWeightedConsensus(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("bull", fixedVote(0.2, 0.9)))
	require.NoError(t, r.Register("bear", fixedVote(-0.1, 0.5)))
	agg := NewAggregator(r)

	weights := models.AgentWeightState{
		Symbol:  "BTC-USD",
		Weights: map[string]float64{"bull": 0.5, "bear": 0.5},
		Version: 3,
	}
	snap, err := agg.Aggregate(testVec("BTC-USD"), models.GeometrySnapshot{}, weights, nil)
	require.NoError(t, err)

	// (0.5*0.9*0.2 + 0.5*0.5*(-0.1)) / (0.5*0.9 + 0.5*0.5) = 0.065 / 0.7
	assert.InDelta(t, 0.065/0.7, snap.ConsensusScore, 1e-9)
	assert.InDelta(t, 0.7, snap.ConsensusConfidence, 1e-9)
	assert.Equal(t, int64(3), snap.WeightsVersion)
	assert.Len(t, snap.Contributions, 2)

	var sum float64
	for _, w := range snap.WeightsUsed {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// First snapshot: persistence seeds from the score itself.
	assert.InDelta(t, snap.ConsensusScore, snap.Persistence, 1e-9)
}

func TestAggregateAbstainerDropsFromNormalization(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", fixedVote(0.5, 1)))
	require.NoError(t, r.Register("b", fixedVote(-0.5, 1)))
	require.NoError(t, r.Register("c", abstaining))
	agg := NewAggregator(r)

	snap, err := agg.Aggregate(testVec("ETH-USD"), models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	require.NoError(t, err)

	require.Len(t, snap.WeightsUsed, 2)
	assert.InDelta(t, 0.5, snap.WeightsUsed["a"], 1e-9)
	assert.InDelta(t, 0.5, snap.WeightsUsed["b"], 1e-9)
	assert.NotContains(t, snap.WeightsUsed, "c")
}

func TestAggregateAllAbstainNoQuorum(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", abstaining))
	require.NoError(t, r.Register("b", abstaining))
	agg := NewAggregator(r)

	_, err := agg.Aggregate(testVec("BTC-USD"), models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	assert.ErrorIs(t, err, ErrNoQuorum)
}

func TestAggregateZeroConfidenceFallsBackToAverage(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", fixedVote(0.4, 0)))
	require.NoError(t, r.Register("b", fixedVote(-0.2, 0)))
	agg := NewAggregator(r)

	snap, err := agg.Aggregate(testVec("BTC-USD"), models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, snap.ConsensusScore, 1e-9)
	assert.Zero(t, snap.ConsensusConfidence)
}

func TestAggregateClampsOutOfRangeVotes(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("wild", fixedVote(3, 2)))
	agg := NewAggregator(r)

	snap, err := agg.Aggregate(testVec("BTC-USD"), models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	require.NoError(t, err)
	require.Len(t, snap.Contributions, 1)
	assert.Equal(t, 1.0, snap.Contributions[0].Score)
	assert.Equal(t, 1.0, snap.Contributions[0].Confidence)
	assert.Equal(t, 1.0, snap.ConsensusScore)
	assert.Equal(t, 1.0, snap.ConsensusConfidence)
}

func TestAggregatePanicIsAbstention(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("boom", panicking))
	require.NoError(t, r.Register("steady", fixedVote(0.3, 0.8)))
	agg := NewAggregator(r)

	snap, err := agg.Aggregate(testVec("BTC-USD"), models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	require.NoError(t, err)
	require.Len(t, snap.Contributions, 1)
	assert.Equal(t, "steady", snap.Contributions[0].AgentID)
	assert.InDelta(t, 0.3, snap.ConsensusScore, 1e-9)
}

func TestAggregatePersistenceEWMA(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", fixedVote(0.6, 1)))
	agg := NewAggregator(r)

	prior := &models.SwarmSnapshot{Persistence: 0.5}
	snap, err := agg.Aggregate(testVec("BTC-USD"), models.GeometrySnapshot{}, models.AgentWeightState{}, prior)
	require.NoError(t, err)
	assert.InDelta(t, 0.7*0.5+0.3*0.6, snap.Persistence, 1e-9)
}

func TestAggregateDeterministic(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", fixedVote(0.25, 0.7)))
	require.NoError(t, r.Register("b", fixedVote(-0.4, 0.3)))
	agg := NewAggregator(r)

	vec := testVec("BTC-USD")
	first, err := agg.Aggregate(vec, models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	require.NoError(t, err)
	second, err := agg.Aggregate(vec, models.GeometrySnapshot{}, models.AgentWeightState{}, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewWeightStateUniform(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", fixedVote(0, 0)))
	require.NoError(t, r.Register("b", fixedVote(0, 0)))
	require.NoError(t, r.Register("c", fixedVote(0, 0)))

	now := time.Now().UTC()
	ws := NewWeightState("BTC-USD", r, now)
	assert.Equal(t, int64(1), ws.Version)
	assert.Equal(t, now, ws.LastUpdated)
	require.Len(t, ws.Weights, 3)
	for name, w := range ws.Weights {
		assert.InDelta(t, 1.0/3.0, w, 1e-9, name)
	}
}

func TestRosterRejectsDuplicates(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Register("a", fixedVote(0, 0)))
	assert.Error(t, r.Register("a", fixedVote(0, 0)))
	assert.Error(t, r.Register("", fixedVote(0, 0)))
	assert.Error(t, r.Register("b", nil))
	assert.Equal(t, []string{"a"}, r.Names())
}
