package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldPulse/internal/domain/models"
	internalrepo "FieldPulse/internal/repository"
	"FieldPulse/internal/services/geometry"
	"FieldPulse/internal/services/statespace"
	"FieldPulse/internal/services/swarm"
)

const testBucket = 5 * time.Minute

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// nopMetrics satisfies the metrics contract without a registry, so tests do
// not collide on global Prometheus collectors.
type nopMetrics struct{}

func (nopMetrics) RecordStageDuration(string, float64)      {}
func (nopMetrics) RecordSnapshot(string, string)            {}
func (nopMetrics) RecordError(string)                       {}
func (nopMetrics) RecordConsensus(string, float64, float64) {}
func (nopMetrics) RecordAbstention(string)                  {}
func (nopMetrics) RecordQuality(string, string)             {}

func pipelineSchema() statespace.FeatureSchema {
	return statespace.FeatureSchema{
		Version:          "t1",
		Window:           10,
		PartialThreshold: 0.25,
		Features: []statespace.FeatureSpec{
			{Name: "spot_return", Source: "spot_return", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "anomaly_z", Source: "anomaly_score", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "flow_in", Source: "net_flow", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "lev_in", Source: "funding", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "flow_axis", Transform: statespace.TransformMean, Inputs: []string{"flow_in"}},
			{Name: "leverage_axis", Transform: statespace.TransformMean, Inputs: []string{"lev_in"}},
		},
	}
}

func pipelineBasis() geometry.ProjectionBasis {
	return geometry.ProjectionBasis{
		Version: "t1",
		Matrix: [][]float64{
			{1, 0, 0, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
		},
		Motifs: []geometry.Motif{
			{ID: "neutral_balance", Centroid: []float64{0, 0}, Radius: 100, TransitionProbs: map[string]float64{"continue": 0.7}},
		},
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *internalrepo.MemorySnapshotStore, *swarm.Roster, *SymbolLocks) {
	t.Helper()
	schema := pipelineSchema()
	roster := swarm.DefaultRoster()
	store := internalrepo.NewMemorySnapshotStore()
	locks := NewSymbolLocks()
	pipe := NewPipeline(
		store, internalrepo.NopPublisher{}, nopMetrics{},
		statespace.NewNormalizer(schema),
		geometry.NewProjector(pipelineBasis(), testBucket),
		swarm.NewAggregator(roster),
		roster, schema.Window, testBucket, locks,
	)
	return pipe, store, roster, locks
}

func record(ts time.Time, ret, flow, anomaly, funding float64) models.RawMarketRecord {
	return models.RawMarketRecord{
		Timestamp: ts,
		Symbol:    "BTC-USD",
		Fields: map[string]any{
			"spot_return":   ret,
			"net_flow":      flow,
			"anomaly_score": anomaly,
			"funding":       funding,
		},
	}
}

func TestRunBucketPersistsAllStages(t *testing.T) {
	pipe, store, roster, _ := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, -0.3)))

	state, err := store.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.QualityComplete, state.Quality)
	assert.Equal(t, testStart, state.Timestamp)

	geo, err := store.GetLatestGeometry(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, geo)
	assert.Equal(t, "neutral_balance", geo.Motif)
	assert.InDelta(t, 0.01, geo.Coordinates[0], 1e-12)
	assert.InDelta(t, 0.5, geo.Coordinates[1], 1e-12)

	snap, err := store.GetLatestSwarm(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.WeightsVersion)
	assert.Greater(t, snap.ConsensusScore, 0.0)

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(1), ws.Version)
	for _, name := range roster.Names() {
		assert.InDelta(t, 1.0/float64(roster.Len()), ws.Weights[name], 1e-9, name)
	}
}

func TestRunBucketAlignsTimestamp(t *testing.T) {
	pipe, store, _, _ := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, pipe.RunBucket(ctx, record(testStart.Add(90*time.Second), 0.01, 0.5, 0.5, 0)))

	state, err := store.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, testStart, state.Timestamp)
}

func TestRunBucketConsecutiveBucketsDrift(t *testing.T) {
	pipe, store, _, _ := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, 0)))
	require.NoError(t, pipe.RunBucket(ctx, record(testStart.Add(testBucket), 0.02, 0.8, 0.5, 0)))

	geo, err := store.GetLatestGeometry(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, geo)
	assert.False(t, geo.Discontinuity)
	assert.Greater(t, geo.Drift.Magnitude, 0.0)
}

func TestRunBucketGapMarksDiscontinuity(t *testing.T) {
	pipe, store, _, _ := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, 0)))
	require.NoError(t, pipe.RunBucket(ctx, record(testStart.Add(3*testBucket), 0.02, 0.8, 0.5, 0)))

	geo, err := store.GetLatestGeometry(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, geo)
	assert.True(t, geo.Discontinuity)
	assert.Zero(t, geo.Drift.Magnitude)
}

func TestRunBucketSchemaMismatchRejectsRecord(t *testing.T) {
	pipe, store, _, _ := newTestPipeline(t)
	ctx := context.Background()

	raw := record(testStart, 0.01, 0.5, 0.5, 0)
	raw.Fields["spot_return"] = map[string]any{"oops": true}

	err := pipe.RunBucket(ctx, raw)
	var mismatch *statespace.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))

	state, err := store.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Nil(t, state, "rejected records leave nothing behind")
}

func TestRunBucketNoQuorumStillPersistsStateAndGeometry(t *testing.T) {
	schema := pipelineSchema()
	roster := swarm.NewRoster()
	require.NoError(t, roster.Register("mute", func(models.StateVector, models.GeometrySnapshot) (models.AgentVote, error) {
		return models.AgentVote{}, errors.New("nothing to say")
	}))
	store := internalrepo.NewMemorySnapshotStore()
	pipe := NewPipeline(
		store, internalrepo.NopPublisher{}, nopMetrics{},
		statespace.NewNormalizer(schema),
		geometry.NewProjector(pipelineBasis(), testBucket),
		swarm.NewAggregator(roster),
		roster, schema.Window, testBucket, NewSymbolLocks(),
	)
	ctx := context.Background()

	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, 0)))

	state, err := store.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.NotNil(t, state)
	geo, err := store.GetLatestGeometry(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.NotNil(t, geo)
	snap, err := store.GetLatestSwarm(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Nil(t, snap, "no snapshot is fabricated when every agent abstains")

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.NotNil(t, ws, "weights are still initialized for the symbol")
}
