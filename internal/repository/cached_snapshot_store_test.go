package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldPulse/internal/domain/models"
	"FieldPulse/pkg/cache"
)

func sampleState(ts time.Time) models.StateVector {
	return models.StateVector{
		Timestamp:     ts,
		Symbol:        "BTC-USD",
		SchemaVersion: "1",
		Features:      []models.FeatureValue{{Name: "spot_return", Value: 0.01}},
		Quality:       models.QualityComplete,
	}
}

func TestCachedStoreWriteThrough(t *testing.T) {
	inner := NewMemorySnapshotStore()
	c := cache.NewMemoryCache()
	s := NewCachedSnapshotStore(inner, c, time.Minute)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutState(ctx, sampleState(ts)))

	// The write landed in the inner store and primed the cache entry.
	got, err := inner.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, got)

	var cached models.StateVector
	require.NoError(t, c.Get(ctx, "state:latest:BTC-USD", &cached))
	assert.Equal(t, "BTC-USD", cached.Symbol)

	fresh, err := s.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.True(t, fresh.Timestamp.Equal(ts))
}

func TestCachedStoreMissFallsThrough(t *testing.T) {
	inner := NewMemorySnapshotStore()
	s := NewCachedSnapshotStore(inner, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Seed the inner store directly so the first read is a cache miss.
	require.NoError(t, inner.PutState(ctx, sampleState(ts)))

	got, err := s.GetLatestState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, got)

	// The miss backfilled the cache.
	var cached models.StateVector
	assert.NoError(t, s.cache.Get(ctx, "state:latest:BTC-USD", &cached))
}

func TestCachedStoreEmptySymbol(t *testing.T) {
	s := NewCachedSnapshotStore(NewMemorySnapshotStore(), cache.NewMemoryCache(), time.Minute)
	got, err := s.GetLatestState(context.Background(), "ETH-USD")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing persisted yet")
}

func TestCachedStoreWeightState(t *testing.T) {
	inner := NewMemorySnapshotStore()
	s := NewCachedSnapshotStore(inner, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	ws := models.AgentWeightState{
		Symbol:  "BTC-USD",
		Weights: map[string]float64{"a": 0.6, "b": 0.4},
		Version: 2,
	}
	require.NoError(t, s.PutWeightState(ctx, ws))

	got, err := s.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
	assert.InDelta(t, 0.6, got.Weights["a"], 1e-12)
}

func TestCachedStoreHistoricalReadsBypassCache(t *testing.T) {
	inner := NewMemorySnapshotStore()
	s := NewCachedSnapshotStore(inner, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.PutState(ctx, sampleState(ts.Add(time.Duration(i)*5*time.Minute))))
	}

	recent, err := s.GetRecentStates(ctx, "BTC-USD", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.Before(recent[1].Timestamp), "ascending order")

	// Range reads are inclusive on both bounds and ascending.
	ranged, err := s.GetStateRange(ctx, "BTC-USD", ts.Add(5*time.Minute), ts.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.True(t, ranged[0].Timestamp.Equal(ts.Add(5*time.Minute)))
	assert.True(t, ranged[1].Timestamp.Equal(ts.Add(10*time.Minute)))
}
