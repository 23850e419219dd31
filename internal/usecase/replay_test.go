package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldPulse/internal/domain/models"
)

type capturedSchedule struct {
	msgType string
	payload interface{}
	at      time.Time
}

type fakeScheduler struct {
	scheduled []capturedSchedule
}

func (f *fakeScheduler) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	f.scheduled = append(f.scheduled, capturedSchedule{msgType: msgType, payload: payload, at: time.Now()})
	return nil
}

func (f *fakeScheduler) ScheduleMessage(ctx context.Context, msgType string, payload interface{}, at time.Time) error {
	f.scheduled = append(f.scheduled, capturedSchedule{msgType: msgType, payload: payload, at: at})
	return nil
}

func TestPipelineSchedulesDeferredFeedback(t *testing.T) {
	pipe, _, _, _ := newTestPipeline(t)
	sched := &fakeScheduler{}
	pipe.SetScheduler(sched, 3)
	ctx := context.Background()

	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, 0)))

	require.Len(t, sched.scheduled, 1)
	job := sched.scheduled[0]
	assert.Equal(t, FeedbackJobType, job.msgType)
	assert.Equal(t, testStart.Add(3*testBucket), job.at)
	payload, ok := job.payload.(FeedbackPayload)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", payload.Symbol)
	assert.Equal(t, testStart, payload.Timestamp)
}

func TestFeedbackLoopAdaptsWeights(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	ctx := context.Background()
	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, -0.3)))

	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	require.NoError(t, feedback.Apply(ctx, "BTC-USD", testStart, 0.9))

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(2), ws.Version)

	var sum float64
	for _, w := range ws.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// motif_bias voted with more confidence than anomaly_guard, so an aligned
	// outcome moves its weight further.
	assert.Greater(t, ws.Weights["motif_bias"], ws.Weights["anomaly_guard"])
}

func TestFeedbackLoopMissingSnapshotIsNoop(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	ctx := context.Background()
	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.01, 0.5, 0.5, 0)))

	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	require.NoError(t, feedback.Apply(ctx, "BTC-USD", testStart.Add(7*testBucket), 0.9))

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(1), ws.Version, "feedback without a snapshot is dropped")
}

func TestFeedbackJobRetriesUntilObservable(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	ctx := context.Background()
	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	job := NewFeedbackJob(feedback, store, 2, testBucket)

	require.NoError(t, pipe.RunBucket(ctx, record(testStart, 0.05, 0.5, 0.5, 0)))
	require.NoError(t, pipe.RunBucket(ctx, record(testStart.Add(testBucket), 0.05, 0.5, 0.5, 0)))

	// Only one of the two horizon buckets has arrived.
	err := job.Handle(ctx, FeedbackPayload{Symbol: "BTC-USD", Timestamp: testStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not observable")

	require.NoError(t, pipe.RunBucket(ctx, record(testStart.Add(2*testBucket), 0.05, 0.5, 0.5, 0)))
	require.NoError(t, job.Handle(ctx, FeedbackPayload{Symbol: "BTC-USD", Timestamp: testStart}))

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(2), ws.Version)
}

func TestFeedbackJobObservableAfterDeliveryLag(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	ctx := context.Background()
	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	job := NewFeedbackJob(feedback, store, 2, testBucket)

	// Many buckets land before the job for the first one is delivered; the
	// horizon states must still be reachable.
	for i := 0; i < 12; i++ {
		require.NoError(t, pipe.RunBucket(ctx, record(testStart.Add(time.Duration(i)*testBucket), 0.05, 0.5, 0.5, 0)))
	}

	require.NoError(t, job.Handle(ctx, FeedbackPayload{Symbol: "BTC-USD", Timestamp: testStart}))

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(2), ws.Version)
}

func TestReplayerScoresHorizon(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	replayer := NewReplayer(pipe, feedback, store, 3, testBucket)
	ctx := context.Background()

	records := make([]models.RawMarketRecord, 0, 10)
	for i := 0; i < 10; i++ {
		// Persistent positive returns with positive flow: the consensus and
		// the realized outcome agree on every scored bucket.
		records = append(records, record(testStart.Add(time.Duration(i)*testBucket), 0.05, 0.5, 0.5, -0.3))
	}

	report, err := replayer.Run(ctx, "BTC-USD", records)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Buckets)
	assert.Zero(t, report.Rejected)
	assert.Equal(t, 7, report.FeedbackApplied)
	assert.Equal(t, 7, report.Hits)
	assert.Zero(t, report.Misses)
	assert.InDelta(t, 1.0, report.HitRate, 1e-12)

	ws, err := store.GetWeightState(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(8), ws.Version, "one adaptation per scored bucket")
}

func TestReplayerDerivesSpotFieldsFromCloses(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	replayer := NewReplayer(pipe, feedback, store, 3, testBucket)
	ctx := context.Background()

	closes := []float64{100, 110, 99}
	records := make([]models.RawMarketRecord, 0, len(closes))
	for i, c := range closes {
		records = append(records, models.RawMarketRecord{
			Timestamp: testStart.Add(time.Duration(i) * testBucket),
			Symbol:    "BTC-USD",
			Fields: map[string]any{
				"close":         c,
				"net_flow":      0.5,
				"anomaly_score": 0.5,
				"funding":       0.0,
			},
		})
	}

	report, err := replayer.Run(ctx, "BTC-USD", records)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Buckets)

	states, err := store.GetRecentStates(ctx, "BTC-USD", 3)
	require.NoError(t, err)
	require.Len(t, states, 3)

	// The first bucket has no prior close, so the missing policy fills zero.
	v0, ok := states[0].Value("spot_return")
	require.True(t, ok)
	assert.Zero(t, v0)
	v1, _ := states[1].Value("spot_return")
	assert.InDelta(t, math.Log(1.1), v1, 1e-12)
	v2, _ := states[2].Value("spot_return")
	assert.InDelta(t, math.Log(0.9), v2, 1e-12)
}

func TestReplayerRejectsForeignSymbols(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	replayer := NewReplayer(pipe, feedback, store, 3, testBucket)

	rec := record(testStart, 0.01, 0.5, 0.5, 0)
	rec.Symbol = "ETH-USD"
	_, err := replayer.Run(context.Background(), "BTC-USD", []models.RawMarketRecord{rec})
	assert.Error(t, err)
}

func TestReplayerCountsRejectedBuckets(t *testing.T) {
	pipe, store, roster, locks := newTestPipeline(t)
	feedback := NewFeedbackLoop(store, nopMetrics{}, roster, locks)
	replayer := NewReplayer(pipe, feedback, store, 3, testBucket)

	good := record(testStart, 0.01, 0.5, 0.5, 0)
	bad := record(testStart.Add(testBucket), 0.01, 0.5, 0.5, 0)
	bad.Fields["spot_return"] = map[string]any{"oops": true}

	report, err := replayer.Run(context.Background(), "BTC-USD", []models.RawMarketRecord{good, bad})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Buckets)
	assert.Equal(t, 1, report.Rejected)
}

// Guard against accidental drift between the test fixtures and the agents
// that read named features.
func TestPipelineSchemaFeedsDefaultRoster(t *testing.T) {
	schema := pipelineSchema()
	names := make(map[string]bool, schema.Len())
	for _, f := range schema.Features {
		names[f.Name] = true
	}
	for _, want := range []string{"flow_axis", "leverage_axis", "anomaly_z", "spot_return"} {
		assert.True(t, names[want], want)
	}
}
