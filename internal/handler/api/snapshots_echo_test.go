package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "FieldPulse/internal/repository"
	"FieldPulse/internal/services/geometry"
	"FieldPulse/internal/services/statespace"
	"FieldPulse/internal/services/swarm"
	"FieldPulse/internal/usecase"
	xhttp "FieldPulse/pkg/http"
	xlogger "FieldPulse/pkg/logger"
)

const testBucket = 5 * time.Minute

// nopMetrics keeps handler tests off the global Prometheus registry.
type nopMetrics struct{}

func (nopMetrics) RecordStageDuration(string, float64)      {}
func (nopMetrics) RecordSnapshot(string, string)            {}
func (nopMetrics) RecordError(string)                       {}
func (nopMetrics) RecordConsensus(string, float64, float64) {}
func (nopMetrics) RecordAbstention(string)                  {}
func (nopMetrics) RecordQuality(string, string)             {}

func newTestHandler(t *testing.T) (*SnapshotsEchoHandler, *internalrepo.MemorySnapshotStore) {
	t.Helper()
	schema := statespace.FeatureSchema{
		Version:          "t1",
		Window:           10,
		PartialThreshold: 0.25,
		Features: []statespace.FeatureSpec{
			{Name: "spot_return", Source: "spot_return", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "anomaly_z", Source: "anomaly_score", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "flow_in", Source: "net_flow", Transform: statespace.TransformIdentity, Missing: statespace.MissingNeutral},
			{Name: "flow_axis", Transform: statespace.TransformMean, Inputs: []string{"flow_in"}},
			{Name: "leverage_axis", Transform: statespace.TransformMean, Inputs: []string{"flow_in"}},
		},
	}
	basis := geometry.ProjectionBasis{
		Version: "t1",
		Matrix:  [][]float64{{1, 0, 0, 0, 0}, {0, 0, 1, 0, 0}},
		Motifs: []geometry.Motif{
			{ID: "neutral_balance", Centroid: []float64{0, 0}, Radius: 100, TransitionProbs: map[string]float64{"continue": 0.7}},
		},
	}
	roster := swarm.DefaultRoster()
	store := internalrepo.NewMemorySnapshotStore()
	pipe := usecase.NewPipeline(
		store, internalrepo.NopPublisher{}, nopMetrics{},
		statespace.NewNormalizer(schema),
		geometry.NewProjector(basis, testBucket),
		swarm.NewAggregator(roster),
		roster, schema.Window, testBucket, usecase.NewSymbolLocks(),
	)
	return NewSnapshotsEchoHandler(xlogger.Nop(), store, pipe), store
}

func doGET(t *testing.T, h func(echo.Context) error, target string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))

	var body xhttp.APIResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func doPOST(t *testing.T, h func(echo.Context) error, target, payload string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))

	var body xhttp.APIResponse
	if rec.Code == http.StatusOK && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func ingestPayload(ts time.Time, ret float64) string {
	return fmt.Sprintf(`{
		"symbol": "BTC-USD",
		"timestamp": %q,
		"fields": {"spot_return": %g, "net_flow": 0.5, "anomaly_score": 0.5}
	}`, ts.Format(time.RFC3339), ret)
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	_, body := doGET(t, h.Health, "/healthz")
	assert.Equal(t, http.StatusOK, body.Status)
}

func TestLatestStateRequiresSymbol(t *testing.T) {
	h, _ := newTestHandler(t)
	_, body := doGET(t, h.LatestState, "/api/state/latest")
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestLatestStateNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	_, body := doGET(t, h.LatestState, "/api/state/latest?symbol=BTC-USD")
	assert.Equal(t, http.StatusNotFound, body.Status)
}

func TestIngestThenRead(t *testing.T) {
	h, _ := newTestHandler(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, body := doPOST(t, h.IngestRecord, "/api/records", ingestPayload(ts, 0.01))
	require.Equal(t, http.StatusOK, body.Status)

	_, body = doGET(t, h.LatestState, "/api/state/latest?symbol=BTC-USD")
	assert.Equal(t, http.StatusOK, body.Status)
	_, body = doGET(t, h.LatestGeometry, "/api/geometry/latest?symbol=BTC-USD")
	assert.Equal(t, http.StatusOK, body.Status)
	_, body = doGET(t, h.LatestSwarm, "/api/swarm/latest?symbol=BTC-USD")
	assert.Equal(t, http.StatusOK, body.Status)
	_, body = doGET(t, h.Weights, "/api/weights?symbol=BTC-USD")
	assert.Equal(t, http.StatusOK, body.Status)
}

func TestIngestRejectsBadTimestamp(t *testing.T) {
	h, _ := newTestHandler(t)
	payload := `{"symbol": "BTC-USD", "timestamp": "yesterday-ish", "fields": {"spot_return": 0.01}}`
	_, body := doPOST(t, h.IngestRecord, "/api/records", payload)
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestIngestRejectsMalformedRecord(t *testing.T) {
	h, _ := newTestHandler(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{
		"symbol": "BTC-USD",
		"timestamp": %q,
		"fields": {"spot_return": {"nested": true}}
	}`, ts.Format(time.RFC3339))

	_, body := doPOST(t, h.IngestRecord, "/api/records", payload)
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestIngestRateLimited(t *testing.T) {
	h, _ := newTestHandler(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var throttled bool
	for i := 0; i <= intakeBurst+2; i++ {
		rec, _ := doPOST(t, h.IngestRecord, "/api/records", ingestPayload(ts.Add(time.Duration(i)*testBucket), 0.01))
		if rec.Code == http.StatusTooManyRequests {
			throttled = true
			break
		}
	}
	assert.True(t, throttled, "burst above the bucket capacity must throttle")
}

func TestSwarmRange(t *testing.T) {
	h, _ := newTestHandler(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, body := doPOST(t, h.IngestRecord, "/api/records", ingestPayload(ts.Add(time.Duration(i)*testBucket), 0.01))
		require.Equal(t, http.StatusOK, body.Status)
	}

	target := fmt.Sprintf("/api/swarm/range?symbol=BTC-USD&from=%s&to=%s",
		ts.Format(time.RFC3339), ts.Add(time.Hour).Format(time.RFC3339))
	_, body := doGET(t, h.SwarmRange, target)
	require.Equal(t, http.StatusOK, body.Status)

	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, data["total"])

	_, body = doGET(t, h.SwarmRange, "/api/swarm/range?symbol=BTC-USD&from=bogus&to=alsobogus")
	assert.Equal(t, http.StatusBadRequest, body.Status)
}
