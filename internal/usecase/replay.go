package usecase

import (
	"context"
	"fmt"
	"time"

	"FieldPulse/internal/domain/models"
	drepo "FieldPulse/internal/domain/repository"
	"FieldPulse/internal/services/features"
	applogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/util"
)

// ReplayReport summarizes one backtest run over historical records.
type ReplayReport struct {
	Symbol          string  `json:"symbol"`
	Buckets         int     `json:"buckets"`
	Rejected        int     `json:"rejected"`
	FeedbackApplied int     `json:"feedback_applied"`
	Hits            int     `json:"hits"`
	Misses          int     `json:"misses"`
	HitRate         float64 `json:"hit_rate"`
}

// Replayer drives the pipeline over historical raw records and closes the
// feedback loop as outcomes become observable. After each bucket, the bucket
// one horizon behind it has its realized outcome computed from the spot
// returns that followed it, so weight adaptation influences later buckets the
// same way it would live. Records that carry OHLCV closes instead of
// precomputed returns get spot_return and realized_vol derived from the
// trailing close series.
type Replayer struct {
	pipe     *Pipeline
	feedback *FeedbackLoop
	store    drepo.SnapshotStore
	horizon  int
	bucket   time.Duration
	l        *applogger.Logger
}

func NewReplayer(pipe *Pipeline, feedback *FeedbackLoop, store drepo.SnapshotStore, horizon int, bucket time.Duration) *Replayer {
	return &Replayer{
		pipe:     pipe,
		feedback: feedback,
		store:    store,
		horizon:  horizon,
		bucket:   bucket,
		l:        applogger.Nop(),
	}
}

func (r *Replayer) SetLogger(l *applogger.Logger) { r.l = l }

// Run replays records (ascending by timestamp) for one symbol.
func (r *Replayer) Run(ctx context.Context, symbol string, records []models.RawMarketRecord) (ReplayReport, error) {
	report := ReplayReport{Symbol: symbol}

	var closes []float64
	for _, raw := range records {
		if raw.Symbol != symbol {
			return report, fmt.Errorf("replay: record for %s in %s run", raw.Symbol, symbol)
		}
		if c, ok := closeValue(raw.Fields); ok {
			closes = append(closes, c)
			if len(closes) > r.pipe.window+1 {
				closes = closes[1:]
			}
			features.DeriveSpotFields(raw.Fields, closes, r.pipe.window, r.bucket)
		}
		if err := r.pipe.RunBucket(ctx, raw); err != nil {
			report.Rejected++
			r.l.Warn("replay bucket rejected",
				applogger.String("symbol", symbol),
				applogger.String("ts", raw.Timestamp.Format(time.RFC3339)),
				applogger.Error(err),
			)
			continue
		}
		report.Buckets++

		ts := util.AlignBucket(raw.Timestamp.UTC(), r.bucket)
		past := ts.Add(-time.Duration(r.horizon) * r.bucket)
		if err := r.score(ctx, symbol, past, &report); err != nil {
			return report, err
		}
	}

	if report.Hits+report.Misses > 0 {
		report.HitRate = float64(report.Hits) / float64(report.Hits+report.Misses)
	}
	r.l.Info("replay complete",
		applogger.String("symbol", symbol),
		applogger.Int("buckets", report.Buckets),
		applogger.Int("rejected", report.Rejected),
		applogger.Float64("hit_rate", report.HitRate),
	)
	return report, nil
}

// score computes the realized outcome for the bucket at ts from the spot
// returns of the horizon buckets after it, applies feedback, and tallies
// directional hits.
func (r *Replayer) score(ctx context.Context, symbol string, ts time.Time, report *ReplayReport) error {
	past, err := r.store.GetSwarmAt(ctx, symbol, ts)
	if err != nil {
		return fmt.Errorf("replay: load swarm at %s: %w", ts.Format(time.RFC3339), err)
	}
	if past == nil {
		return nil
	}

	end := ts.Add(time.Duration(r.horizon) * r.bucket)
	states, err := r.store.GetStateRange(ctx, symbol, ts.Add(r.bucket), end)
	if err != nil {
		return fmt.Errorf("replay: load horizon states: %w", err)
	}
	returns := make([]float64, 0, r.horizon)
	for _, st := range states {
		if v, ok := st.Value(features.FieldSpotReturn); ok {
			returns = append(returns, v)
		}
	}
	if len(returns) < r.horizon {
		return nil
	}

	realized := features.RealizedOutcome(returns)
	if err := r.feedback.Apply(ctx, symbol, ts, realized); err != nil {
		return fmt.Errorf("replay: feedback at %s: %w", ts.Format(time.RFC3339), err)
	}
	report.FeedbackApplied++

	if past.ConsensusScore != 0 && realized != 0 {
		if (past.ConsensusScore > 0) == (realized > 0) {
			report.Hits++
		} else {
			report.Misses++
		}
	}
	return nil
}

func closeValue(fields map[string]any) (float64, bool) {
	switch v := fields[features.FieldClose].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
