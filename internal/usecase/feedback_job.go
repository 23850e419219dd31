package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "FieldPulse/internal/domain/repository"
	"FieldPulse/internal/services/features"
	"FieldPulse/pkg/queue"
)

// FeedbackJobType is the queue message type carrying deferred feedback work.
const FeedbackJobType = "feedback.evaluate"

// FeedbackPayload identifies the swarm snapshot whose outcome is due.
type FeedbackPayload struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
}

// FeedbackJob evaluates the realized outcome for a past swarm snapshot and
// feeds it into weight adaptation. The outcome is the squashed sum of the
// spot returns over the horizon buckets that followed the snapshot. When the
// horizon has not fully arrived yet the job fails, and the queue's retry
// schedule tries again later.
type FeedbackJob struct {
	feedback *FeedbackLoop
	store    drepo.SnapshotStore
	horizon  int
	bucket   time.Duration
}

func NewFeedbackJob(feedback *FeedbackLoop, store drepo.SnapshotStore, horizon int, bucket time.Duration) *FeedbackJob {
	return &FeedbackJob{feedback: feedback, store: store, horizon: horizon, bucket: bucket}
}

func (j *FeedbackJob) Name() string { return "feedback-evaluate" }

func (j *FeedbackJob) Type() string { return FeedbackJobType }

func (j *FeedbackJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[FeedbackPayload](payload)
	if err != nil {
		return fmt.Errorf("feedback payload: %w", err)
	}

	realized, ok, err := j.realizedOutcome(ctx, p.Symbol, p.Timestamp)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("outcome for %s at %s not observable yet", p.Symbol, p.Timestamp.Format(time.RFC3339))
	}
	return j.feedback.Apply(ctx, p.Symbol, p.Timestamp, realized)
}

// realizedOutcome collects spot returns from the horizon states strictly
// after ts. The read is a time range, so queue delivery lagging behind the
// horizon cannot slide the needed buckets out of reach. ok is false until
// all horizon buckets are persisted.
func (j *FeedbackJob) realizedOutcome(ctx context.Context, symbol string, ts time.Time) (float64, bool, error) {
	end := ts.Add(time.Duration(j.horizon) * j.bucket)
	states, err := j.store.GetStateRange(ctx, symbol, ts.Add(j.bucket), end)
	if err != nil {
		return 0, false, fmt.Errorf("load horizon states: %w", err)
	}

	returns := make([]float64, 0, j.horizon)
	for _, st := range states {
		if v, ok := st.Value(features.FieldSpotReturn); ok {
			returns = append(returns, v)
		}
	}
	if len(returns) < j.horizon {
		return 0, false, nil
	}
	return features.RealizedOutcome(returns), true, nil
}

var _ queue.Job = (*FeedbackJob)(nil)
