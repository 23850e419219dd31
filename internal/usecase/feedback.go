package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "FieldPulse/internal/domain/repository"
	"FieldPulse/internal/services/swarm"
	applogger "FieldPulse/pkg/logger"
)

// FeedbackLoop applies realized-accuracy feedback to a symbol's agent weight
// state. It shares the pipeline's per-symbol lock so the read-modify-write
// never interleaves with a running bucket.
type FeedbackLoop struct {
	store   drepo.SnapshotStore
	metrics drepo.Metrics
	roster  *swarm.Roster
	locks   *SymbolLocks
	l       *applogger.Logger
}

func NewFeedbackLoop(store drepo.SnapshotStore, metrics drepo.Metrics, roster *swarm.Roster, locks *SymbolLocks) *FeedbackLoop {
	return &FeedbackLoop{store: store, metrics: metrics, roster: roster, locks: locks, l: applogger.Nop()}
}

func (f *FeedbackLoop) SetLogger(l *applogger.Logger) { f.l = l }

// Apply adapts the weight state from the realized outcome observed after the
// swarm snapshot at ts. A missing snapshot is not an error; feedback for
// buckets the swarm skipped is simply dropped.
func (f *FeedbackLoop) Apply(ctx context.Context, symbol string, ts time.Time, realized float64) error {
	unlock := f.locks.lock(symbol)
	defer unlock()

	past, err := f.store.GetSwarmAt(ctx, symbol, ts)
	if err != nil {
		f.metrics.RecordError("store_read")
		return fmt.Errorf("load swarm at %s: %w", ts.Format(time.RFC3339), err)
	}
	if past == nil {
		f.l.Debug("no swarm snapshot for feedback",
			applogger.String("symbol", symbol),
			applogger.String("ts", ts.Format(time.RFC3339)),
		)
		return nil
	}

	state, err := f.store.GetWeightState(ctx, symbol)
	if err != nil {
		f.metrics.RecordError("store_read")
		return fmt.Errorf("load weight state: %w", err)
	}
	if state == nil {
		ws := swarm.NewWeightState(symbol, f.roster, ts)
		state = &ws
	}

	next, err := swarm.UpdateWeights(*past, realized, *state)
	if err != nil {
		f.metrics.RecordError("feedback")
		return fmt.Errorf("update weights: %w", err)
	}
	if err := f.store.PutWeightState(ctx, next); err != nil {
		f.metrics.RecordError("store_write")
		return fmt.Errorf("persist weight state: %w", err)
	}

	f.l.Info("weights adapted",
		applogger.String("symbol", symbol),
		applogger.Int64("version", next.Version),
		applogger.Float64("realized", realized),
	)
	return nil
}
