package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FieldPulse/internal/domain/models"
	drepo "FieldPulse/internal/domain/repository"
	dservice "FieldPulse/internal/domain/service"
	"FieldPulse/internal/services/statespace"
	"FieldPulse/internal/services/swarm"
	applogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/queue"
	"FieldPulse/pkg/util"
)

// Pipeline runs the three stages for one bucket of one symbol: normalize the
// raw record into a state vector, project it into latent geometry, then
// aggregate the agent swarm into a consensus snapshot. Each stage persists
// and publishes before the next stage starts, so a failure mid-bucket leaves
// a consistent prefix behind.
type Pipeline struct {
	store      drepo.SnapshotStore
	pub        drepo.Publisher
	metrics    drepo.Metrics
	normalizer dservice.Normalizer
	projector  dservice.Projector
	aggregator dservice.Aggregator
	roster     *swarm.Roster
	window     int
	bucket     time.Duration
	locks      *SymbolLocks
	sched      queue.QueueService
	horizon    int
	l          *applogger.Logger
}

func NewPipeline(
	store drepo.SnapshotStore,
	pub drepo.Publisher,
	metrics drepo.Metrics,
	normalizer dservice.Normalizer,
	projector dservice.Projector,
	aggregator dservice.Aggregator,
	roster *swarm.Roster,
	window int,
	bucket time.Duration,
	locks *SymbolLocks,
) *Pipeline {
	return &Pipeline{
		store:      store,
		pub:        pub,
		metrics:    metrics,
		normalizer: normalizer,
		projector:  projector,
		aggregator: aggregator,
		roster:     roster,
		window:     window,
		bucket:     bucket,
		locks:      locks,
		l:          applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (p *Pipeline) SetLogger(l *applogger.Logger) { p.l = l }

// SetScheduler enables deferred feedback: after each swarm snapshot a
// feedback job is scheduled for when the realized outcome becomes
// observable, horizon buckets later.
func (p *Pipeline) SetScheduler(sched queue.QueueService, horizon int) {
	p.sched = sched
	p.horizon = horizon
}

// RunBucket processes one raw record end to end. Buckets for one symbol run
// serially; different symbols run independently. An all-abstain swarm round
// is not an error for the bucket: state and geometry are still persisted,
// only the swarm snapshot is skipped.
func (p *Pipeline) RunBucket(ctx context.Context, raw models.RawMarketRecord) error {
	unlock := p.locks.lock(raw.Symbol)
	defer unlock()

	raw.Timestamp = util.AlignBucket(raw.Timestamp.UTC(), p.bucket)

	vec, err := p.normalize(ctx, raw)
	if err != nil {
		return err
	}

	geo, err := p.project(ctx, vec)
	if err != nil {
		return err
	}

	if err := p.aggregate(ctx, vec, geo); err != nil {
		return err
	}

	p.l.Info("bucket complete",
		applogger.String("symbol", raw.Symbol),
		applogger.String("ts", raw.Timestamp.Format(time.RFC3339)),
	)
	return nil
}

func (p *Pipeline) normalize(ctx context.Context, raw models.RawMarketRecord) (models.StateVector, error) {
	start := time.Now()

	history, err := p.store.GetRecentStates(ctx, raw.Symbol, p.window)
	if err != nil {
		p.metrics.RecordError("store_read")
		return models.StateVector{}, fmt.Errorf("load state window: %w", err)
	}

	vec, err := p.normalizer.Normalize(raw, history)
	if err != nil {
		var schemaErr *statespace.SchemaMismatchError
		if errors.As(err, &schemaErr) {
			p.metrics.RecordError("schema_mismatch")
			p.l.Error("record rejected",
				applogger.String("symbol", raw.Symbol),
				applogger.String("field", schemaErr.Field),
				applogger.Error(err),
			)
		} else {
			p.metrics.RecordError("normalize")
		}
		return models.StateVector{}, fmt.Errorf("normalize %s: %w", raw.Symbol, err)
	}

	if err := p.store.PutState(ctx, vec); err != nil {
		p.metrics.RecordError("store_write")
		return models.StateVector{}, fmt.Errorf("persist state: %w", err)
	}
	if err := p.pub.PublishState(ctx, vec); err != nil {
		// Publishing is best effort; the store is the source of truth.
		p.metrics.RecordError("publish")
		p.l.Warn("state publish failed", applogger.String("symbol", vec.Symbol), applogger.Error(err))
	}

	p.metrics.RecordStageDuration("normalize", time.Since(start).Seconds())
	p.metrics.RecordSnapshot("state", vec.Symbol)
	p.metrics.RecordQuality(vec.Symbol, string(vec.Quality))
	return vec, nil
}

func (p *Pipeline) project(ctx context.Context, vec models.StateVector) (models.GeometrySnapshot, error) {
	start := time.Now()

	prior, err := p.store.GetLatestGeometry(ctx, vec.Symbol)
	if err != nil {
		p.metrics.RecordError("store_read")
		return models.GeometrySnapshot{}, fmt.Errorf("load prior geometry: %w", err)
	}

	geo, err := p.projector.Project(vec, prior)
	if err != nil {
		p.metrics.RecordError("project")
		return models.GeometrySnapshot{}, fmt.Errorf("project %s: %w", vec.Symbol, err)
	}

	if err := p.store.PutGeometry(ctx, geo); err != nil {
		p.metrics.RecordError("store_write")
		return models.GeometrySnapshot{}, fmt.Errorf("persist geometry: %w", err)
	}
	if err := p.pub.PublishGeometry(ctx, geo); err != nil {
		p.metrics.RecordError("publish")
		p.l.Warn("geometry publish failed", applogger.String("symbol", geo.Symbol), applogger.Error(err))
	}

	p.metrics.RecordStageDuration("project", time.Since(start).Seconds())
	p.metrics.RecordSnapshot("geometry", geo.Symbol)
	return geo, nil
}

func (p *Pipeline) aggregate(ctx context.Context, vec models.StateVector, geo models.GeometrySnapshot) error {
	start := time.Now()

	weights, err := p.store.GetWeightState(ctx, vec.Symbol)
	if err != nil {
		p.metrics.RecordError("store_read")
		return fmt.Errorf("load weight state: %w", err)
	}
	if weights == nil {
		ws := swarm.NewWeightState(vec.Symbol, p.roster, vec.Timestamp)
		if err := p.store.PutWeightState(ctx, ws); err != nil {
			p.metrics.RecordError("store_write")
			return fmt.Errorf("persist initial weights: %w", err)
		}
		weights = &ws
	}

	prior, err := p.store.GetLatestSwarm(ctx, vec.Symbol)
	if err != nil {
		p.metrics.RecordError("store_read")
		return fmt.Errorf("load prior swarm: %w", err)
	}

	snap, err := p.aggregator.Aggregate(vec, geo, *weights, prior)
	if err != nil {
		if errors.Is(err, swarm.ErrNoQuorum) {
			p.metrics.RecordError("no_quorum")
			p.l.Warn("swarm skipped, all agents abstained",
				applogger.String("symbol", vec.Symbol),
				applogger.String("ts", vec.Timestamp.Format(time.RFC3339)),
			)
			return nil
		}
		p.metrics.RecordError("aggregate")
		return fmt.Errorf("aggregate %s: %w", vec.Symbol, err)
	}

	for _, name := range p.roster.Names() {
		if _, ok := snap.WeightsUsed[name]; !ok {
			p.metrics.RecordAbstention(name)
		}
	}

	if err := p.store.PutSwarm(ctx, snap); err != nil {
		p.metrics.RecordError("store_write")
		return fmt.Errorf("persist swarm: %w", err)
	}
	if err := p.pub.PublishSwarm(ctx, snap); err != nil {
		p.metrics.RecordError("publish")
		p.l.Warn("swarm publish failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
	}

	p.metrics.RecordStageDuration("aggregate", time.Since(start).Seconds())
	p.metrics.RecordSnapshot("swarm", snap.Symbol)
	p.metrics.RecordConsensus(snap.Symbol, snap.ConsensusScore, snap.ConsensusConfidence)

	if p.sched != nil {
		due := snap.Timestamp.Add(time.Duration(p.horizon) * p.bucket)
		payload := FeedbackPayload{Symbol: snap.Symbol, Timestamp: snap.Timestamp}
		if err := p.sched.ScheduleMessage(ctx, FeedbackJobType, payload, due); err != nil {
			p.metrics.RecordError("schedule")
			p.l.Warn("feedback schedule failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
		}
	}
	return nil
}
