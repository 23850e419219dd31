package swarm

import (
	"errors"
	"fmt"
	"time"

	"FieldPulse/internal/domain/models"
	applogger "FieldPulse/pkg/logger"
)

// ErrNoQuorum is returned when every agent in the roster abstained; no
// snapshot is fabricated in that case.
var ErrNoQuorum = errors.New("swarm: no quorum, all agents abstained")

const persistenceDecay = 0.7 // EWMA weight kept from the prior consensus

// Aggregator runs the roster against one bucket's state and geometry and
// combines the votes into a weighted consensus. Deterministic given
// identical inputs and weight state.
type Aggregator struct {
	roster *Roster
	l      *applogger.Logger
}

func NewAggregator(roster *Roster) *Aggregator {
	return &Aggregator{roster: roster}
}

// SetLogger injects a structured logger for clamp/abstention warnings.
func (a *Aggregator) SetLogger(l *applogger.Logger) { a.l = l }

// Roster returns the aggregator's agent roster.
func (a *Aggregator) Roster() *Roster { return a.roster }

// Aggregate combines the roster's votes. weights is a read-only borrow of the
// per-symbol weight state (uniform-initialized when empty); prior is the most
// recent persisted swarm snapshot, used only for the persistence EWMA.
func (a *Aggregator) Aggregate(vec models.StateVector, geo models.GeometrySnapshot, weights models.AgentWeightState, prior *models.SwarmSnapshot) (models.SwarmSnapshot, error) {
	base := ensureWeights(weights.Weights, a.roster.Names())

	votes := make([]models.AgentVote, 0, a.roster.Len())
	voteWeights := make([]float64, 0, a.roster.Len())
	for _, name := range a.roster.Names() {
		vote, err := a.call(name, vec, geo)
		if err != nil {
			if a.l != nil {
				a.l.Warn("agent abstained",
					applogger.String("agent", name),
					applogger.String("symbol", vec.Symbol),
					applogger.Error(err),
				)
			}
			continue
		}
		votes = append(votes, a.clampVote(vec.Symbol, vote))
		voteWeights = append(voteWeights, base[name])
	}
	if len(votes) == 0 {
		return models.SwarmSnapshot{}, ErrNoQuorum
	}

	// Abstaining agents drop out of the normalization denominator for this
	// call only; the weights used always sum to 1.
	var wsum float64
	for _, w := range voteWeights {
		wsum += w
	}
	used := make(map[string]float64, len(votes))
	for i, vote := range votes {
		voteWeights[i] /= wsum
		used[vote.AgentID] = voteWeights[i]
	}

	var num, den, csum float64
	for i, vote := range votes {
		wc := voteWeights[i] * vote.Confidence
		num += wc * vote.Score
		den += wc
		csum += wc // Σ w·c with Σ w = 1
	}
	var score float64
	if den > 0 {
		score = num / den
	} else {
		// Every confidence collapsed to zero; fall back to a simple average.
		for _, vote := range votes {
			score += vote.Score
		}
		score /= float64(len(votes))
	}
	score = clamp(score, -1, 1)
	confidence := clamp(csum, 0, 1)

	persistence := score
	if prior != nil {
		persistence = persistenceDecay*prior.Persistence + (1-persistenceDecay)*score
	}

	return models.SwarmSnapshot{
		Timestamp:           vec.Timestamp,
		Symbol:              vec.Symbol,
		ConsensusScore:      score,
		ConsensusConfidence: confidence,
		Persistence:         persistence,
		Contributions:       votes,
		WeightsUsed:         used,
		WeightsVersion:      weights.Version,
	}, nil
}

// call invokes one agent, converting panics into abstentions so a degenerate
// agent never takes down the round.
func (a *Aggregator) call(name string, vec models.StateVector, geo models.GeometrySnapshot) (vote models.AgentVote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", name, r)
		}
	}()
	fn := a.roster.fn(name)
	vote, err = fn(vec, geo)
	if err != nil {
		return models.AgentVote{}, err
	}
	vote.AgentID = name
	return vote, nil
}

// clampVote bounds an out-of-contract vote instead of dropping it; the
// anomaly is logged, not hidden.
func (a *Aggregator) clampVote(symbol string, vote models.AgentVote) models.AgentVote {
	clamped := vote
	clamped.Score = clamp(vote.Score, -1, 1)
	clamped.Confidence = clamp(vote.Confidence, 0, 1)
	if clamped != vote && a.l != nil {
		a.l.Warn("agent vote out of range",
			applogger.String("agent", vote.AgentID),
			applogger.String("symbol", symbol),
			applogger.Any("score", vote.Score),
			applogger.Any("confidence", vote.Confidence),
		)
	}
	return clamped
}

// ensureWeights fills missing roster entries, starting from uniform when the
// state is empty (first use for a symbol).
func ensureWeights(w map[string]float64, names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	uniform := 1.0 / float64(len(names))
	for _, n := range names {
		if v, ok := w[n]; ok && v > 0 {
			out[n] = v
		} else {
			out[n] = uniform
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewWeightState returns the uniform initial weight state for a symbol.
func NewWeightState(symbol string, roster *Roster, now time.Time) models.AgentWeightState {
	w := make(map[string]float64, roster.Len())
	uniform := 1.0 / float64(roster.Len())
	for _, n := range roster.Names() {
		w[n] = uniform
	}
	return models.AgentWeightState{Symbol: symbol, Weights: w, Version: 1, LastUpdated: now}
}
