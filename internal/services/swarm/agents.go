package swarm

import (
	"fmt"
	"math"

	"FieldPulse/internal/domain/models"
)

// Built-in roster: many cheap, independent heuristics rather than one heavy
// model. Each reads a handful of named features or the geometry snapshot and
// abstains when its inputs are unavailable.

// DefaultRoster registers the built-in agents in a fixed order.
func DefaultRoster() *Roster {
	r := NewRoster()
	_ = r.Register("drift_momentum", DriftMomentum)
	_ = r.Register("flow_pressure", FlowPressure)
	_ = r.Register("motif_bias", MotifBias)
	_ = r.Register("anomaly_guard", AnomalyGuard)
	_ = r.Register("leverage_regime", LeverageRegime)
	return r
}

// DriftMomentum votes with the primary latent axis of the current drift.
func DriftMomentum(_ models.StateVector, geo models.GeometrySnapshot) (models.AgentVote, error) {
	if geo.Discontinuity {
		return models.AgentVote{}, fmt.Errorf("drift unreliable across history gap")
	}
	if len(geo.Drift.Direction) == 0 {
		return models.AgentVote{}, fmt.Errorf("drift direction undefined")
	}
	strength := math.Tanh(geo.Drift.Magnitude)
	return models.AgentVote{
		Score:      geo.Drift.Direction[0] * strength,
		Confidence: math.Min(1, 0.3+0.5*strength),
	}, nil
}

// FlowPressure votes with the composite exchange-flow axis.
func FlowPressure(vec models.StateVector, _ models.GeometrySnapshot) (models.AgentVote, error) {
	v, ok := vec.Value("flow_axis")
	if !ok {
		return models.AgentVote{}, fmt.Errorf("feature flow_axis unavailable")
	}
	s := math.Tanh(v)
	return models.AgentVote{
		Score:      s,
		Confidence: math.Min(1, 0.3+0.6*math.Abs(s)),
	}, nil
}

// motifScores encodes the directional lean of each cataloged regime.
var motifScores = map[string]float64{
	"calm_leverage_build": 0.1,
	"grinding_squeeze":    0.45,
	"panic_unwind":        -0.6,
	"neutral_balance":     0.05,
}

// MotifBias votes the historical lean of the classified regime and abstains
// outside the catalog.
func MotifBias(_ models.StateVector, geo models.GeometrySnapshot) (models.AgentVote, error) {
	score, ok := motifScores[geo.Motif]
	if !ok {
		return models.AgentVote{}, fmt.Errorf("motif %q has no recorded bias", geo.Motif)
	}
	conf := 0.4
	if len(geo.TransitionProbs) > 0 {
		var sum float64
		for _, p := range geo.TransitionProbs {
			sum += p
		}
		conf = sum / float64(len(geo.TransitionProbs))
	}
	return models.AgentVote{Score: score, Confidence: conf}, nil
}

// AnomalyGuard leans negative when the anomaly z-score leaves its normal
// band; inside the band it is a weak calm signal.
func AnomalyGuard(vec models.StateVector, _ models.GeometrySnapshot) (models.AgentVote, error) {
	z, ok := vec.Value("anomaly_z")
	if !ok {
		return models.AgentVote{}, fmt.Errorf("feature anomaly_z unavailable")
	}
	az := math.Abs(z)
	if az <= 1 {
		return models.AgentVote{Score: 0.1, Confidence: 0.2}, nil
	}
	return models.AgentVote{
		Score:      -math.Min(1, (az-1)/2),
		Confidence: math.Min(1, az/3),
	}, nil
}

// LeverageRegime fades a crowded derivatives posture.
func LeverageRegime(vec models.StateVector, _ models.GeometrySnapshot) (models.AgentVote, error) {
	v, ok := vec.Value("leverage_axis")
	if !ok {
		return models.AgentVote{}, fmt.Errorf("feature leverage_axis unavailable")
	}
	return models.AgentVote{Score: -math.Tanh(v), Confidence: 0.55}, nil
}
