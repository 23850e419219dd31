package swarm

import (
	"fmt"
	"math"
	"time"

	"FieldPulse/internal/domain/models"
)

const (
	// WeightFloor keeps every agent revivable: no weight ever reaches zero.
	WeightFloor = 0.01
	// learningRate bounds the per-step multiplicative move.
	learningRate = 0.25
)

// UpdateWeights adapts the weight state from realized-accuracy feedback for a
// past snapshot. Agents that voted with the realized direction gain weight
// multiplicatively, opposed agents lose it, abstainers are untouched; the
// result is renormalized to sum 1 with every weight at or above the floor.
// Deterministic given identical feedback. The input state is not mutated.
func UpdateWeights(past models.SwarmSnapshot, realized float64, state models.AgentWeightState) (models.AgentWeightState, error) {
	if len(state.Weights) == 0 {
		return state, fmt.Errorf("update weights: empty weight state for %s", state.Symbol)
	}
	next := state.Clone()

	for _, vote := range past.Contributions {
		w, ok := next.Weights[vote.AgentID]
		if !ok {
			continue
		}
		step := learningRate * vote.Confidence * math.Min(1, math.Abs(realized))
		switch {
		case vote.Score == 0 || realized == 0 || step == 0:
			// No directional claim or no realized move: weight unchanged.
		case (vote.Score > 0) == (realized > 0):
			next.Weights[vote.AgentID] = w * (1 + step)
		default:
			next.Weights[vote.AgentID] = w / (1 + step)
		}
	}

	normalizeWithFloor(next.Weights, WeightFloor)
	next.Version = state.Version + 1
	next.LastUpdated = time.Now().UTC()
	return next, nil
}

// normalizeWithFloor scales weights to sum 1 while holding each at or above
// floor: floored entries are pinned and the remaining mass is redistributed
// proportionally until the assignment is stable.
func normalizeWithFloor(w map[string]float64, floor float64) {
	n := len(w)
	if n == 0 {
		return
	}
	if floor*float64(n) >= 1 {
		// Degenerate configuration; fall back to uniform.
		for k := range w {
			w[k] = 1.0 / float64(n)
		}
		return
	}

	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		for k := range w {
			w[k] = 1.0 / float64(n)
		}
		return
	}
	for k := range w {
		w[k] /= sum
	}

	pinned := make(map[string]bool, n)
	for iter := 0; iter < n; iter++ {
		changed := false
		for k, v := range w {
			if !pinned[k] && v < floor {
				w[k] = floor
				pinned[k] = true
				changed = true
			}
		}
		if !changed {
			return
		}
		// Rescale the unpinned mass to fill what the pins left over.
		var free, budget float64
		budget = 1 - floor*float64(len(pinned))
		for k, v := range w {
			if !pinned[k] {
				free += v
			}
		}
		if free <= 0 {
			break
		}
		for k, v := range w {
			if !pinned[k] {
				w[k] = v / free * budget
			}
		}
	}
}
