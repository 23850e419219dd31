package models

import "time"

// Motif labels assigned outside the configured catalog.
const (
	MotifInitial      = "initial"      // first snapshot for a symbol, nothing matched
	MotifUnclassified = "unclassified" // no catalog region within radius
)

// Drift is the change vector between consecutive latent coordinates.
// Direction is a unit vector, or nil when undefined (first snapshot,
// zero movement, or a gap in history).
type Drift struct {
	Magnitude float64   `json:"magnitude"`
	Direction []float64 `json:"direction,omitempty"`
}

// GeometrySnapshot places one state vector in the reduced latent space:
// coordinates, motif classification and drift from the prior bucket.
// One per time bucket per symbol; immutable.
type GeometrySnapshot struct {
	Timestamp            time.Time          `json:"timestamp"`
	Symbol               string             `json:"symbol"`
	BasisVersion         string             `json:"basis_version"`
	Coordinates          []float64          `json:"coordinates"`
	Motif                string             `json:"motif"`
	TransitionProbs      map[string]float64 `json:"transition_probs,omitempty"`
	Drift                Drift              `json:"drift"`
	SourceStateTimestamp time.Time          `json:"source_state_timestamp"`
	// Discontinuity marks a gap in geometry history: the prior snapshot was
	// missing or not from the immediately preceding bucket, so drift was not
	// fabricated across the gap.
	Discontinuity bool `json:"discontinuity,omitempty"`
}
