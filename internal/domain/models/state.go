package models

import "time"

// Quality marks how much of a state vector was derived from real input.
type Quality string

const (
	QualityComplete  Quality = "complete"
	QualityPartial   Quality = "partial"   // too many features fell back to defaults
	QualitySynthetic Quality = "synthetic" // every input missing; deterministic defaults
)

// FeatureValue is one named entry of a state vector. Order is fixed by the
// feature schema version.
type FeatureValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// StateVector is the fixed-schema numeric encoding of one symbol's market
// condition at one time bucket. Immutable after creation; superseded, never
// mutated, by a later bucket's vector.
type StateVector struct {
	Timestamp     time.Time      `json:"timestamp"`
	Symbol        string         `json:"symbol"`
	SchemaVersion string         `json:"schema_version"`
	Features      []FeatureValue `json:"features"`
	Quality       Quality        `json:"quality"`
}

// Values returns the ordered feature values as a plain slice.
func (v StateVector) Values() []float64 {
	out := make([]float64, len(v.Features))
	for i, f := range v.Features {
		out[i] = f.Value
	}
	return out
}

// Value returns the named feature value, or 0 and false if the schema does
// not carry it.
func (v StateVector) Value(name string) (float64, bool) {
	for _, f := range v.Features {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}
