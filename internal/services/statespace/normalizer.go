package statespace

import (
	"fmt"
	"math"
	"strconv"

	"FieldPulse/internal/domain/models"
	applogger "FieldPulse/pkg/logger"
)

// SchemaMismatchError reports structurally invalid raw input: a source field
// that could not be coerced to a number. Missing fields never cause it.
type SchemaMismatchError struct {
	Field string
	Value any
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: field %q has non-numeric value of type %T", e.Field, e.Value)
}

// Normalizer converts heterogeneous raw records into fixed-schema state
// vectors. Pure per call: history is a read-only borrow of previously
// persisted vectors (ascending, most recent last).
type Normalizer struct {
	schema FeatureSchema
	l      *applogger.Logger
}

func NewNormalizer(schema FeatureSchema) *Normalizer {
	return &Normalizer{schema: schema}
}

// SetLogger injects a structured logger for degraded-quality warnings.
func (n *Normalizer) SetLogger(l *applogger.Logger) { n.l = l }

// Schema returns the schema the normalizer was built with.
func (n *Normalizer) Schema() FeatureSchema { return n.schema }

// Normalize builds the state vector for one bucket. It never fails for
// missing fields: fallbacks degrade quality to partial, and a fully absent
// record still yields a synthetic vector so the pipeline never stalls.
func (n *Normalizer) Normalize(raw models.RawMarketRecord, history []models.StateVector) (models.StateVector, error) {
	features := make([]models.FeatureValue, 0, n.schema.Len())
	byName := make(map[string]float64, n.schema.Len())

	inputs := 0    // features reading a raw source field
	fallbacks := 0 // inputs resolved by a missing policy
	present := 0   // inputs with a real value

	for _, spec := range n.schema.Features {
		var val float64

		if spec.Transform == TransformMean {
			val = meanOf(byName, spec.Inputs)
			features = append(features, models.FeatureValue{Name: spec.Name, Value: val})
			byName[spec.Name] = val
			continue
		}

		inputs++
		src, ok, err := coerceField(raw, spec.Source)
		if err != nil {
			return models.StateVector{}, err
		}
		if ok {
			present++
			val, err = n.transform(spec, src, raw, history)
			if err != nil {
				return models.StateVector{}, err
			}
		} else {
			fallbacks++
			val = n.fallback(spec, history)
		}

		features = append(features, models.FeatureValue{Name: spec.Name, Value: val})
		byName[spec.Name] = val
	}

	quality := models.QualityComplete
	switch {
	case present == 0:
		quality = models.QualitySynthetic
	case inputs > 0 && float64(fallbacks)/float64(inputs) > n.schema.PartialThreshold:
		quality = models.QualityPartial
	}
	if quality != models.QualityComplete && n.l != nil {
		n.l.Warn("state vector degraded",
			applogger.String("symbol", raw.Symbol),
			applogger.String("quality", string(quality)),
			applogger.Int("fallbacks", fallbacks),
			applogger.Int("inputs", inputs),
		)
	}

	return models.StateVector{
		Timestamp:     raw.Timestamp,
		Symbol:        raw.Symbol,
		SchemaVersion: n.schema.Version,
		Features:      features,
		Quality:       quality,
	}, nil
}

func (n *Normalizer) transform(spec FeatureSpec, v float64, raw models.RawMarketRecord, history []models.StateVector) (float64, error) {
	switch spec.Transform {
	case TransformIdentity:
		return v, nil
	case TransformLog:
		if v <= 0 {
			return 0, nil
		}
		return math.Log(v), nil
	case TransformRatio:
		den, ok, err := coerceField(raw, spec.Denominator)
		if err != nil {
			return 0, err
		}
		if !ok || den == 0 {
			return 0, nil
		}
		return v / den, nil
	case TransformZScore:
		return zscoreAgainst(v, featureWindow(history, spec.Name, n.schema.Window)), nil
	default:
		return 0, fmt.Errorf("unknown transform %q", spec.Transform)
	}
}

func (n *Normalizer) fallback(spec FeatureSpec, history []models.StateVector) float64 {
	if spec.Missing == MissingHold {
		if last, ok := lastValue(history, spec.Name); ok {
			return last
		}
	}
	return spec.Neutral
}

// zscoreAgainst scores v against the rolling reference window. With no prior
// samples the value is its own reference, so the score is zero; a degenerate
// (zero-variance) window also yields zero rather than dividing by zero.
func zscoreAgainst(v float64, window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum, sum2 float64
	for _, x := range window {
		sum += x
		sum2 += x * x
	}
	mean := sum / float64(len(window))
	variance := sum2/float64(len(window)) - mean*mean
	if variance <= 0 {
		return 0
	}
	return (v - mean) / math.Sqrt(variance)
}

// featureWindow collects the feature's values from the last n persisted
// vectors; shorter history widens the effective window. For zscore features
// the persisted values are themselves scores, so the reference tracks the
// score distribution rather than raw-source statistics; raw-scale windows
// would need the source values persisted alongside the vector.
func featureWindow(history []models.StateVector, name string, n int) []float64 {
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	out := make([]float64, 0, len(history)-start)
	for _, vec := range history[start:] {
		if v, ok := vec.Value(name); ok {
			out = append(out, v)
		}
	}
	return out
}

func lastValue(history []models.StateVector, name string) (float64, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if v, ok := history[i].Value(name); ok {
			return v, true
		}
	}
	return 0, false
}

func meanOf(byName map[string]float64, inputs []string) float64 {
	if len(inputs) == 0 {
		return 0
	}
	var sum float64
	for _, in := range inputs {
		sum += byName[in]
	}
	return sum / float64(len(inputs))
}

// coerceField extracts a raw field as float64 with best-effort coercion.
// Returns ok=false when the field is absent or nil.
func coerceField(raw models.RawMarketRecord, field string) (float64, bool, error) {
	v, ok := raw.Fields[field]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch x := v.(type) {
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false, &SchemaMismatchError{Field: field, Value: v}
		}
		return f, true, nil
	default:
		return 0, false, &SchemaMismatchError{Field: field, Value: v}
	}
}
