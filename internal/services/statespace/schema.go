package statespace

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Transform kinds supported by the normalizer.
const (
	TransformIdentity = "identity"
	TransformLog      = "log"
	TransformZScore   = "zscore"
	TransformRatio    = "ratio"
	// TransformMean builds a composite axis as the mean of already-computed
	// features; it reads Inputs, not a raw source field.
	TransformMean = "mean"
)

// Missing-input policies.
const (
	MissingHold    = "hold"    // reuse the feature's last persisted value
	MissingNeutral = "neutral" // use the deterministic neutral constant
)

// FeatureSpec declares one ordered feature of the schema.
type FeatureSpec struct {
	Name        string   `yaml:"name" validate:"required"`
	Source      string   `yaml:"source" validate:"required_unless=Transform mean"`
	Transform   string   `yaml:"transform" default:"identity" validate:"oneof=identity log zscore ratio mean"`
	Missing     string   `yaml:"missing" default:"neutral" validate:"oneof=hold neutral"`
	Neutral     float64  `yaml:"neutral"`
	Denominator string   `yaml:"denominator" validate:"required_if=Transform ratio"`
	Inputs      []string `yaml:"inputs" validate:"required_if=Transform mean"`
}

// FeatureSchema fixes the length, ordering and derivation of state vectors.
// A vector never mixes two schema versions.
type FeatureSchema struct {
	Version string `yaml:"version" validate:"required"`
	// Window is the rolling reference length, in persisted vectors, used by
	// zscore transforms. Shorter history widens the effective window.
	Window int `yaml:"window" default:"30" validate:"gt=1"`
	// PartialThreshold is the fallback fraction above which the vector is
	// marked partial.
	PartialThreshold float64       `yaml:"partial_threshold" default:"0.25" validate:"gte=0,lte=1"`
	Features         []FeatureSpec `yaml:"features" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadSchema reads and validates a feature schema from a YAML file.
func LoadSchema(path string) (FeatureSchema, error) {
	var s FeatureSchema
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read schema: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse schema: %w", err)
	}
	if err := defaults.Set(&s); err != nil {
		return s, fmt.Errorf("schema defaults: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate applies struct rules plus cross-feature checks.
func (s FeatureSchema) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validate schema: %w", err)
	}
	seen := make(map[string]bool, len(s.Features))
	for _, f := range s.Features {
		if seen[f.Name] {
			return fmt.Errorf("validate schema: duplicate feature %q", f.Name)
		}
		seen[f.Name] = true
	}
	// Mean inputs must reference features declared earlier in the order.
	for i, f := range s.Features {
		if f.Transform != TransformMean {
			continue
		}
		for _, in := range f.Inputs {
			found := false
			for j := 0; j < i; j++ {
				if s.Features[j].Name == in {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("validate schema: feature %q input %q not declared before it", f.Name, in)
			}
		}
	}
	return nil
}

// Len returns the fixed vector length for this schema version.
func (s FeatureSchema) Len() int { return len(s.Features) }
