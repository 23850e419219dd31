package geometry

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Motif is a labeled region of latent space: a recognizable market regime.
type Motif struct {
	ID       string    `yaml:"id" validate:"required"`
	Centroid []float64 `yaml:"centroid" validate:"required,min=1"`
	Radius   float64   `yaml:"radius" validate:"gt=0"`
	// TransitionProbs are per-horizon continuation odds observed offline for
	// this regime; carried through to the snapshot for downstream readers.
	TransitionProbs map[string]float64 `yaml:"transition_probs"`
}

// ProjectionBasis is the fixed linear map from feature space (F dims) into
// latent space (K dims), plus the motif catalog. It is supplied externally,
// versioned, and never fit online.
type ProjectionBasis struct {
	Version string      `yaml:"version" validate:"required"`
	Matrix  [][]float64 `yaml:"matrix" validate:"required,min=1,dive,min=1"`
	Bias    []float64   `yaml:"bias"`
	Motifs  []Motif     `yaml:"motifs" validate:"dive"`
}

var validate = validator.New()

// LoadBasis reads and validates a projection basis from a YAML file.
func LoadBasis(path string) (ProjectionBasis, error) {
	var b ProjectionBasis
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("read basis: %w", err)
	}
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("parse basis: %w", err)
	}
	if err := defaults.Set(&b); err != nil {
		return b, fmt.Errorf("basis defaults: %w", err)
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// Validate checks internal consistency: rectangular matrix, bias and centroid
// lengths matching the latent dimensionality.
func (b ProjectionBasis) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("validate basis: %w", err)
	}
	f := len(b.Matrix[0])
	for k, row := range b.Matrix {
		if len(row) != f {
			return fmt.Errorf("validate basis: matrix row %d has %d columns, want %d", k, len(row), f)
		}
	}
	k := len(b.Matrix)
	if b.Bias != nil && len(b.Bias) != k {
		return fmt.Errorf("validate basis: bias has %d entries, want %d", len(b.Bias), k)
	}
	for _, m := range b.Motifs {
		if len(m.Centroid) != k {
			return fmt.Errorf("validate basis: motif %q centroid has %d dims, want %d", m.ID, len(m.Centroid), k)
		}
	}
	return nil
}

// LatentDims returns K, the latent space dimensionality.
func (b ProjectionBasis) LatentDims() int { return len(b.Matrix) }

// FeatureDims returns F, the expected state vector length.
func (b ProjectionBasis) FeatureDims() int {
	if len(b.Matrix) == 0 {
		return 0
	}
	return len(b.Matrix[0])
}
