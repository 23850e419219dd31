package geometry

import (
	"fmt"
	"math"
	"sort"
	"time"

	"FieldPulse/internal/domain/models"
	applogger "FieldPulse/pkg/logger"
)

// DimensionMismatchError reports schema/basis version skew: the basis expects
// a different feature dimensionality than the vector carries. This is a
// configuration error and is never silently truncated.
type DimensionMismatchError struct {
	BasisVersion string
	Want         int
	Got          int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: basis %s expects %d features, vector has %d", e.BasisVersion, e.Want, e.Got)
}

// Projector maps state vectors into the latent space, classifies the motif
// and estimates drift versus the prior snapshot. Deterministic given the same
// basis and inputs.
type Projector struct {
	basis  ProjectionBasis
	bucket time.Duration
	l      *applogger.Logger
}

// NewProjector builds a projector for one basis and one bucket cadence.
// The bucket duration drives gap detection between consecutive snapshots.
func NewProjector(basis ProjectionBasis, bucket time.Duration) *Projector {
	// Classification scans motifs in sorted order so equidistant centroids
	// resolve to the lexicographically smaller id.
	sorted := make([]Motif, len(basis.Motifs))
	copy(sorted, basis.Motifs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	basis.Motifs = sorted
	return &Projector{basis: basis, bucket: bucket}
}

// SetLogger injects a structured logger for discontinuity warnings.
func (p *Projector) SetLogger(l *applogger.Logger) { p.l = l }

// Basis returns the basis the projector was built with.
func (p *Projector) Basis() ProjectionBasis { return p.basis }

// Project computes the geometry snapshot for one state vector. prior is the
// most recent persisted snapshot for the same symbol, or nil.
func (p *Projector) Project(vec models.StateVector, prior *models.GeometrySnapshot) (models.GeometrySnapshot, error) {
	values := vec.Values()
	if len(values) != p.basis.FeatureDims() {
		return models.GeometrySnapshot{}, &DimensionMismatchError{
			BasisVersion: p.basis.Version,
			Want:         p.basis.FeatureDims(),
			Got:          len(values),
		}
	}

	coords := make([]float64, p.basis.LatentDims())
	for k, row := range p.basis.Matrix {
		var sum float64
		for f, w := range row {
			sum += w * values[f]
		}
		if p.basis.Bias != nil {
			sum += p.basis.Bias[k]
		}
		coords[k] = sum
	}

	snap := models.GeometrySnapshot{
		Timestamp:            vec.Timestamp,
		Symbol:               vec.Symbol,
		BasisVersion:         p.basis.Version,
		Coordinates:          coords,
		SourceStateTimestamp: vec.Timestamp,
	}

	motif, probs := p.classify(coords)
	if motif == models.MotifUnclassified && prior == nil {
		motif = models.MotifInitial
	}
	snap.Motif = motif
	snap.TransitionProbs = probs

	switch {
	case prior == nil:
		// Genesis: no drift to report.
	case prior.BasisVersion != p.basis.Version || len(prior.Coordinates) != len(coords):
		// Basis rotated between buckets; coordinates are not comparable.
		snap.Discontinuity = true
	case !prior.SourceStateTimestamp.Equal(vec.Timestamp.Add(-p.bucket)):
		// Gap in history; drift across it would be fabricated.
		snap.Discontinuity = true
		if p.l != nil {
			p.l.Warn("geometry history gap",
				applogger.String("symbol", vec.Symbol),
				applogger.Any("prior_source", prior.SourceStateTimestamp),
				applogger.Any("bucket", vec.Timestamp),
			)
		}
	default:
		snap.Drift = drift(prior.Coordinates, coords)
	}
	return snap, nil
}

// classify assigns the nearest catalog centroid within its radius.
func (p *Projector) classify(coords []float64) (string, map[string]float64) {
	best := models.MotifUnclassified
	var bestProbs map[string]float64
	bestDist := math.Inf(1)
	for _, m := range p.basis.Motifs {
		d := distance(coords, m.Centroid)
		if d > m.Radius {
			continue
		}
		if d < bestDist {
			bestDist = d
			best = m.ID
			bestProbs = m.TransitionProbs
		}
	}
	return best, bestProbs
}

func drift(prev, cur []float64) models.Drift {
	delta := make([]float64, len(cur))
	var sum2 float64
	for i := range cur {
		delta[i] = cur[i] - prev[i]
		sum2 += delta[i] * delta[i]
	}
	mag := math.Sqrt(sum2)
	if mag == 0 {
		return models.Drift{}
	}
	for i := range delta {
		delta[i] /= mag
	}
	return models.Drift{Magnitude: mag, Direction: delta}
}

func distance(a, b []float64) float64 {
	var sum2 float64
	for i := range a {
		d := a[i] - b[i]
		sum2 += d * d
	}
	return math.Sqrt(sum2)
}
