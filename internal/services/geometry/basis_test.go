package geometry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBasisFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "basis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBasis(t *testing.T) {
	path := writeBasisFile(t, `
version: "1"
matrix:
  - [1, 0, 0]
  - [0, 1, 0]
bias: [0.1, -0.1]
motifs:
  - id: calm
    centroid: [0, 0]
    radius: 0.5
`)
	b, err := LoadBasis(path)
	require.NoError(t, err)
	assert.Equal(t, 2, b.LatentDims())
	assert.Equal(t, 3, b.FeatureDims())
	require.Len(t, b.Motifs, 1)
	assert.Equal(t, "calm", b.Motifs[0].ID)
}

func TestLoadBasisRejectsRaggedMatrix(t *testing.T) {
	path := writeBasisFile(t, `
version: "1"
matrix:
  - [1, 0, 0]
  - [0, 1]
`)
	_, err := LoadBasis(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")
}

func TestLoadBasisRejectsBiasLengthMismatch(t *testing.T) {
	path := writeBasisFile(t, `
version: "1"
matrix:
  - [1, 0]
bias: [0, 0]
`)
	_, err := LoadBasis(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bias")
}

func TestLoadBasisRejectsCentroidDimMismatch(t *testing.T) {
	path := writeBasisFile(t, `
version: "1"
matrix:
  - [1, 0]
  - [0, 1]
motifs:
  - id: calm
    centroid: [0, 0, 0]
    radius: 0.5
`)
	_, err := LoadBasis(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "centroid")
}

func TestLoadBasisRejectsNonPositiveRadius(t *testing.T) {
	path := writeBasisFile(t, `
version: "1"
matrix:
  - [1, 0]
motifs:
  - id: calm
    centroid: [0]
    radius: 0
`)
	_, err := LoadBasis(path)
	assert.Error(t, err)
}

func TestShippedBasisLoads(t *testing.T) {
	b, err := LoadBasis("../../../config/basis.yaml")
	require.NoError(t, err)
	assert.Equal(t, "1", b.Version)
	assert.Equal(t, 3, b.LatentDims())
	assert.Equal(t, 18, b.FeatureDims(), "must match the shipped feature schema length")
	assert.Len(t, b.Motifs, 4)
}
