package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineIdenticalVectors(t *testing.T) {
	v := []float32{0.5, 0.25, 0.8}
	similarity, err := Cosine(v, v)
	require.NoError(t, err)
	require.InDelta(t, 1.0, similarity, 1e-9)
}

func TestCosineOrthogonalVectors(t *testing.T) {
	similarity, err := Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	require.InDelta(t, 0.0, similarity, 1e-9)
}

func TestCosineOppositeVectors(t *testing.T) {
	similarity, err := Cosine([]float32{1, 2}, []float32{-1, -2})
	require.NoError(t, err)
	require.InDelta(t, -1.0, similarity, 1e-9)
}

func TestCosineRejectsMismatchedLengths(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1})
	require.Error(t, err)
}

func TestCosineRejectsZeroVector(t *testing.T) {
	_, err := Cosine([]float32{0, 0}, []float32{1, 1})
	require.Error(t, err)
}
