package vectorizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestMeanNormalizeSingleSegment(t *testing.T) {
	flat := [][]float32{{3, 4}}
	out := MeanNormalize(flat, []int{1}, 2)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.6, out[0][0], 1e-6)
	assert.InDelta(t, 0.8, out[0][1], 1e-6)
}

func TestMeanNormalizeAveragesPerDocument(t *testing.T) {
	// Doc 1 spans rows 0-1, doc 2 is row 2.
	flat := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 2},
	}
	out := MeanNormalize(flat, []int{2, 1}, 3)
	require.Len(t, out, 2)

	// Mean of doc 1 is (0.5, 0.5, 0); normalized components are equal.
	assert.InDelta(t, out[0][0], out[0][1], 1e-6)
	assert.InDelta(t, 0.0, float64(out[0][2]), 1e-6)
	assert.InDelta(t, 1.0, norm(out[0]), 1e-6)

	assert.InDelta(t, 1.0, float64(out[1][2]), 1e-6)
}

func TestMeanNormalizeZeroVector(t *testing.T) {
	flat := [][]float32{{0, 0, 0, 0}}
	out := MeanNormalize(flat, []int{1}, 4)

	require.Len(t, out, 1)
	assert.Equal(t, []float32{0, 0, 0, 0}, out[0])
}

func TestMeanNormalizeUnitOutput(t *testing.T) {
	flat := [][]float32{
		{0.3, -1.2, 4.5},
		{2.1, 0.7, -0.4},
		{-0.9, 3.3, 1.1},
	}
	out := MeanNormalize(flat, []int{3}, 3)

	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, norm(out[0]), 1e-6)
}

func TestMeanNormalizeEmpty(t *testing.T) {
	out := MeanNormalize(nil, nil, 384)
	assert.Empty(t, out)
}
