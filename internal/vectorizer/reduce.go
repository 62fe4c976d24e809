package vectorizer

import "math"

// MeanNormalize reduces the flat (totalSegments x dims) embedding matrix into
// one vector per document: arithmetic mean over the document's counts[i]
// consecutive rows, then L2 normalization. A zero-norm mean stays all zeros.
//
// Runs on every batch right after the encode call returns; the inner loops
// stay contiguous over the float32 rows.
func MeanNormalize(flat [][]float32, counts []int, dims int) [][]float32 {
	out := make([][]float32, len(counts))

	row := 0
	for i, n := range counts {
		vec := make([]float32, dims)

		for j := 0; j < n; j++ {
			seg := flat[row]
			for k := 0; k < dims; k++ {
				vec[k] += seg[k]
			}
			row++
		}

		if n > 0 {
			inv := 1 / float32(n)
			for k := range vec {
				vec[k] *= inv
			}
		}

		var sum float64
		for k := range vec {
			sum += float64(vec[k]) * float64(vec[k])
		}
		if norm := math.Sqrt(sum); norm > 0 {
			inv := float32(1 / norm)
			for k := range vec {
				vec[k] *= inv
			}
		}

		out[i] = vec
	}

	return out
}
