package distance

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float64) float64 {
	var ret float64
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float64) float64 {
	var dist float64
	for i := range a {
		d := a[i] - b[i]
		dist += d * d
	}
	return dist
}

// L2 calculates the L2 (Euclidean) distance between two vectors.
func L2(a, b []float64) float64 {
	return math.Sqrt(SquaredL2(a, b))
}

// SquaredNorm calculates the squared L2 norm of a vector.
func SquaredNorm(v []float64) float64 {
	return Dot(v, v)
}

// Nearest returns the index of the candidate closest to q by squared L2
// distance, together with that distance. It returns -1 for an empty
// candidate set.
func Nearest(q []float64, candidates [][]float64) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range candidates {
		if d := SquaredL2(q, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}
