package kmeans

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/hupe1980/birch/distance"
)

// ErrWeightOverflow is returned when the k-means++ distance weight sum
// leaves the representable float64 range. That only happens for
// pathologically scaled input and is not retried.
var ErrWeightOverflow = errors.New("kmeans: seeding weight sum overflow")

// minNormal is the smallest positive normal float64. Below it the weight
// sum carries no usable signal and seeding falls back to uniform sampling.
const minNormal = 0x1p-1022

// PlusPlus chooses k initial means from candidate positions with k-means++:
// the first mean uniformly at random, each further mean with probability
// proportional to its squared distance to the nearest already-chosen mean.
//
// The random generator is injected so a fixed seed makes the procedure
// fully deterministic.
type PlusPlus struct {
	rng *rand.Rand
}

// NewPlusPlus creates a k-means++ seeder using the given generator.
func NewPlusPlus(rng *rand.Rand) *PlusPlus {
	return &PlusPlus{rng: rng}
}

// Seed returns k means copied from positions in x.
func (pp *PlusPlus) Seed(x [][]float64, k int) ([][]float64, error) {
	if k < 1 {
		return nil, fmt.Errorf("kmeans: k must be >= 1, got %d", k)
	}
	if len(x) < k {
		return nil, fmt.Errorf("kmeans: %d candidates for %d means", len(x), k)
	}

	chosen := make([]int, 1, k)
	chosen[0] = pp.rng.Intn(len(x))

	// weights[i] is the squared distance from x[i] to the nearest chosen
	// mean; it only ever decreases.
	weights := make([]float64, len(x))
	var weightsum float64
	for i := range x {
		weights[i] = distance.SquaredL2(x[i], x[chosen[0]])
		weightsum += weights[i]
	}

	for len(chosen) < k {
		if math.IsInf(weightsum, 1) {
			return nil, ErrWeightOverflow
		}
		if weightsum < minNormal {
			// All remaining candidates coincide with a chosen mean.
			// Degenerate input; sample uniformly instead of looping.
			chosen = append(chosen, pp.rng.Intn(len(x)))
			continue
		}

		r := pp.nextTarget(weightsum)
		i := 0
		for i < len(x) {
			if r -= weights[i]; r <= 0 {
				break
			}
			i++
		}
		if i >= len(x) {
			// Floating-point drift left a remainder; shrink and retry.
			weightsum -= r
			continue
		}

		chosen = append(chosen, i)
		if len(chosen) >= k {
			break
		}
		weights[i] = 0
		weightsum = updateWeights(weights, x, i)
	}

	means := make([][]float64, k)
	for i, id := range chosen {
		means[i] = slices.Clone(x[id])
	}
	return means, nil
}

// nextTarget draws from (0, weightsum], retrying to avoid 0 so that an
// already-chosen candidate (weight 0) at index 0 cannot be re-picked.
func (pp *PlusPlus) nextTarget(weightsum float64) float64 {
	r := pp.rng.Float64() * weightsum
	for r <= 0 && weightsum > minNormal {
		r = pp.rng.Float64() * weightsum
	}
	return r
}

// updateWeights lowers each candidate's weight to the squared distance to
// the latest mean where that is closer, and returns the new weight sum.
func updateWeights(weights []float64, x [][]float64, latest int) float64 {
	var weightsum float64
	for i := range x {
		w := weights[i]
		if w <= 0 {
			continue // duplicate of a chosen mean, or chosen itself
		}
		if d := distance.SquaredL2(x[latest], x[i]); d < w {
			weights[i] = d
			w = d
		}
		weightsum += w
	}
	return weightsum
}
