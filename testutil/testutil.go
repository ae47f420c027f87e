// Package testutil provides reproducible synthetic data for clustering
// tests and benchmarks.
package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a standard normally distributed float64.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num, dimensions int) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dimensions)
	vectors := make([][]float64, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float64()
		}
		vectors[i] = vec
	}
	return vectors
}

// Blob is one Gaussian cluster specification.
type Blob struct {
	Center []float64
	Stddev float64
	Count  int
}

// GaussianBlobs generates vectors drawn from the given blobs, interleaved
// round-robin so cluster members are spread through the stream order. It
// also returns the true blob label per vector, aligned by index.
func (r *RNG) GaussianBlobs(blobs []Blob) (vecs [][]float64, labels []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := make([]int, len(blobs))
	total := 0
	for i, b := range blobs {
		remaining[i] = b.Count
		total += b.Count
	}

	vecs = make([][]float64, 0, total)
	labels = make([]int, 0, total)
	for len(vecs) < total {
		for i, b := range blobs {
			if remaining[i] == 0 {
				continue
			}
			remaining[i]--
			v := make([]float64, len(b.Center))
			for j, c := range b.Center {
				v[j] = c + r.rand.NormFloat64()*b.Stddev
			}
			vecs = append(vecs, v)
			labels = append(labels, i)
		}
	}
	return vecs, labels
}

// ClusterAgreement returns the fraction of records whose predicted cluster
// agrees with the true labels, maximized over cluster relabelings using a
// greedy majority match. predicted[i] and labels[i] refer to record i.
func ClusterAgreement(predicted, labels []int, k int) float64 {
	if len(predicted) != len(labels) || len(predicted) == 0 {
		return 0
	}

	// counts[p][l] = records predicted p with true label l.
	counts := make([][]int, k)
	for p := range counts {
		counts[p] = make([]int, k)
	}
	for i, p := range predicted {
		if p < 0 || p >= k || labels[i] < 0 || labels[i] >= k {
			return 0
		}
		counts[p][labels[i]]++
	}

	// Greedily map each predicted cluster to its best unused true label.
	usedP := make([]bool, k)
	usedL := make([]bool, k)
	agree := 0
	for range k {
		bestP, bestL, best := -1, -1, -1
		for p := range k {
			if usedP[p] {
				continue
			}
			for l := range k {
				if usedL[l] {
					continue
				}
				if counts[p][l] > best {
					bestP, bestL, best = p, l, counts[p][l]
				}
			}
		}
		usedP[bestP], usedL[bestL] = true, true
		agree += best
	}
	return float64(agree) / float64(len(predicted))
}
