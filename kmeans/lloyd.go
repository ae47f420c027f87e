package kmeans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/birch/distance"
)

// State tracks the Lloyd loop's progress.
type State int

const (
	// Seeded means initial means exist but no assignment has run.
	Seeded State = iota
	// Assigning means the loop is between iterations.
	Assigning
	// Converged means an iteration completed with zero reassignments.
	Converged
	// IterationCapReached means the iteration limit fired first. Like
	// Converged it is a successful completion, kept separate for
	// diagnostics only.
	IterationCapReached
)

func (s State) String() string {
	switch s {
	case Seeded:
		return "seeded"
	case Assigning:
		return "assigning"
	case Converged:
		return "converged"
	case IterationCapReached:
		return "iteration cap reached"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText reports the state name, for JSON and log output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Points holds m weighted pseudo-points as parallel aggregate arrays:
// Means[i] is the centroid of pseudo-point i, Weights[i] the number of
// original records it stands for, and LinearSums[i]/SumSquares[i] the raw
// aggregates needed for variance without re-scanning original data.
type Points struct {
	Means      [][]float64
	Weights    []float64
	LinearSums [][]float64
	SumSquares []float64
}

func (p Points) validate() error {
	m := len(p.Means)
	if len(p.Weights) != m || len(p.LinearSums) != m || len(p.SumSquares) != m {
		return errors.New("kmeans: pseudo-point arrays have mismatched lengths")
	}
	if m == 0 {
		return errors.New("kmeans: no pseudo-points")
	}
	return nil
}

// Cluster is one final cluster over pseudo-points.
type Cluster struct {
	// Members are indices into the input Points arrays.
	Members []int
	// Mean is the weighted centroid of the members.
	Mean []float64
	// Variance is the population variance of the original records the
	// members summarize, computed from aggregate statistics.
	Variance float64
}

// Result is a completed Lloyd run.
type Result struct {
	Clusters   []Cluster
	State      State
	Iterations int
}

// Seeder produces k initial means from candidate positions.
type Seeder interface {
	Seed(x [][]float64, k int) ([][]float64, error)
}

// Lloyd runs weighted Lloyd k-means over pseudo-point aggregates. Each
// iteration recomputes means as weighted centroids (sum of member linear
// sums over sum of member weights) and reassigns every pseudo-point to its
// nearest mean by squared Euclidean distance. The loop stops on a
// zero-reassignment iteration or at the iteration cap.
//
// If a cluster loses all members during reassignment its mean is left
// unchanged for that iteration. That is a deliberate policy: the stale
// mean may still capture points later, and dropping or reseeding it would
// make the run nondeterministic relative to the seed.
type Lloyd struct {
	k       int
	maxIter int
	seeding Seeder
}

// NewLloyd creates a Lloyd runner. maxIter = 0 means unlimited.
func NewLloyd(k, maxIter int, seeding Seeder) (*Lloyd, error) {
	if k < 1 {
		return nil, fmt.Errorf("kmeans: k must be >= 1, got %d", k)
	}
	if maxIter < 0 {
		return nil, fmt.Errorf("kmeans: max iterations must be >= 0, got %d", maxIter)
	}
	if maxIter == 0 {
		maxIter = math.MaxInt
	}
	if seeding == nil {
		return nil, errors.New("kmeans: seeder is nil")
	}
	return &Lloyd{k: k, maxIter: maxIter, seeding: seeding}, nil
}

// Run clusters the pseudo-points. It returns an error when seeding fails
// or the input arrays are inconsistent; a capped run is not an error.
func (l *Lloyd) Run(ctx context.Context, pts Points) (*Result, error) {
	if err := pts.validate(); err != nil {
		return nil, err
	}
	if len(pts.Means) < l.k {
		return nil, fmt.Errorf("kmeans: %d pseudo-points for k=%d", len(pts.Means), l.k)
	}

	means, err := l.seeding.Seed(pts.Means, l.k)
	if err != nil {
		return nil, err
	}

	assignment := make([]int, len(pts.Means)) // zero-init: everything in cluster 0
	state := Seeded

	iterations := 0
	for iterations < l.maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations++

		// The first iteration assigns against the seeded means as-is;
		// recomputing before any real assignment exists would collapse
		// every mean into cluster 0's centroid.
		if state != Seeded {
			recomputeMeans(means, pts, assignment)
		}
		state = Assigning

		changed := 0
		for i, pos := range pts.Means {
			best, _ := distance.Nearest(pos, means)
			if best != assignment[i] {
				assignment[i] = best
				changed++
			}
		}
		if changed == 0 {
			state = Converged
			break
		}
	}
	if state == Assigning {
		state = IterationCapReached
	}

	return &Result{
		Clusters:   buildClusters(l.k, pts, assignment, means),
		State:      state,
		Iterations: iterations,
	}, nil
}

// recomputeMeans sets each mean to its cluster's weighted centroid. A
// cluster with no members keeps its previous mean.
func recomputeMeans(means [][]float64, pts Points, assignment []int) {
	dim := len(means[0])
	sums := make([][]float64, len(means))
	weights := make([]float64, len(means))
	for c := range means {
		sums[c] = make([]float64, dim)
	}
	for i, c := range assignment {
		add(sums[c], pts.LinearSums[i])
		weights[c] += pts.Weights[i]
	}
	for c := range means {
		if weights[c] <= 0 {
			continue
		}
		for j := range means[c] {
			means[c][j] = sums[c][j] / weights[c]
		}
	}
}

// buildClusters aggregates the final clusters' statistics. Means are
// recomputed from the final assignment so that a cluster's mean is always
// the exact weighted centroid of its members, even when the loop stopped
// right after a reassignment.
func buildClusters(k int, pts Points, assignment []int, means [][]float64) []Cluster {
	clusters := make([]Cluster, k)
	dim := len(means[0])
	type agg struct {
		ls     []float64
		ss     float64
		weight float64
	}
	aggs := make([]agg, k)
	for c := range aggs {
		aggs[c].ls = make([]float64, dim)
	}
	for i, c := range assignment {
		clusters[c].Members = append(clusters[c].Members, i)
		add(aggs[c].ls, pts.LinearSums[i])
		aggs[c].ss += pts.SumSquares[i]
		aggs[c].weight += pts.Weights[i]
	}
	for c := range clusters {
		a := aggs[c]
		if a.weight <= 0 {
			// Empty cluster: keep the last mean, variance is 0.
			clusters[c].Mean = slices.Clone(means[c])
			continue
		}
		mean := make([]float64, dim)
		for j := range mean {
			mean[j] = a.ls[j] / a.weight
		}
		clusters[c].Mean = mean
		v := (a.ss*a.weight - distance.SquaredNorm(a.ls)) / (a.weight * a.weight)
		clusters[c].Variance = math.Max(v, 0)
	}
	return clusters
}

func add(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}
