package birch

import (
	"fmt"
	"math"
	"runtime"
)

// Options configure a Birch clusterer.
type Options struct {
	// Dimension is the fixed dimensionality of all input vectors.
	Dimension int
	// BranchingFactor caps the number of children per internal tree node.
	BranchingFactor int
	// LeafCapacity caps the number of summaries per leaf node.
	LeafCapacity int
	// MaxLeafEntries caps the total number of leaf summaries; exceeding it
	// triggers a rebuild at a coarser absorption threshold. 0 selects
	// 128 * LeafCapacity.
	MaxLeafEntries int
	// Threshold is the initial absorption radius. 0 means every distinct
	// vector starts its own summary until the first rebuild.
	Threshold float64
	// MaxRebuilds caps threshold-raising rebuild cycles.
	MaxRebuilds int
	// K is the number of clusters.
	K int
	// MaxIterations caps Lloyd refinement. 0 means unlimited.
	MaxIterations int
	// RandomSeed drives k-means++ seeding. Runs with equal options, seed
	// and input are fully deterministic.
	RandomSeed int64
	// NumWorkers sets the parallelism of the record re-assignment pass.
	// 0 selects GOMAXPROCS.
	NumWorkers int
	// Logger receives structured progress output. Nil disables logging.
	Logger *Logger
}

// DefaultOptions are sensible starting values for moderate-size data.
var DefaultOptions = Options{
	Dimension:       8,
	BranchingFactor: 8,
	LeafCapacity:    64,
	Threshold:       0,
	MaxRebuilds:     64,
	K:               2,
	MaxIterations:   0,
	RandomSeed:      1,
}

func (o *Options) validate() error {
	if o.Dimension < 1 {
		return fmt.Errorf("dimension must be >= 1, got %d", o.Dimension)
	}
	if o.BranchingFactor < 2 {
		return fmt.Errorf("branching factor must be >= 2, got %d", o.BranchingFactor)
	}
	if o.LeafCapacity < 2 {
		return fmt.Errorf("leaf capacity must be >= 2, got %d", o.LeafCapacity)
	}
	if o.MaxLeafEntries < 0 {
		return fmt.Errorf("max leaf entries must be >= 0, got %d", o.MaxLeafEntries)
	}
	if o.Threshold < 0 || math.IsNaN(o.Threshold) {
		return fmt.Errorf("threshold must be >= 0, got %v", o.Threshold)
	}
	if o.MaxRebuilds < 1 {
		return fmt.Errorf("max rebuilds must be >= 1, got %d", o.MaxRebuilds)
	}
	if o.K < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, o.K)
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be >= 0, got %d", o.MaxIterations)
	}
	if o.NumWorkers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", o.NumWorkers)
	}
	return nil
}

func (o *Options) fillDefaults() {
	if o.MaxLeafEntries == 0 {
		o.MaxLeafEntries = 128 * o.LeafCapacity
	}
	if o.NumWorkers == 0 {
		o.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
}
