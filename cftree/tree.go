package cftree

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// noNode marks an empty node reference in the arena.
const noNode = int32(-1)

// ErrRebuildLimit is returned when threshold growth fails to bring the tree
// under its leaf-entry capacity within Options.MaxRebuilds rebuild cycles.
var ErrRebuildLimit = errors.New("cftree: rebuild limit exceeded")

// ErrDimensionMismatch indicates a vector whose dimensionality does not
// match the tree's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Options contains configuration options for the clustering-feature tree.
type Options struct {
	// Dimension is the fixed vector dimensionality for this tree.
	// It must be > 0 and is enforced for all inserts and lookups.
	Dimension int

	// BranchingFactor is the maximum number of child entries per internal
	// node before it splits. Must be >= 2.
	BranchingFactor int

	// LeafCapacity is the maximum number of CF entries per leaf before it
	// splits. Must be >= 2.
	LeafCapacity int

	// MaxLeafEntries bounds the total number of leaf entries across the
	// tree. Exceeding it triggers a threshold increase and a rebuild from
	// the current leaf CFs, which is what bounds memory to O(capacity)
	// regardless of input size.
	MaxLeafEntries int

	// Threshold is the initial absorption threshold T: a vector merges into
	// an existing leaf entry only if the merged entry's radius stays within
	// T. It grows monotonically on rebuilds and never shrinks.
	Threshold float64

	// MaxRebuilds caps the number of rebuild cycles. The threshold doubles
	// each cycle (with a distance-informed floor), so hitting the cap means
	// threshold growth cannot keep up with the data spread; the insert that
	// triggered the final cycle fails with ErrRebuildLimit.
	MaxRebuilds int

	// Logger receives build progress and rebuild events. Nil disables
	// logging.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the tree.
var DefaultOptions = Options{
	BranchingFactor: 8,
	LeafCapacity:    8,
	MaxLeafEntries:  1024,
	Threshold:       0,
	MaxRebuilds:     64,
}

// node is an arena slot. Nodes reference each other by index, never by
// pointer: splits and rebuilds append and recycle slots, and index-based
// links keep parents, children and leaf siblings valid across those moves.
type node struct {
	cf       *ClusteringFeature   // aggregate of the whole subtree
	children []int32              // child slots; nil marks a leaf
	entries  []*ClusteringFeature // leaf entries; nil for internal nodes
	next     int32                // next leaf in traversal order
}

func (nd *node) isLeaf() bool { return nd.children == nil }

// Tree is an incrementally built, height-balanced BIRCH CF-tree.
//
// A Tree is single-owner while being built: Insert must be called from one
// goroutine. Once the last insert returned, FindLeaf and Leaves are
// read-only and safe for concurrent use.
type Tree struct {
	opts      Options
	nodes     []node
	root      int32
	firstLeaf int32

	leafEntries int
	threshold   float64
	rebuilds    int
	inserted    int64

	scratch  *ClusteringFeature // reused between absorbed inserts
	path     []int32            // descent scratch
	logger   *slog.Logger
	progress rate.Sometimes
}

// New creates a new clustering-feature tree.
// Dimension is required and must be set at creation time.
func New(optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("cftree: invalid dimension: %d", opts.Dimension)
	}
	if opts.BranchingFactor < 2 {
		return nil, fmt.Errorf("cftree: branching factor must be >= 2, got %d", opts.BranchingFactor)
	}
	if opts.LeafCapacity < 2 {
		return nil, fmt.Errorf("cftree: leaf capacity must be >= 2, got %d", opts.LeafCapacity)
	}
	if opts.MaxLeafEntries < opts.LeafCapacity {
		return nil, fmt.Errorf("cftree: max leaf entries %d below leaf capacity %d", opts.MaxLeafEntries, opts.LeafCapacity)
	}
	if opts.Threshold < 0 || math.IsNaN(opts.Threshold) {
		return nil, fmt.Errorf("cftree: invalid threshold: %g", opts.Threshold)
	}
	if opts.MaxRebuilds < 1 {
		return nil, fmt.Errorf("cftree: max rebuilds must be >= 1, got %d", opts.MaxRebuilds)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	t := &Tree{
		opts:      opts,
		threshold: opts.Threshold,
		logger:    logger,
		progress:  rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	t.root = t.newNode()
	t.firstLeaf = t.root
	return t, nil
}

// Insert adds a vector to the tree, splitting and rebuilding as needed.
//
// The context is only consulted between units of work; a returned context
// error leaves the tree unusable for further inserts.
func (t *Tree) Insert(ctx context.Context, v []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(v) != t.opts.Dimension {
		return &ErrDimensionMismatch{Expected: t.opts.Dimension, Actual: len(v)}
	}

	cf := t.scratch
	if cf == nil {
		cf = NewClusteringFeature(t.opts.Dimension)
	}
	cf.AddVector(v)

	if t.insertCF(cf) {
		// The CF became a leaf entry; its identity now belongs to the tree.
		t.scratch = nil
	} else {
		cf.n = 0
		cf.ss = 0
		clear(cf.ls)
		t.scratch = cf
	}

	t.inserted++
	t.progress.Do(func() {
		t.logger.Debug("cf-tree build progress",
			slog.Int64("inserted", t.inserted),
			slog.Int("leaf_entries", t.leafEntries),
			slog.Float64("threshold", t.threshold),
		)
	})

	if t.leafEntries > t.opts.MaxLeafEntries {
		return t.rebuild(ctx)
	}
	return nil
}

// insertCF inserts a clustering feature, reporting whether the tree
// retained cf (as a new leaf entry) or folded it into existing state.
func (t *Tree) insertCF(cf *ClusteringFeature) bool {
	path := t.path[:0]
	idx := t.root
	for {
		nd := &t.nodes[idx]
		path = append(path, idx)
		if nd.isLeaf() {
			break
		}
		idx = t.closestChild(nd.children, cf)
	}
	t.path = path

	// Every ancestor's aggregate gains cf's contribution whether it is
	// absorbed or becomes a new entry.
	for _, ni := range path {
		t.nodes[ni].cf.AddCF(cf)
	}

	leafIdx := idx
	leaf := &t.nodes[leafIdx]
	if ei := closestEntry(leaf.entries, cf); ei >= 0 {
		entry := leaf.entries[ei]
		if mergedSquaredRadius(entry, cf) <= t.threshold*t.threshold {
			entry.AddCF(cf)
			return false
		}
	}

	leaf.entries = append(leaf.entries, cf)
	t.leafEntries++
	if len(leaf.entries) > t.opts.LeafCapacity {
		t.splitCascade(path)
	}
	return true
}

// closestChild returns the child whose aggregate centroid is closest to
// cf's centroid.
func (t *Tree) closestChild(children []int32, cf *ClusteringFeature) int32 {
	best := children[0]
	bestDist := squaredCentroidDistance(t.nodes[best].cf, cf)
	for _, c := range children[1:] {
		if d := squaredCentroidDistance(t.nodes[c].cf, cf); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func closestEntry(entries []*ClusteringFeature, cf *ClusteringFeature) int {
	best := -1
	bestDist := math.Inf(1)
	for i, e := range entries {
		if d := squaredCentroidDistance(e, cf); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// splitCascade splits the overflowing node at the bottom of path and
// propagates splits upward while parents overflow. Subtree aggregates are
// unchanged by splitting, so ancestor CFs stay valid.
func (t *Tree) splitCascade(path []int32) {
	for level := len(path) - 1; level >= 0; level-- {
		idx := path[level]
		if !t.overflowing(idx) {
			return
		}
		newIdx := t.splitNode(idx)
		if level > 0 {
			parent := path[level-1]
			t.nodes[parent].children = append(t.nodes[parent].children, newIdx)
			continue
		}
		// Root split: the tree grows by one level, keeping all leaves at
		// equal depth.
		newRoot := t.newNode()
		cf := NewClusteringFeature(t.opts.Dimension)
		cf.AddCF(t.nodes[idx].cf)
		cf.AddCF(t.nodes[newIdx].cf)
		t.nodes[newRoot].children = []int32{idx, newIdx}
		t.nodes[newRoot].cf = cf
		t.root = newRoot
	}
}

func (t *Tree) overflowing(idx int32) bool {
	nd := &t.nodes[idx]
	if nd.isLeaf() {
		return len(nd.entries) > t.opts.LeafCapacity
	}
	return len(nd.children) > t.opts.BranchingFactor
}

// splitNode splits the node at idx along its most distant pair of entries
// and returns the arena slot of the new sibling.
func (t *Tree) splitNode(idx int32) int32 {
	newIdx := t.newNode()
	nd := &t.nodes[idx]
	nn := &t.nodes[newIdx]

	if nd.isLeaf() {
		keep, moved := t.partitionEntries(nd.entries)
		nd.entries = keep
		nd.cf = t.sumEntries(keep)
		nn.entries = moved
		nn.cf = t.sumEntries(moved)
		// Keep the leaf chain in tree order.
		nn.next = nd.next
		nd.next = newIdx
		return newIdx
	}

	keep, moved := t.partitionChildren(nd.children)
	nd.children = keep
	nd.cf = t.sumChildren(keep)
	nn.children = moved
	nn.cf = t.sumChildren(moved)
	return newIdx
}

// partitionEntries seeds with the two most distant entries and assigns
// every remaining entry to the closer seed.
func (t *Tree) partitionEntries(entries []*ClusteringFeature) (keep, moved []*ClusteringFeature) {
	s1, s2 := farthestPair(len(entries), func(i, j int) float64 {
		return squaredCentroidDistance(entries[i], entries[j])
	})
	for i, e := range entries {
		switch {
		case i == s1:
			keep = append(keep, e)
		case i == s2:
			moved = append(moved, e)
		case squaredCentroidDistance(e, entries[s1]) <= squaredCentroidDistance(e, entries[s2]):
			keep = append(keep, e)
		default:
			moved = append(moved, e)
		}
	}
	return keep, moved
}

func (t *Tree) partitionChildren(children []int32) (keep, moved []int32) {
	s1, s2 := farthestPair(len(children), func(i, j int) float64 {
		return squaredCentroidDistance(t.nodes[children[i]].cf, t.nodes[children[j]].cf)
	})
	for i, c := range children {
		switch {
		case i == s1:
			keep = append(keep, c)
		case i == s2:
			moved = append(moved, c)
		case squaredCentroidDistance(t.nodes[c].cf, t.nodes[children[s1]].cf) <=
			squaredCentroidDistance(t.nodes[c].cf, t.nodes[children[s2]].cf):
			keep = append(keep, c)
		default:
			moved = append(moved, c)
		}
	}
	return keep, moved
}

// farthestPair returns the indices of the most distant pair under dist.
// n is at least 2 whenever a split happens (capacities are >= 2).
func farthestPair(n int, dist func(i, j int) float64) (int, int) {
	s1, s2 := 0, 1
	best := dist(0, 1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := dist(i, j); d > best {
				s1, s2, best = i, j, d
			}
		}
	}
	return s1, s2
}

func (t *Tree) sumEntries(entries []*ClusteringFeature) *ClusteringFeature {
	cf := NewClusteringFeature(t.opts.Dimension)
	for _, e := range entries {
		cf.AddCF(e)
	}
	return cf
}

func (t *Tree) sumChildren(children []int32) *ClusteringFeature {
	cf := NewClusteringFeature(t.opts.Dimension)
	for _, c := range children {
		cf.AddCF(t.nodes[c].cf)
	}
	return cf
}

// rebuild grows the threshold and reinserts the current leaf CFs into a
// fresh arena until the tree fits its capacity again. The tree coarsens
// rather than growing without bound.
func (t *Tree) rebuild(ctx context.Context) error {
	for t.leafEntries > t.opts.MaxLeafEntries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.rebuilds >= t.opts.MaxRebuilds {
			return fmt.Errorf("%w: still %d leaf entries after %d rebuilds at threshold %g",
				ErrRebuildLimit, t.leafEntries, t.rebuilds, t.threshold)
		}
		t.rebuilds++
		t.threshold = t.nextThreshold()

		entries := make([]*ClusteringFeature, 0, t.leafEntries)
		for cf := range t.Leaves() {
			entries = append(entries, cf)
		}

		t.nodes = t.nodes[:0]
		t.root = t.newNode()
		t.firstLeaf = t.root
		t.leafEntries = 0

		for _, cf := range entries {
			t.insertCF(cf)
		}

		t.logger.Info("cf-tree rebuilt",
			slog.Float64("threshold", t.threshold),
			slog.Int("leaf_entries", t.leafEntries),
			slog.Int("rebuilds", t.rebuilds),
		)
	}
	return nil
}

// nextThreshold doubles the current threshold and raises it to the mean
// distance between consecutive leaf-entry centroids, so the very first
// rebuild (threshold 0) still makes progress and later rebuilds track the
// data spread.
func (t *Tree) nextThreshold() float64 {
	var sum float64
	var pairs int
	var prev *ClusteringFeature
	for cf := range t.Leaves() {
		if prev != nil {
			sum += math.Sqrt(squaredCentroidDistance(prev, cf))
			pairs++
		}
		prev = cf
	}

	next := 2 * t.threshold
	if pairs > 0 {
		next = math.Max(next, sum/float64(pairs))
	}
	return next
}

func (t *Tree) newNode() int32 {
	t.nodes = append(t.nodes, node{cf: NewClusteringFeature(t.opts.Dimension), next: noNode})
	return int32(len(t.nodes) - 1)
}

// FindLeaf returns the leaf entry closest to v, descending greedily exactly
// like insertion but without mutating anything. It returns nil for an empty
// tree or a dimensionality mismatch.
func (t *Tree) FindLeaf(v []float64) *ClusteringFeature {
	if len(v) != t.opts.Dimension || t.inserted == 0 {
		return nil
	}
	idx := t.root
	for {
		nd := &t.nodes[idx]
		if nd.isLeaf() {
			best := -1
			bestDist := math.Inf(1)
			for i, e := range nd.entries {
				if d := e.squaredDistanceToVector(v); d < bestDist {
					best, bestDist = i, d
				}
			}
			if best < 0 {
				return nil
			}
			return nd.entries[best]
		}

		bestChild := nd.children[0]
		bestDist := t.nodes[bestChild].cf.squaredDistanceToVector(v)
		for _, c := range nd.children[1:] {
			if d := t.nodes[c].cf.squaredDistanceToVector(v); d < bestDist {
				bestChild, bestDist = c, d
			}
		}
		idx = bestChild
	}
}

// Leaves returns a lazy in-order traversal of all leaf entries via the leaf
// chain. Each call produces a fresh, restartable sequence. The tree must
// not be mutated while a sequence is being consumed.
func (t *Tree) Leaves() iter.Seq[*ClusteringFeature] {
	return func(yield func(*ClusteringFeature) bool) {
		for li := t.firstLeaf; li != noNode; li = t.nodes[li].next {
			for _, cf := range t.nodes[li].entries {
				if !yield(cf) {
					return
				}
			}
		}
	}
}

// LeafEntries returns the current number of leaf entries.
func (t *Tree) LeafEntries() int { return t.leafEntries }

// Threshold returns the current absorption threshold.
func (t *Tree) Threshold() float64 { return t.threshold }

// Rebuilds returns how many rebuild cycles the tree has gone through.
func (t *Tree) Rebuilds() int { return t.rebuilds }

// Inserted returns the number of vectors inserted.
func (t *Tree) Inserted() int64 { return t.inserted }
