package birch

import (
	"context"
	"fmt"
	"iter"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/birch/cftree"
	"github.com/hupe1980/birch/kmeans"
)

// Dataset is the input contract: a finite, ordered stream of record
// identifier + vector pairs with a fixed dimensionality. Records must be
// restartable — Run ranges it twice, once to build the tree and once to
// assign records to the final clusters.
type Dataset interface {
	// Dimensions returns the dimensionality of every vector.
	Dimensions() int
	// Records returns a fresh identifier+vector sequence on each call,
	// yielding pairs in a stable order.
	Records() iter.Seq2[uint32, []float64]
}

// SliceDataset adapts in-memory vectors to the Dataset contract. Record
// identifiers are the slice indices.
type SliceDataset struct {
	vecs [][]float64
}

// NewSliceDataset wraps vecs without copying them.
func NewSliceDataset(vecs [][]float64) *SliceDataset {
	return &SliceDataset{vecs: vecs}
}

func (d *SliceDataset) Dimensions() int {
	if len(d.vecs) == 0 {
		return 0
	}
	return len(d.vecs[0])
}

func (d *SliceDataset) Records() iter.Seq2[uint32, []float64] {
	return func(yield func(uint32, []float64) bool) {
		for i, v := range d.vecs {
			if !yield(uint32(i), v) {
				return
			}
		}
	}
}

// Birch clusters large vector datasets by summarizing them into a bounded
// CF-tree and running weighted k-means over the leaf summaries.
type Birch struct {
	opts   Options
	logger *Logger
}

// New creates a Birch clusterer.
// Dimension and K are required and must be set at creation time.
func New(optFns ...func(o *Options)) (*Birch, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("birch: %w", err)
	}
	opts.fillDefaults()

	return &Birch{
		opts:   opts,
		logger: opts.Logger.WithDimension(opts.Dimension),
	}, nil
}

// Run clusters the dataset. It builds the tree from one pass over the
// records, refines k means over the leaf summaries, then assigns every
// record to the cluster owning its nearest leaf in a second pass.
func (b *Birch) Run(ctx context.Context, dataset Dataset) (*Clustering, error) {
	if dataset == nil {
		return nil, fmt.Errorf("birch: dataset is nil")
	}
	if d := dataset.Dimensions(); d != b.opts.Dimension && d != 0 {
		return nil, fmt.Errorf("birch: %w", &cftree.ErrDimensionMismatch{Expected: b.opts.Dimension, Actual: d})
	}

	tree, err := b.buildTree(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if tree.Inserted() == 0 {
		return nil, fmt.Errorf("birch: %w", ErrEmptyDataset)
	}

	pts, leaves := flattenLeaves(tree, b.opts.Dimension)
	if len(leaves) < b.opts.K {
		return nil, fmt.Errorf("birch: %w: %d < %d", ErrTooFewLeaves, len(leaves), b.opts.K)
	}

	res, err := b.refine(ctx, pts)
	if err != nil {
		return nil, err
	}

	clusters, err := b.assignRecords(ctx, dataset, tree, leaves, res)
	if err != nil {
		return nil, err
	}

	return &Clustering{
		Clusters: clusters,
		Stats: Stats{
			Records:     tree.Inserted(),
			LeafEntries: tree.LeafEntries(),
			Rebuilds:    tree.Rebuilds(),
			Threshold:   tree.Threshold(),
			Iterations:  res.Iterations,
			State:       res.State,
		},
	}, nil
}

func (b *Birch) buildTree(ctx context.Context, dataset Dataset) (*cftree.Tree, error) {
	tree, err := cftree.New(func(o *cftree.Options) {
		o.Dimension = b.opts.Dimension
		o.BranchingFactor = b.opts.BranchingFactor
		o.LeafCapacity = b.opts.LeafCapacity
		o.MaxLeafEntries = b.opts.MaxLeafEntries
		o.Threshold = b.opts.Threshold
		o.MaxRebuilds = b.opts.MaxRebuilds
		o.Logger = b.logger.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("birch: %w", err)
	}

	for id, v := range dataset.Records() {
		if err := tree.Insert(ctx, v); err != nil {
			return nil, fmt.Errorf("birch: insert record %d: %w", id, err)
		}
	}

	b.logger.LogTreeBuilt(ctx, tree.Inserted(), tree.LeafEntries(), tree.Rebuilds(), tree.Threshold())
	return tree, nil
}

// flattenLeaves extracts the leaf summaries as weighted pseudo-points,
// keeping the leaf order so leaves[i] backs pseudo-point i.
func flattenLeaves(tree *cftree.Tree, dim int) (kmeans.Points, []*cftree.ClusteringFeature) {
	m := tree.LeafEntries()
	pts := kmeans.Points{
		Means:      make([][]float64, 0, m),
		Weights:    make([]float64, 0, m),
		LinearSums: make([][]float64, 0, m),
		SumSquares: make([]float64, 0, m),
	}
	leaves := make([]*cftree.ClusteringFeature, 0, m)

	for cf := range tree.Leaves() {
		mean := make([]float64, dim)
		cf.CentroidInto(mean)
		pts.Means = append(pts.Means, mean)
		pts.Weights = append(pts.Weights, float64(cf.N()))
		pts.LinearSums = append(pts.LinearSums, cf.LinearSum())
		pts.SumSquares = append(pts.SumSquares, cf.SumSquares())
		leaves = append(leaves, cf)
	}
	return pts, leaves
}

func (b *Birch) refine(ctx context.Context, pts kmeans.Points) (*kmeans.Result, error) {
	rng := rand.New(rand.NewSource(b.opts.RandomSeed))
	lloyd, err := kmeans.NewLloyd(b.opts.K, b.opts.MaxIterations, kmeans.NewPlusPlus(rng))
	if err != nil {
		return nil, fmt.Errorf("birch: %w", err)
	}

	res, err := lloyd.Run(ctx, pts)
	if err != nil {
		return nil, fmt.Errorf("birch: %w", err)
	}

	b.logger.LogRefined(ctx, b.opts.K, res.Iterations, res.State.String())
	return res, nil
}

// assignRecords maps every record to the cluster owning its nearest leaf.
// The tree is finished and read-only here, so lookups fan out across
// workers; each worker collects ids into private bitmaps merged at the end.
func (b *Birch) assignRecords(ctx context.Context, dataset Dataset, tree *cftree.Tree, leaves []*cftree.ClusteringFeature, res *kmeans.Result) ([]*Cluster, error) {
	clusterOf := make(map[*cftree.ClusteringFeature]int, len(leaves))
	for c, cl := range res.Clusters {
		for _, i := range cl.Members {
			clusterOf[leaves[i]] = c
		}
	}

	type record struct {
		id  uint32
		vec []float64
	}

	workers := b.opts.NumWorkers
	partial := make([][]*roaring.Bitmap, workers)
	records := make(chan record, workers*4)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		for id, v := range dataset.Records() {
			select {
			case records <- record{id: id, vec: v}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		bitmaps := make([]*roaring.Bitmap, b.opts.K)
		for c := range bitmaps {
			bitmaps[c] = roaring.New()
		}
		partial[w] = bitmaps

		g.Go(func() error {
			for rec := range records {
				leaf := tree.FindLeaf(rec.vec)
				if leaf == nil {
					return fmt.Errorf("record %d: no leaf found: %w", rec.id, ErrPartitionViolation)
				}
				c, ok := clusterOf[leaf]
				if !ok {
					return fmt.Errorf("record %d: %w", rec.id, ErrPartitionViolation)
				}
				bitmaps[c].Add(rec.id)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.LogAssigned(ctx, tree.Inserted(), workers, err)
		return nil, fmt.Errorf("birch: %w", err)
	}

	clusters := make([]*Cluster, b.opts.K)
	for c := range clusters {
		ids := roaring.New()
		for w := range partial {
			ids.Or(partial[w][c])
		}
		clusters[c] = &Cluster{
			IDs: ids,
			Model: KMeansModel{
				Mean:     res.Clusters[c].Mean,
				Variance: res.Clusters[c].Variance,
			},
		}
	}

	b.logger.LogAssigned(ctx, tree.Inserted(), workers, nil)
	return clusters, nil
}
