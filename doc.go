// Package birch implements scalable BIRCH clustering for numeric vector
// data too large to cluster point-by-point in memory.
//
// The pipeline has two stages:
//
//  1. A CF-tree (package cftree) summarizes the input stream into a bounded
//     number of clustering features — count, linear sum and sum of squares
//     per group of nearby vectors. Memory stays proportional to the
//     configured capacity regardless of input size: when the tree grows too
//     large it raises its absorption threshold and rebuilds itself from its
//     own summaries.
//  2. Weighted k-means (package kmeans) clusters the leaf summaries, each
//     treated as one pseudo-point whose weight is the number of records it
//     stands for. Means and variances come from the aggregate statistics,
//     never from re-scanning records.
//
// Finally every record is mapped to the cluster owning its nearest leaf,
// producing a total partition of the original record identifiers.
//
// # Quick Start
//
//	ctx := context.Background()
//	b, err := birch.New(func(o *birch.Options) {
//		o.Dimension = 2
//		o.K = 3
//		o.RandomSeed = 42
//	})
//	if err != nil {
//		panic(err)
//	}
//
//	result, err := b.Run(ctx, birch.NewSliceDataset(vectors))
//	if err != nil {
//		panic(err)
//	}
//	result.WriteTo(os.Stdout)
//
// Runs are deterministic for a fixed seed, options and input order.
package birch
