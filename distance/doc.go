// Package distance provides Euclidean distance kernels for float64 vectors.
//
// The clustering core works with aggregate statistics (sums and sums of
// squared norms over many records), so all kernels operate on float64 to
// preserve the precision the variance formulas depend on.
package distance
