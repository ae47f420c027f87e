package cftree

import "math"

// ClusteringFeature is the additive sufficient statistic of a set of
// vectors: the count, the component-wise linear sum and the sum of squared
// L2 norms. Centroid and radius derive from these in O(dim) without touching
// the summarized vectors.
//
// A ClusteringFeature is mutated only while the tree is being built; the
// orchestration layer relies on pointer identity staying stable afterwards.
type ClusteringFeature struct {
	n  int64
	ls []float64
	ss float64
}

// NewClusteringFeature returns an empty clustering feature of the given
// dimensionality.
func NewClusteringFeature(dim int) *ClusteringFeature {
	return &ClusteringFeature{ls: make([]float64, dim)}
}

// N returns the number of vectors summarized.
func (cf *ClusteringFeature) N() int64 { return cf.n }

// Weight returns the number of vectors summarized as a float64.
func (cf *ClusteringFeature) Weight() float64 { return float64(cf.n) }

// Dim returns the dimensionality of the summarized vectors.
func (cf *ClusteringFeature) Dim() int { return len(cf.ls) }

// LinearSum returns the component-wise sum of the summarized vectors.
// The returned slice aliases internal state and must not be modified.
func (cf *ClusteringFeature) LinearSum() []float64 { return cf.ls }

// SumSquares returns the sum of squared L2 norms of the summarized vectors.
func (cf *ClusteringFeature) SumSquares() float64 { return cf.ss }

// AddVector folds a single vector into the statistic.
// The vector length must equal Dim (caller's responsibility).
func (cf *ClusteringFeature) AddVector(v []float64) {
	cf.n++
	for i, x := range v {
		cf.ls[i] += x
		cf.ss += x * x
	}
}

// AddCF merges another clustering feature into this one. The two features
// must summarize disjoint vector sets for the result to be meaningful.
func (cf *ClusteringFeature) AddCF(o *ClusteringFeature) {
	cf.n += o.n
	for i, x := range o.ls {
		cf.ls[i] += x
	}
	cf.ss += o.ss
}

// Centroid returns component i of the centroid. Undefined for n == 0.
func (cf *ClusteringFeature) Centroid(i int) float64 {
	return cf.ls[i] / float64(cf.n)
}

// CentroidInto writes the centroid into dst, which must have length Dim.
func (cf *ClusteringFeature) CentroidInto(dst []float64) {
	inv := 1 / float64(cf.n)
	for i, x := range cf.ls {
		dst[i] = x * inv
	}
}

// Radius returns sqrt(SS/n - |centroid|^2), the standard deviation of the
// summarized vectors around their centroid. Floating-point cancellation can
// push the radicand slightly negative for tight entries; it is clamped at 0.
func (cf *ClusteringFeature) Radius() float64 {
	if cf.n == 0 {
		return 0
	}
	return math.Sqrt(math.Max(0, cf.squaredRadius()))
}

func (cf *ClusteringFeature) squaredRadius() float64 {
	inv := 1 / float64(cf.n)
	var c2 float64
	for _, x := range cf.ls {
		c := x * inv
		c2 += c * c
	}
	return cf.ss*inv - c2
}

// squaredCentroidDistance returns the squared L2 distance between the
// centroids of two features without materializing either centroid.
func squaredCentroidDistance(a, b *ClusteringFeature) float64 {
	ia, ib := 1/float64(a.n), 1/float64(b.n)
	var dist float64
	for i := range a.ls {
		d := a.ls[i]*ia - b.ls[i]*ib
		dist += d * d
	}
	return dist
}

// squaredDistanceToVector returns the squared L2 distance between the
// feature's centroid and v.
func (cf *ClusteringFeature) squaredDistanceToVector(v []float64) float64 {
	inv := 1 / float64(cf.n)
	var dist float64
	for i, x := range cf.ls {
		d := x*inv - v[i]
		dist += d * d
	}
	return dist
}

// mergedSquaredRadius returns the squared radius the entry would have after
// absorbing o, computed from the merged aggregate statistics alone.
func mergedSquaredRadius(cf, o *ClusteringFeature) float64 {
	n := float64(cf.n + o.n)
	inv := 1 / n
	var c2 float64
	for i := range cf.ls {
		c := (cf.ls[i] + o.ls[i]) * inv
		c2 += c * c
	}
	return (cf.ss+o.ss)*inv - c2
}
