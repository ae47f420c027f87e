package birch

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/birch/kmeans"
)

// KMeansModel carries the aggregate model of one cluster: the weighted
// centroid of all records it contains and the population variance computed
// from the tree's sufficient statistics.
type KMeansModel struct {
	Mean     []float64 `json:"mean"`
	Variance float64   `json:"variance"`
}

// Cluster is one final cluster with its member record identifiers.
type Cluster struct {
	// Name is an optional label. Empty means unnamed; use NameAutomatic
	// for display.
	Name string
	// IDs holds the identifiers of the original records in this cluster.
	IDs *roaring.Bitmap
	// Model is the cluster's mean and variance.
	Model KMeansModel
}

// Size returns the number of records in the cluster.
func (c *Cluster) Size() uint64 {
	if c.IDs == nil {
		return 0
	}
	return c.IDs.GetCardinality()
}

// NameAutomatic returns the cluster's name, or a generated one if unset.
func (c *Cluster) NameAutomatic(i int) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("Cluster %d", i)
}

// clusterJSON is the stable wire form of a Cluster.
type clusterJSON struct {
	Name     string    `json:"name,omitempty"`
	Size     uint64    `json:"size"`
	IDs      []uint32  `json:"ids"`
	Mean     []float64 `json:"mean"`
	Variance float64   `json:"variance"`
}

// MarshalJSON renders the bitmap as a plain identifier array.
func (c *Cluster) MarshalJSON() ([]byte, error) {
	var ids []uint32
	if c.IDs != nil {
		ids = c.IDs.ToArray()
	}
	return json.Marshal(clusterJSON{
		Name:     c.Name,
		Size:     c.Size(),
		IDs:      ids,
		Mean:     c.Model.Mean,
		Variance: c.Model.Variance,
	})
}

// Stats are run diagnostics: what the tree did and how refinement ended.
type Stats struct {
	Records     int64        `json:"records"`
	LeafEntries int          `json:"leaf_entries"`
	Rebuilds    int          `json:"rebuilds"`
	Threshold   float64      `json:"threshold"`
	Iterations  int          `json:"iterations"`
	State       kmeans.State `json:"state"`
}

// Clustering is a completed clustering run.
type Clustering struct {
	Clusters []*Cluster `json:"clusters"`
	Stats    Stats      `json:"stats"`
}

// WriteTo renders a human-readable report of the clustering.
func (cl *Clustering) WriteTo(w io.Writer) (int64, error) {
	var total int64

	write := func(format string, args ...any) error {
		n, err := fmt.Fprintf(w, format, args...)
		total += int64(n)
		return err
	}

	if err := write("clustering: %d clusters over %d records (%d leaf summaries, %d rebuilds, %d iterations, %s)\n",
		len(cl.Clusters), cl.Stats.Records, cl.Stats.LeafEntries, cl.Stats.Rebuilds,
		cl.Stats.Iterations, cl.Stats.State); err != nil {
		return total, err
	}
	for i, c := range cl.Clusters {
		if err := write("%s: size=%d mean=%v variance=%g\n",
			c.NameAutomatic(i), c.Size(), c.Model.Mean, c.Model.Variance); err != nil {
			return total, err
		}
	}
	return total, nil
}
