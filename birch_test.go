package birch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/birch/cftree"
	"github.com/hupe1980/birch/testutil"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		b, err := New()
		require.NoError(t, err)
		assert.NotNil(t, b)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := New(func(o *Options) {
			o.K = 0
		})
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("invalid dimension", func(t *testing.T) {
		_, err := New(func(o *Options) {
			o.Dimension = -1
		})
		assert.Error(t, err)
	})

	t.Run("invalid capacities", func(t *testing.T) {
		_, err := New(func(o *Options) {
			o.BranchingFactor = 1
		})
		assert.Error(t, err)

		_, err = New(func(o *Options) {
			o.LeafCapacity = 1
		})
		assert.Error(t, err)
	})

	t.Run("invalid threshold", func(t *testing.T) {
		_, err := New(func(o *Options) {
			o.Threshold = -0.5
		})
		assert.Error(t, err)
	})
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("nil dataset", func(t *testing.T) {
		b, err := New()
		require.NoError(t, err)

		_, err = b.Run(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("empty dataset", func(t *testing.T) {
		b, err := New(func(o *Options) {
			o.Dimension = 2
		})
		require.NoError(t, err)

		_, err = b.Run(ctx, NewSliceDataset(nil))
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		b, err := New(func(o *Options) {
			o.Dimension = 2
		})
		require.NoError(t, err)

		_, err = b.Run(ctx, NewSliceDataset([][]float64{{1, 2, 3}}))

		var dm *cftree.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 2, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
	})

	t.Run("fewer leaves than clusters", func(t *testing.T) {
		b, err := New(func(o *Options) {
			o.Dimension = 2
			o.K = 3
		})
		require.NoError(t, err)

		// Identical vectors collapse into a single leaf summary.
		_, err = b.Run(ctx, NewSliceDataset([][]float64{
			{1, 1}, {1, 1}, {1, 1}, {1, 1},
		}))
		assert.ErrorIs(t, err, ErrTooFewLeaves)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		b, err := New(func(o *Options) {
			o.Dimension = 2
		})
		require.NoError(t, err)

		_, err = b.Run(cctx, NewSliceDataset([][]float64{{0, 0}, {1, 1}}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// threeBlobs builds a dataset of three well-separated Gaussian clusters.
func threeBlobs(seed int64, count int) ([][]float64, []int) {
	rng := testutil.NewRNG(seed)
	return rng.GaussianBlobs([]testutil.Blob{
		{Center: []float64{0, 0}, Stddev: 1, Count: count},
		{Center: []float64{60, 0}, Stddev: 1, Count: count},
		{Center: []float64{0, 60}, Stddev: 1, Count: count},
	})
}

func TestRunThreeBlobs(t *testing.T) {
	ctx := context.Background()
	vecs, labels := threeBlobs(42, 200)

	// Tight capacities so the build goes through at least one rebuild.
	b, err := New(func(o *Options) {
		o.Dimension = 2
		o.K = 3
		o.LeafCapacity = 4
		o.MaxLeafEntries = 64
		o.RandomSeed = 7
	})
	require.NoError(t, err)

	result, err := b.Run(ctx, NewSliceDataset(vecs))
	require.NoError(t, err)
	require.Len(t, result.Clusters, 3)

	assert.Equal(t, int64(600), result.Stats.Records)
	assert.Positive(t, result.Stats.Rebuilds)
	assert.LessOrEqual(t, result.Stats.LeafEntries, 64)

	t.Run("partition covers every record exactly once", func(t *testing.T) {
		seen := make(map[uint32]int)
		for _, c := range result.Clusters {
			for _, id := range c.IDs.ToArray() {
				seen[id]++
			}
		}
		require.Len(t, seen, 600)
		for _, n := range seen {
			assert.Equal(t, 1, n)
		}
	})

	t.Run("matches the generating blobs", func(t *testing.T) {
		predicted := make([]int, len(vecs))
		for c, cl := range result.Clusters {
			for _, id := range cl.IDs.ToArray() {
				predicted[id] = c
			}
		}
		agreement := testutil.ClusterAgreement(predicted, labels, 3)
		assert.Greater(t, agreement, 0.95)
	})

	t.Run("means sit near the blob centers", func(t *testing.T) {
		centers := [][]float64{{0, 0}, {60, 0}, {0, 60}}
		for _, c := range result.Clusters {
			nearest := -1
			for i, ctr := range centers {
				if dist2(c.Model.Mean, ctr) < 4 {
					nearest = i
				}
			}
			assert.GreaterOrEqual(t, nearest, 0, "mean %v not near any center", c.Model.Mean)
		}
	})

	t.Run("variance reflects the blob spread", func(t *testing.T) {
		// Each blob has per-axis variance ~1, so total variance ~2,
		// inflated somewhat by summary granularity.
		for _, c := range result.Clusters {
			assert.Greater(t, c.Model.Variance, 0.0)
			assert.Less(t, c.Model.Variance, 10.0)
		}
	})
}

func dist2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func TestRunDeterministic(t *testing.T) {
	ctx := context.Background()
	vecs, _ := threeBlobs(99, 100)

	run := func() *Clustering {
		b, err := New(func(o *Options) {
			o.Dimension = 2
			o.K = 3
			o.LeafCapacity = 4
			o.MaxLeafEntries = 64
			o.RandomSeed = 13
			o.NumWorkers = 4
		})
		require.NoError(t, err)

		result, err := b.Run(ctx, NewSliceDataset(vecs))
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Len(t, b.Clusters, len(a.Clusters))
	for i := range a.Clusters {
		assert.Equal(t, a.Clusters[i].IDs.ToArray(), b.Clusters[i].IDs.ToArray())
		assert.Equal(t, a.Clusters[i].Model, b.Clusters[i].Model)
	}
}

func TestClusteringOutput(t *testing.T) {
	ctx := context.Background()
	vecs, _ := threeBlobs(5, 50)

	b, err := New(func(o *Options) {
		o.Dimension = 2
		o.K = 3
		o.RandomSeed = 3
	})
	require.NoError(t, err)

	result, err := b.Run(ctx, NewSliceDataset(vecs))
	require.NoError(t, err)

	t.Run("text report", func(t *testing.T) {
		var sb strings.Builder
		n, err := result.WriteTo(&sb)
		require.NoError(t, err)
		assert.Equal(t, int64(sb.Len()), n)

		out := sb.String()
		assert.Contains(t, out, "3 clusters over 150 records")
		assert.Contains(t, out, "Cluster 0")
		assert.Contains(t, out, "variance=")
	})

	t.Run("json", func(t *testing.T) {
		data, err := json.Marshal(result)
		require.NoError(t, err)

		var decoded struct {
			Clusters []struct {
				Size uint64   `json:"size"`
				IDs  []uint32 `json:"ids"`
			} `json:"clusters"`
			Stats struct {
				Records int64  `json:"records"`
				State   string `json:"state"`
			} `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(data, &decoded))

		require.Len(t, decoded.Clusters, 3)
		var total uint64
		for _, c := range decoded.Clusters {
			assert.Equal(t, c.Size, uint64(len(c.IDs)))
			total += c.Size
		}
		assert.Equal(t, uint64(150), total)
		assert.Equal(t, int64(150), decoded.Stats.Records)
		assert.Equal(t, "converged", decoded.Stats.State)
	})

	t.Run("named cluster", func(t *testing.T) {
		c := result.Clusters[0]
		assert.Equal(t, "Cluster 0", c.NameAutomatic(0))
		c.Name = "noise"
		assert.Equal(t, "noise", c.NameAutomatic(0))
		c.Name = ""
	})
}

func TestSliceDataset(t *testing.T) {
	ds := NewSliceDataset([][]float64{{1, 2}, {3, 4}, {5, 6}})

	assert.Equal(t, 2, ds.Dimensions())

	t.Run("yields ids in order and restarts", func(t *testing.T) {
		for range 2 {
			var ids []uint32
			for id, v := range ds.Records() {
				ids = append(ids, id)
				assert.Len(t, v, 2)
			}
			assert.Equal(t, []uint32{0, 1, 2}, ids)
		}
	})

	t.Run("early stop", func(t *testing.T) {
		count := 0
		for range ds.Records() {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}

func TestRunErrorsAreWrapped(t *testing.T) {
	_, err := New(func(o *Options) {
		o.K = -1
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidK))
	assert.Contains(t, err.Error(), "birch:")
}
