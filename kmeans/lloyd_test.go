package kmeans

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/birch/distance"
)

// unitPoints builds pseudo-points of weight 1 from raw positions.
func unitPoints(x [][]float64) Points {
	pts := Points{
		Means:      x,
		Weights:    make([]float64, len(x)),
		LinearSums: make([][]float64, len(x)),
		SumSquares: make([]float64, len(x)),
	}
	for i, v := range x {
		pts.Weights[i] = 1
		pts.LinearSums[i] = v
		pts.SumSquares[i] = distance.SquaredNorm(v)
	}
	return pts
}

func TestLloydRun(t *testing.T) {
	ctx := context.Background()

	t.Run("k equals one converges in a single iteration", func(t *testing.T) {
		pts := unitPoints([][]float64{
			{0, 0}, {2, 0}, {0, 2}, {2, 2},
		})

		l, err := NewLloyd(1, 0, NewPlusPlus(rand.New(rand.NewSource(1))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)

		assert.Equal(t, Converged, res.State)
		assert.Equal(t, 1, res.Iterations)
		assert.Equal(t, []float64{1, 1}, res.Clusters[0].Mean)
	})

	t.Run("variance matches the population variance", func(t *testing.T) {
		pts := unitPoints([][]float64{
			{0, 0}, {2, 0}, {0, 2}, {2, 2},
		})

		l, err := NewLloyd(1, 0, NewPlusPlus(rand.New(rand.NewSource(1))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)

		// Mean (1,1); each point at squared distance 2 from it.
		assert.InDelta(t, 2.0, res.Clusters[0].Variance, 1e-12)
	})

	t.Run("weighted centroid, not position average", func(t *testing.T) {
		// One pseudo-point summarizing 9 records at the origin, one
		// summarizing a single record at (10,0). The weighted mean is
		// (1,0), not the position midpoint (5,0).
		pts := Points{
			Means:      [][]float64{{0, 0}, {10, 0}},
			Weights:    []float64{9, 1},
			LinearSums: [][]float64{{0, 0}, {10, 0}},
			SumSquares: []float64{0, 100},
		}

		l, err := NewLloyd(1, 0, NewPlusPlus(rand.New(rand.NewSource(1))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)

		assert.Equal(t, []float64{1, 0}, res.Clusters[0].Mean)
	})

	t.Run("separates two obvious blobs", func(t *testing.T) {
		rng := rand.New(rand.NewSource(11))
		var x [][]float64
		for range 20 {
			x = append(x, []float64{rng.NormFloat64(), rng.NormFloat64()})
		}
		for range 20 {
			x = append(x, []float64{50 + rng.NormFloat64(), 50 + rng.NormFloat64()})
		}
		pts := unitPoints(x)

		l, err := NewLloyd(2, 0, NewPlusPlus(rand.New(rand.NewSource(2))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)
		require.Equal(t, Converged, res.State)

		// Every member must be closer to its own cluster mean than to
		// the other one.
		for c, cl := range res.Clusters {
			for _, i := range cl.Members {
				best, _ := distance.Nearest(x[i], [][]float64{res.Clusters[0].Mean, res.Clusters[1].Mean})
				assert.Equal(t, c, best)
			}
		}
	})

	t.Run("partition covers every pseudo-point exactly once", func(t *testing.T) {
		rng := rand.New(rand.NewSource(9))
		var x [][]float64
		for range 60 {
			x = append(x, []float64{rng.Float64() * 20, rng.Float64() * 20})
		}
		pts := unitPoints(x)

		l, err := NewLloyd(4, 0, NewPlusPlus(rand.New(rand.NewSource(4))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)

		seen := make(map[int]int)
		for _, cl := range res.Clusters {
			for _, i := range cl.Members {
				seen[i]++
			}
		}
		require.Len(t, seen, 60)
		for _, count := range seen {
			assert.Equal(t, 1, count)
		}
	})

	t.Run("iteration cap is a successful completion", func(t *testing.T) {
		rng := rand.New(rand.NewSource(17))
		var x [][]float64
		for range 100 {
			x = append(x, []float64{rng.Float64(), rng.Float64()})
		}
		pts := unitPoints(x)

		l, err := NewLloyd(8, 1, NewPlusPlus(rand.New(rand.NewSource(6))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Iterations)
		assert.Contains(t, []State{Converged, IterationCapReached}, res.State)
	})

	t.Run("identical points with several means", func(t *testing.T) {
		pts := unitPoints([][]float64{
			{3, 3}, {3, 3}, {3, 3}, {3, 3}, {3, 3},
		})

		l, err := NewLloyd(3, 0, NewPlusPlus(rand.New(rand.NewSource(8))))
		require.NoError(t, err)

		res, err := l.Run(ctx, pts)
		require.NoError(t, err)
		assert.Equal(t, Converged, res.State)

		total := 0
		for _, cl := range res.Clusters {
			total += len(cl.Members)
			assert.InDelta(t, 0, cl.Variance, 1e-12)
		}
		assert.Equal(t, 5, total)
	})

	t.Run("objective is non-increasing across iterations", func(t *testing.T) {
		rng := rand.New(rand.NewSource(31))
		var x [][]float64
		for range 80 {
			x = append(x, []float64{rng.Float64() * 10, rng.Float64() * 10})
		}

		// Runs are deterministic for a fixed seed, so capping at m
		// iterations reproduces the state after iteration m.
		objective := func(maxIter int) float64 {
			l, err := NewLloyd(5, maxIter, NewPlusPlus(rand.New(rand.NewSource(14))))
			require.NoError(t, err)
			res, err := l.Run(ctx, unitPoints(x))
			require.NoError(t, err)

			var sum float64
			for _, cl := range res.Clusters {
				for _, i := range cl.Members {
					sum += distance.SquaredL2(x[i], cl.Mean)
				}
			}
			return sum
		}

		prev := objective(1)
		for m := 2; m <= 6; m++ {
			cur := objective(m)
			assert.LessOrEqual(t, cur, prev+1e-9)
			prev = cur
		}
	})

	t.Run("deterministic for a fixed seed", func(t *testing.T) {
		rng := rand.New(rand.NewSource(23))
		var x [][]float64
		for range 40 {
			x = append(x, []float64{rng.Float64() * 5, rng.Float64() * 5})
		}

		run := func() *Result {
			l, err := NewLloyd(3, 0, NewPlusPlus(rand.New(rand.NewSource(12))))
			require.NoError(t, err)
			res, err := l.Run(ctx, unitPoints(x))
			require.NoError(t, err)
			return res
		}

		assert.Equal(t, run(), run())
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()

		l, err := NewLloyd(1, 0, NewPlusPlus(rand.New(rand.NewSource(1))))
		require.NoError(t, err)

		_, err = l.Run(cctx, unitPoints([][]float64{{0}, {1}}))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("configuration errors", func(t *testing.T) {
		_, err := NewLloyd(0, 0, NewPlusPlus(rand.New(rand.NewSource(1))))
		assert.Error(t, err)

		_, err = NewLloyd(1, -1, NewPlusPlus(rand.New(rand.NewSource(1))))
		assert.Error(t, err)

		_, err = NewLloyd(1, 0, nil)
		assert.Error(t, err)

		l, err := NewLloyd(4, 0, NewPlusPlus(rand.New(rand.NewSource(1))))
		require.NoError(t, err)
		_, err = l.Run(context.Background(), unitPoints([][]float64{{0}, {1}}))
		assert.Error(t, err)
	})
}
