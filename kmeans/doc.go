// Package kmeans implements weighted k-means over aggregate statistics.
//
// The inputs are not raw data points but weighted pseudo-points: each one
// summarizes many original records through its linear sum, sum of squared
// norms, and weight (record count). Means and variances are computed from
// those aggregates alone, never by re-scanning original records. Seeding
// uses k-means++ and refinement uses Lloyd's algorithm with weighted
// centroids.
package kmeans
