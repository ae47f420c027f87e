package birch

import (
	"errors"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrTooFewLeaves is returned when the finished tree holds fewer leaf
	// summaries than the requested number of clusters. Lower k, lower the
	// threshold, or raise the leaf-entry budget.
	ErrTooFewLeaves = errors.New("fewer leaf summaries than clusters")

	// ErrPartitionViolation indicates an internal-consistency defect: a
	// record's nearest leaf belongs to no cluster, even though the k-means
	// stage partitions all leaves. Records are never silently dropped.
	ErrPartitionViolation = errors.New("leaf not owned by any cluster")

	// ErrEmptyDataset is returned when the dataset yields no records.
	ErrEmptyDataset = errors.New("dataset is empty")
)
