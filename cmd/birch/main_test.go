package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/birch"
)

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("1.0,2.0\n3.5,-4.25\n"), 0o644))

	vecs, err := readCSV(path)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{1, 2}, {3.5, -4.25}}, vecs)
}

func TestReadCSVBadField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("1.0,abc\n"), 0o644))

	_, err := readCSV(path)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"k: 5\nleaf_capacity: 16\nthreshold: 0.25\nrandom_seed: 99\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	o := birch.DefaultOptions
	cfg.Apply(&o)

	assert.Equal(t, 5, o.K)
	assert.Equal(t, 16, o.LeafCapacity)
	assert.Equal(t, 0.25, o.Threshold)
	assert.Equal(t, int64(99), o.RandomSeed)
	// Untouched values keep their defaults.
	assert.Equal(t, birch.DefaultOptions.BranchingFactor, o.BranchingFactor)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
