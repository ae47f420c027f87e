// Package main provides the birch CLI entry point.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/birch"
	"github.com/hupe1980/birch/codec"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "birch",
		Short: "birch - scalable BIRCH clustering for vector data",
		Long: `birch clusters large numeric datasets with bounded memory:
it summarizes the input into a CF-tree and runs weighted k-means
over the tree's leaf summaries instead of the raw points.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("birch v%s\n", version)
		},
	})

	clusterCmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster a CSV file of numeric vectors",
		Long: `Cluster a CSV file where every row is one vector of equal length.
Row numbers (0-based) become the record identifiers in the output.`,
		RunE: runCluster,
	}
	clusterCmd.Flags().String("input", "", "Input CSV file (required)")
	clusterCmd.Flags().String("config", "", "YAML config file")
	clusterCmd.Flags().Int("k", 2, "Number of clusters")
	clusterCmd.Flags().Int("branching", 8, "Branching factor of internal tree nodes")
	clusterCmd.Flags().Int("leaf-capacity", 64, "Summaries per leaf before a split")
	clusterCmd.Flags().Int("capacity", 0, "Total leaf summary budget (0 = auto)")
	clusterCmd.Flags().Float64("threshold", 0, "Initial absorption threshold")
	clusterCmd.Flags().Int("max-iter", 0, "Lloyd iteration cap (0 = unlimited)")
	clusterCmd.Flags().Int64("seed", 1, "Random seed for k-means++ seeding")
	clusterCmd.Flags().Int("workers", 0, "Assignment workers (0 = GOMAXPROCS)")
	clusterCmd.Flags().String("output", "", "Write JSON result to file; .zst/.lz4 compresses (default: text to stdout)")
	clusterCmd.Flags().String("codec", "", "JSON encoder: json or go-json")
	clusterCmd.Flags().Bool("verbose", false, "Log progress to stderr")
	_ = clusterCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(clusterCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCluster(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	configPath, _ := cmd.Flags().GetString("config")
	output, _ := cmd.Flags().GetString("output")
	codecName, _ := cmd.Flags().GetString("codec")
	verbose, _ := cmd.Flags().GetBool("verbose")

	vecs, err := readCSV(input)
	if err != nil {
		return err
	}
	if len(vecs) == 0 {
		return fmt.Errorf("no vectors in %s", input)
	}

	var cfg *Config
	if configPath != "" {
		if cfg, err = LoadConfig(configPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := birch.New(func(o *birch.Options) {
		o.Dimension = len(vecs[0])
		if cfg != nil {
			cfg.Apply(o)
		}
		applyFlags(cmd, o)
		if verbose {
			o.Logger = birch.NewTextLogger(slog.LevelDebug)
		}
	})
	if err != nil {
		return err
	}

	result, err := b.Run(ctx, birch.NewSliceDataset(vecs))
	if err != nil {
		return err
	}

	if output == "" {
		_, err = result.WriteTo(os.Stdout)
		return err
	}
	return writeResult(result, output, codecName)
}

// applyFlags overrides options with flags the user set explicitly, so the
// precedence is defaults < config file < flags.
func applyFlags(cmd *cobra.Command, o *birch.Options) {
	flags := cmd.Flags()
	if flags.Changed("k") {
		o.K, _ = flags.GetInt("k")
	}
	if flags.Changed("branching") {
		o.BranchingFactor, _ = flags.GetInt("branching")
	}
	if flags.Changed("leaf-capacity") {
		o.LeafCapacity, _ = flags.GetInt("leaf-capacity")
	}
	if flags.Changed("capacity") {
		o.MaxLeafEntries, _ = flags.GetInt("capacity")
	}
	if flags.Changed("threshold") {
		o.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("max-iter") {
		o.MaxIterations, _ = flags.GetInt("max-iter")
	}
	if flags.Changed("seed") {
		o.RandomSeed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("workers") {
		o.NumWorkers, _ = flags.GetInt("workers")
	}
}

// readCSV parses every row as one vector. All rows must have equal length.
func readCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	var vecs [][]float64
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		vec := make([]float64, len(row))
		for i, field := range row {
			vec[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, len(vecs)+1, err)
			}
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

// writeResult encodes the clustering as JSON, compressed per the output
// file's extension.
func writeResult(result *birch.Clustering, output, codecName string) error {
	enc := codec.Default
	if codecName != "" {
		c, ok := codec.ByName(codecName)
		if !ok {
			return fmt.Errorf("unknown codec %q", codecName)
		}
		enc = c
	}

	data, err := enc.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w, err := codec.NewWriter(f, codec.CompressionForPath(output))
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return f.Close()
}
