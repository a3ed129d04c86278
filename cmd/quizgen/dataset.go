package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quizgen/internal/batch"
	"quizgen/internal/config"
	"quizgen/internal/dataset"
	"quizgen/internal/encode"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Work with SQuAD training datasets",
}

var datasetEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a SQuAD file into model-ready features",
	Long: "Encode parses a SQuAD-layout JSON file, highlights each answer span " +
		"in its context, and encodes the items into padded feature batches. " +
		"With --cache the features are written to disk and reused on later runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDatasetEncode(cmd)
	},
}

func init() {
	datasetEncodeCmd.Flags().String("in", "", "Path to the SQuAD JSON file (required)")
	datasetEncodeCmd.Flags().String("cache", "", "Feature cache file to read/write (defaults into FEATURE_CACHE_DIR)")
	datasetEncodeCmd.Flags().Int("workers", 0, "Parallel encoding workers (defaults to ENCODE_WORKERS)")
	datasetEncodeCmd.Flags().Int("batch-size", 8, "Examples per batch")
	datasetEncodeCmd.Flags().String("prefix", string(encode.PrefixQG), "Task prefix: ans_ext, e2e_qg, qa, or qg")
	datasetEncodeCmd.Flags().Bool("validate-only", false, "Validate the file against the SQuAD schema and exit")
	datasetEncodeCmd.MarkFlagRequired("in")

	datasetCmd.AddCommand(datasetEncodeCmd)
}

func runDatasetEncode(cmd *cobra.Command) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	in, _ := cmd.Flags().GetString("in")
	raw, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}

	if validateOnly, _ := cmd.Flags().GetBool("validate-only"); validateOnly {
		if err := dataset.Validate(raw); err != nil {
			return err
		}
		fmt.Printf("%s is valid SQuAD JSON\n", in)
		return nil
	}

	corpus, err := dataset.Parse(raw)
	if err != nil {
		return err
	}
	log.Info("dataset loaded", "path", in, "items", corpus.Len())

	prefixStr, _ := cmd.Flags().GetString("prefix")
	prefix := encode.TaskPrefix(prefixStr)
	if !prefix.Valid() {
		return fmt.Errorf("unknown task prefix %q", prefixStr)
	}

	tok, err := buildTokenizer(cfg)
	if err != nil {
		return err
	}
	enc := &encode.Encoder{
		Tok:             tok,
		MaxLength:       cfg.MaxLength,
		MaxLengthOutput: cfg.MaxLengthOutput,
		Prefix:          &prefix,
		DropOverflow:    true,
		Pad:             true,
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.EncodeWorkers
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	cachePath, _ := cmd.Flags().GetString("cache")
	if cachePath == "" && cfg.FeatureCacheDir != "" {
		// The prefix changes the encoded features, so it is part of the cache name.
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		cachePath = filepath.Join(cfg.FeatureCacheDir, fmt.Sprintf("%s.%s.features.json", base, prefix))
	}

	inputs, targets, highlights := corpus.EncodeItems()
	ds, err := batch.Load(context.Background(), enc, inputs, targets, highlights, batch.Options{
		BatchSize: batchSize,
		Workers:   workers,
		CachePath: cachePath,
	}, log)
	if err != nil {
		return err
	}

	batches, err := ds.Batches(batchSize, false, false)
	if err != nil {
		return err
	}
	fmt.Printf("encoded %d of %d items into %d batches\n", ds.Len(), corpus.Len(), len(batches))
	if cachePath != "" {
		fmt.Printf("features cached at %s\n", cachePath)
	}
	return nil
}
