package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quizgen/internal/config"
	"quizgen/internal/qg"
)

var generateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Generate question/answer pairs for a passage",
	Long: "Generate reads a passage from a file, stdin, or --text and prints " +
		"question/answer pairs. With --highlight the given answer span is used " +
		"as-is and a single question is generated for it.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, args)
	},
}

func init() {
	generateCmd.Flags().String("text", "", "Passage text (overrides file/stdin)")
	generateCmd.Flags().String("highlight", "", "Answer span to generate a question for")
	generateCmd.Flags().Int("beams", 0, "Beam width (defaults to NUM_BEAMS)")
	generateCmd.Flags().Bool("json", false, "Emit JSON instead of readable text")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	text, err := readPassage(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no input text")
	}

	ctx := context.Background()

	// Fold the input words into the built-in vocabulary so the local
	// backend can echo the passage instead of unknown tokens.
	tok, err := buildTokenizer(cfg, inputWords(text)...)
	if err != nil {
		return err
	}
	m, err := buildModel(ctx, cfg, tok, log)
	if err != nil {
		return err
	}

	gen := qg.New(tok, m, qg.Config{
		MaxLength:       cfg.MaxLength,
		MaxLengthOutput: cfg.MaxLengthOutput,
		Logger:          log,
	})

	beams, _ := cmd.Flags().GetInt("beams")
	if beams <= 0 {
		beams = cfg.NumBeams
	}
	opts := qg.Options{
		NumBeams:      beams,
		EncodeWorkers: cfg.EncodeWorkers,
	}

	var pairs []qg.QAPair
	if highlight, _ := cmd.Flags().GetString("highlight"); highlight != "" {
		questions, err := gen.GenerateQuestions(ctx, []string{text}, []*string{&highlight}, opts)
		if err != nil {
			return err
		}
		for _, q := range questions {
			pairs = append(pairs, qg.QAPair{Question: q, Answer: highlight})
		}
	} else {
		pairs, err = gen.GenerateQA(ctx, text, opts)
		if err != nil {
			return err
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pairs)
	}
	for i, p := range pairs {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("Q: %s\nA: %s\n", p.Question, p.Answer)
	}
	return nil
}

func readPassage(cmd *cobra.Command, args []string) (string, error) {
	if text, _ := cmd.Flags().GetString("text"); text != "" {
		return text, nil
	}
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
