package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"quizgen/internal/config"
	"quizgen/internal/model"
	"quizgen/internal/tokenizer"
)

// builtinVocab seeds the word-level tokenizer used when no TOKENIZER_PATH is
// configured. It covers common English function words plus the task prefix
// vocabulary, enough for offline smoke runs against the local backend. Real
// deployments point TOKENIZER_PATH at a trained tokenizer file.
var builtinVocab = []string{
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"of", "in", "on", "at", "to", "from", "by", "with", "for", "and",
	"or", "not", "no", "it", "its", "this", "that", "these", "those",
	"he", "she", "they", "we", "you", "i", "his", "her", "their", "our",
	"has", "have", "had", "do", "does", "did", "can", "could", "will",
	"would", "may", "might", "must", "shall", "should",
	"what", "What", "which", "Which", "who", "Who", "when", "When",
	"where", "Where", "why", "Why", "how", "How",
	"extract", "answers:", "generate", "question:", "questions:",
	"answer", "question",
}

// buildTokenizer loads the configured tokenizer, falling back to the
// built-in word-level vocabulary. extra words, when given, are folded into
// the word-level vocabulary so one-shot runs can cover their own input.
func buildTokenizer(cfg config.Config, extra ...string) (tokenizer.Tokenizer, error) {
	if cfg.TokenizerPath != "" {
		tok, err := tokenizer.LoadBPE(cfg.TokenizerPath)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		return tok, nil
	}
	words := builtinVocab
	if len(extra) > 0 {
		words = append(append([]string{}, builtinVocab...), extra...)
	}
	return tokenizer.NewWordLevel(words), nil
}

// buildModel connects the configured seq2seq backend.
func buildModel(ctx context.Context, cfg config.Config, tok tokenizer.Tokenizer, log *slog.Logger) (model.Seq2Seq, error) {
	switch cfg.ModelBackend {
	case "local":
		log.Info("using local bigram backend", "model_type", model.T5)
		return model.NewLocal(tok, model.T5), nil
	default:
		log.Info("connecting to model server", "url", cfg.ModelURL, "name", cfg.ModelName)
		m, err := model.Connect(ctx, model.ClientConfig{
			BaseURL: cfg.ModelURL,
			APIKey:  cfg.ModelAPIKey,
			Name:    cfg.ModelName,
		})
		if err != nil {
			return nil, fmt.Errorf("connect model server: %w", err)
		}
		log.Info("model server ready", "model", m.Name(), "model_type", m.Type())
		return m, nil
	}
}

// inputWords splits free text into whitespace words for vocabulary seeding.
func inputWords(text string) []string {
	return strings.Fields(text)
}
