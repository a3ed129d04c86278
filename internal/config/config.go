package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Model backend
	ModelBackend string // "http" or "local"
	ModelURL     string
	ModelAPIKey  string
	ModelName    string

	// Tokenizer
	TokenizerPath string

	// Auth
	QuizgenAPIKey string

	// Sequence budgets
	MaxLength       int
	MaxLengthOutput int
	NumBeams        int

	// Feature encoding
	EncodeWorkers   int
	FeatureCacheDir string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Result cache
	ResultCacheSize int

	// Event history
	DBPath string

	// Job state
	JobTTL time.Duration

	// Loss
	SmoothEpsilon float64

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8080"),

		ModelBackend: envOr("MODEL_BACKEND", "http"),
		ModelURL:     envOr("MODEL_URL", "http://localhost:8001"),
		ModelAPIKey:  os.Getenv("MODEL_API_KEY"),
		ModelName:    envOr("MODEL_NAME", "t5-small-qg"),

		TokenizerPath: os.Getenv("TOKENIZER_PATH"),

		QuizgenAPIKey: os.Getenv("QUIZGEN_API_KEY"),

		MaxLength:       envInt("MAX_LENGTH", 512),
		MaxLengthOutput: envInt("MAX_LENGTH_OUTPUT", 32),
		NumBeams:        envInt("NUM_BEAMS", 4),

		EncodeWorkers:   envInt("ENCODE_WORKERS", 0),
		FeatureCacheDir: os.Getenv("FEATURE_CACHE_DIR"),

		WorkerCount:  envInt("WORKER_COUNT", 1),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 32),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 20971520), // 20MB

		ResultCacheSize: envInt("RESULT_CACHE_SIZE", 256),

		DBPath: os.Getenv("DB_PATH"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		SmoothEpsilon: envFloat("SMOOTH_EPSILON", 0.15),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	if cfg.MaxLengthOutput <= 0 {
		cfg.MaxLengthOutput = 32
	}
	if cfg.NumBeams <= 0 {
		cfg.NumBeams = 4
	}
	if cfg.EncodeWorkers < 0 {
		cfg.EncodeWorkers = 0
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 32
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20971520
	}
	if cfg.ResultCacheSize < 0 {
		cfg.ResultCacheSize = 0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.ModelBackend != "http" && c.ModelBackend != "local" {
		return fmt.Errorf("MODEL_BACKEND must be \"http\" or \"local\", got %q", c.ModelBackend)
	}
	if c.ModelBackend == "http" && c.ModelURL == "" {
		return fmt.Errorf("MODEL_URL is required")
	}
	if c.MaxLengthOutput > c.MaxLength {
		return fmt.Errorf("MAX_LENGTH_OUTPUT (%d) must not exceed MAX_LENGTH (%d)", c.MaxLengthOutput, c.MaxLength)
	}
	if c.SmoothEpsilon < 0 || c.SmoothEpsilon >= 1 {
		return fmt.Errorf("SMOOTH_EPSILON must be in [0, 1), got %g", c.SmoothEpsilon)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
