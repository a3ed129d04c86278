package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quizgen/internal/api"
	"quizgen/internal/cache"
	"quizgen/internal/config"
	"quizgen/internal/pipeline"
	"quizgen/internal/qg"
	"quizgen/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP generation service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tok, err := buildTokenizer(cfg)
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

	var events *store.Store
	if cfg.DBPath != "" {
		events, err = store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		log.Info("event store open", "path", cfg.DBPath)
	}

	results, err := cache.New(cfg.ResultCacheSize)
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(cfg, gen, events, log)
	orch.Start(ctx)

	srv := api.NewServer(gen, orch, results, events, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	log.Info("starting quizgen", "port", cfg.Port, "backend", cfg.ModelBackend, "workers", cfg.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigCh:
		log.Info("shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	// Let queued document jobs finish before the process exits.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := orch.Shutdown(drainCtx); err != nil {
		log.Warn("pipeline drain incomplete", "error", err)
	}

	if err := events.Close(); err != nil {
		log.Warn("close event store", "error", err)
	}
	log.Info("quizgen stopped")
	return nil
}
