package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quizgen/internal/config"
	"quizgen/internal/qg"
	"quizgen/internal/store"
	"quizgen/internal/textseg"
)

// Orchestrator manages the async document-to-quiz pipeline.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	gen    *qg.Pipeline
	events *store.Store
	log    *slog.Logger
	cfg    config.Config

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc

	workerWg    sync.WaitGroup
	housekeepWg sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, gen *qg.Pipeline, events *store.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		gen:    gen,
		events: events,
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines and the job store cleanup loop.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	genOpts := qg.Options{
		NumBeams:      o.cfg.NumBeams,
		EncodeWorkers: o.cfg.EncodeWorkers,
	}
	passageCfg := textseg.DefaultPassageConfig()
	if o.cfg.MaxLength > 0 {
		// Leave headroom for the task prefix and highlight markers.
		passageCfg.MaxTokens = o.cfg.MaxLength * 3 / 4
	}

	for range o.cfg.WorkerCount {
		o.workerWg.Add(1)
		go func() {
			defer o.workerWg.Done()
			w := NewWorker(o.gen, o.events, o.log, passageCfg, genOpts, o.cfg.PDFFallbackPdftotext)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Job store cleanup.
	o.housekeepWg.Add(1)
	go func() {
		defer o.housekeepWg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Shutdown stops accepting jobs and waits for queued work to drain, or
// until ctx expires. On expiry, in-flight generation is canceled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		o.workerWg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if o.cancel != nil {
		o.cancel()
	}
	o.housekeepWg.Wait()
	return err
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		job.SetStatus(StatusFailed, "shutdown")
		return errors.New("pipeline is shut down")
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
