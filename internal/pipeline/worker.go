package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Enqueue when the pipeline cannot accept more
// work. Callers should surface this as a retryable condition.
var ErrQueueFull = errors.New("pipeline queue is full")

// Pool fans recording IDs out to a fixed set of workers. Enqueue never
// blocks; a full queue is reported to the caller instead of stalling the
// upload path.
type Pool struct {
	processor *Processor
	queue     chan uuid.UUID
	workers   int
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewPool(processor *Processor, workers, queueSize int, logger *slog.Logger) *Pool {
	return &Pool{
		processor: processor,
		queue:     make(chan uuid.UUID, queueSize),
		workers:   workers,
		logger:    logger,
	}
}

// Start launches the workers. They drain the queue until ctx is cancelled,
// then finish the recording in hand and exit.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("pipeline workers started", slog.Int("workers", p.workers), slog.Int("queue_size", cap(p.queue)))
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Enqueue hands a recording to the pool without blocking.
func (p *Pool) Enqueue(recordingID uuid.UUID) error {
	select {
	case p.queue <- recordingID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(slog.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case recordingID := <-p.queue:
			// The run in hand is detached from the shutdown signal so it
			// lands at a real terminal status instead of a spurious failed
			// from context cancellation. Wait blocks until it finishes.
			if err := p.processor.Process(context.WithoutCancel(ctx), recordingID); err != nil {
				log.Error("pipeline run failed",
					slog.String("recording_id", recordingID.String()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// SweepStuck requeues recordings that were mid-pipeline when a previous
// process died. They are reset to uploaded so the full pipeline runs
// again from the stored audio. Called once at startup.
func (p *Pool) SweepStuck(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	stuck, err := p.processor.store.ListStuckRecordings(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, rec := range stuck {
		locked, err := p.processor.cache.IsProcessing(ctx, rec.ID)
		if err != nil {
			return err
		}
		if locked {
			continue
		}
		if err := p.processor.store.ResetRecording(ctx, rec.ID); err != nil {
			p.logger.Error("failed to reset stuck recording",
				slog.String("recording_id", rec.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if err := p.Enqueue(rec.ID); err != nil {
			p.logger.Warn("stuck recording reset but not requeued",
				slog.String("recording_id", rec.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	if len(stuck) > 0 {
		p.logger.Info("stuck recording sweep complete", slog.Int("found", len(stuck)))
	}
	return nil
}
