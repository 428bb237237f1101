package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/metrics"
	"go-approvals/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const popBackoff = time.Second

type Worker struct {
	workerID   string
	queue      ports.NotificationQueue
	registry   Registry
	maxRetries int
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewWorker(q ports.NotificationQueue, reg Registry, maxRetries int, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	workerID := uuid.New().String()
	return &Worker{
		workerID:   workerID,
		queue:      q,
		registry:   reg,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     logger.With(zap.String("worker_id", workerID)),
	}
}

// ProcessNextJob handles exactly ONE notification job lifecycle. It returns
// only the queue error; delivery problems are logged.
func (w *Worker) ProcessNextJob(ctx context.Context) error {
	// 1. POP: Wait until a job is available
	payload, err := w.queue.Pop(ctx)
	if err != nil {
		return err
	}

	// 2. DECODE
	job, err := notify.DecodeJob(payload)
	if err != nil {
		w.logger.Error("dropping undecodable notification job", zap.Error(err))
		return nil
	}
	kind := string(job.Event.Kind)

	// 3. EXECUTE: Find the right handler and run it
	handler, exists := w.registry[job.Event.Kind]
	if !exists {
		w.logger.Error("no handler for notification kind", zap.String("kind", kind))
		w.metrics.RecordNotification(kind, "dropped")
		return nil
	}

	if err := handler(ctx, job.Event); err != nil {
		if job.Attempt < w.maxRetries {
			job.Attempt++
			w.logger.Warn("notification delivery failed, retrying",
				zap.String("kind", kind),
				zap.Stringer("instance_id", job.Event.InstanceID),
				zap.Int("attempt", job.Attempt),
				zap.Int("max_retries", w.maxRetries),
				zap.Error(err))

			// Push back to queue for retry
			retry, encErr := notify.EncodeJob(job)
			if encErr == nil {
				encErr = w.queue.Push(ctx, retry)
			}
			if encErr != nil {
				w.logger.Error("failed to requeue notification", zap.String("kind", kind), zap.Error(encErr))
			}
			w.metrics.RecordNotification(kind, "retry")
			return nil
		}

		// Retries exhausted
		w.logger.Error("notification delivery failed permanently",
			zap.String("kind", kind),
			zap.Stringer("instance_id", job.Event.InstanceID),
			zap.Error(err))
		w.metrics.RecordNotification(kind, "dropped")
		return nil
	}

	w.metrics.RecordNotification(kind, "delivered")
	return nil
}

// Run launches concurrency worker loops and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context, concurrency int) {
	w.logger.Info("starting notification worker pool", zap.Int("concurrency", concurrency))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(threadID int) {
			defer wg.Done()
			for {
				err := w.ProcessNextJob(ctx)
				if ctx.Err() != nil {
					w.logger.Info("worker thread shutting down", zap.Int("thread", threadID))
					return
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Warn("worker error popping from queue", zap.Int("thread", threadID), zap.Error(err))
					select {
					case <-ctx.Done():
					case <-time.After(popBackoff):
					}
				}
			}
		}(i)
	}
	wg.Wait()
}
