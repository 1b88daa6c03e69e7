// Package worker relays queued payment submissions to the storefront.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront-payment/models"
	"storefront-payment/queue"
	"storefront-payment/services/checkout"
)

const (
	dequeueTimeout = 5 * time.Second
	delayedPoll    = 5 * time.Second
	jobTimeout     = 30 * time.Second
)

// JobSource is the part of queue.Queue the relay needs.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	CompleteJob(ctx context.Context, job *queue.Job) error
	FailJob(ctx context.Context, job *queue.Job, jobErr error) error
	ProcessDelayedJobs(ctx context.Context) error
}

// Worker pops submit_payment jobs and forwards them; failures go back to the
// queue for retry with backoff.
type Worker struct {
	source    JobSource
	forwarder checkout.Forwarder
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(source JobSource, forwarder checkout.Forwarder, logger *zap.Logger) *Worker {
	return &Worker{
		source:    source,
		forwarder: forwarder,
		logger:    logger,
	}
}

// Start launches concurrency relay goroutines plus one that promotes due retries.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i)
	}

	w.wg.Add(1)
	go w.promoteDelayed(ctx)

	w.logger.Info("Started relay worker", zap.Int("goroutines", concurrency))
}

// Stop cancels the relay and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	w.logger.Info("Stopping relay worker")
	cancel()
	w.wg.Wait()
}

func (w *Worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	logger := w.logger.With(zap.Int("worker", workerID))

	for {
		if ctx.Err() != nil {
			logger.Debug("Relay goroutine shutting down")
			return
		}

		job, err := w.source.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Error dequeuing job", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.handle(ctx, job)
	}
}

// handle runs one job and records its outcome on the queue.
func (w *Worker) handle(ctx context.Context, job *queue.Job) {
	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("type", string(job.Type)))

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	jobErr := w.processJob(jobCtx, job)
	cancel()

	// bookkeeping must survive shutdown
	bookCtx, bookCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer bookCancel()

	if jobErr != nil {
		logger.Warn("Error processing job", zap.Int("retry", job.RetryCount), zap.Bool("last_attempt", job.IsLastAttempt()), zap.Error(jobErr))
		if err := w.source.FailJob(bookCtx, job, jobErr); err != nil {
			logger.Error("Error marking job as failed", zap.Error(err))
		}
		return
	}

	if err := w.source.CompleteJob(bookCtx, job); err != nil {
		logger.Error("Error marking job as complete", zap.Error(err))
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeSubmitPayment:
		var submission models.PaymentSubmission
		if err := job.Decode(&submission); err != nil {
			return err
		}
		return w.forwarder.Forward(ctx, submission)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *Worker) promoteDelayed(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(delayedPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.source.ProcessDelayedJobs(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("Error promoting delayed jobs", zap.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
