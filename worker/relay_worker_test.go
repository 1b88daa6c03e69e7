package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-payment/models"
	"storefront-payment/queue"
	"storefront-payment/services/checkout"
)

type fakeSource struct {
	mu        sync.Mutex
	jobs      []*queue.Job
	completed []string
	failed    map[string]error
}

func newFakeSource(jobs ...*queue.Job) *fakeSource {
	return &fakeSource{jobs: jobs, failed: make(map[string]error)}
}

func (f *fakeSource) Dequeue(ctx context.Context, _ time.Duration) (*queue.Job, error) {
	f.mu.Lock()
	if len(f.jobs) > 0 {
		job := f.jobs[0]
		f.jobs = f.jobs[1:]
		f.mu.Unlock()
		return job, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeSource) CompleteJob(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, job.ID)
	return nil
}

func (f *fakeSource) FailJob(_ context.Context, job *queue.Job, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[job.ID] = err
	return nil
}

func (f *fakeSource) ProcessDelayedJobs(context.Context) error { return nil }

func (f *fakeSource) done() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed) + len(f.failed)
}

func submitJob(t *testing.T, id, reference string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(models.PaymentSubmission{Reference: reference})
	require.NoError(t, err)
	return &queue.Job{ID: id, Type: queue.JobTypeSubmitPayment, Payload: payload}
}

func TestHandleForwardsSubmission(t *testing.T) {
	var forwarded []string
	fwd := checkout.ForwarderFunc(func(_ context.Context, s models.PaymentSubmission) error {
		forwarded = append(forwarded, s.Reference)
		return nil
	})
	src := newFakeSource()

	NewWorker(src, fwd, zap.NewNop()).handle(context.Background(), submitJob(t, "1", "ref-1"))

	assert.Equal(t, []string{"ref-1"}, forwarded)
	assert.Equal(t, []string{"1"}, src.completed)
	assert.Empty(t, src.failed)
}

func TestHandleFailsJob(t *testing.T) {
	boom := errors.New("storefront down")
	fwd := checkout.ForwarderFunc(func(context.Context, models.PaymentSubmission) error { return boom })
	src := newFakeSource()
	w := NewWorker(src, fwd, zap.NewNop())

	w.handle(context.Background(), submitJob(t, "1", "ref-1"))
	w.handle(context.Background(), &queue.Job{ID: "2", Type: "void_transaction"})
	w.handle(context.Background(), &queue.Job{ID: "3", Type: queue.JobTypeSubmitPayment, Payload: json.RawMessage(`[]`)})

	assert.Empty(t, src.completed)
	assert.ErrorIs(t, src.failed["1"], boom)
	assert.ErrorContains(t, src.failed["2"], "unknown job type")
	assert.Error(t, src.failed["3"])
}

func TestStartStop(t *testing.T) {
	var mu sync.Mutex
	var forwarded []string
	fwd := checkout.ForwarderFunc(func(_ context.Context, s models.PaymentSubmission) error {
		mu.Lock()
		defer mu.Unlock()
		forwarded = append(forwarded, s.Reference)
		return nil
	})
	src := newFakeSource(submitJob(t, "1", "a"), submitJob(t, "2", "b"), submitJob(t, "3", "c"))
	w := NewWorker(src, fwd, zap.NewNop())

	w.Start(context.Background(), 2)
	w.Start(context.Background(), 2)

	require.Eventually(t, func() bool { return src.done() == 3 }, time.Second, 10*time.Millisecond)
	w.Stop()
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, forwarded)
}
