package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type JobType string

const JobTypeSubmitPayment JobType = "submit_payment"

const MaxRetries = 5

var ErrJobNotFound = errors.New("job not found in failed queue")

type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	RetryCount  int             `json:"retry_count"`
	LastError   string          `json:"last_error,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`

	// raw is the exact list entry the job was popped from, needed for LREM.
	raw string
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of job %s: %w", j.ID, err)
	}
	return nil
}

// IsLastAttempt reports whether a failure of this run exhausts the retries.
func (j *Job) IsLastAttempt() bool {
	return j.RetryCount >= MaxRetries
}

type Queue struct {
	client     *redis.Client
	logger     *zap.Logger
	queueName  string
	processing string
	delayed    string
	failed     string
	now        func() time.Time
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewQueue(client *redis.Client, queueName string, logger *zap.Logger) *Queue {
	return &Queue{
		client:     client,
		logger:     logger,
		queueName:  queueName,
		processing: queueName + ":processing",
		delayed:    queueName + ":delayed",
		failed:     queueName + ":failed",
		now:        time.Now,
	}
}

func newJob(jobType JobType, payload interface{}) (*Job, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return job, jobJSON, nil
}

func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload interface{}) (*Job, error) {
	job, jobJSON, err := newJob(jobType, payload)
	if err != nil {
		return nil, err
	}

	if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
		return nil, fmt.Errorf("failed to push job to queue: %w", err)
	}

	q.logger.Info("Enqueued job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return job, nil
}

// Dequeue blocks up to timeout. A nil job with a nil error means the queue was empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP result format")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.raw = result[1]

	if err := q.client.RPush(ctx, q.processing, result[1]).Err(); err != nil {
		q.logger.Warn("Failed to move job to processing queue", zap.String("job_id", job.ID), zap.Error(err))
	}

	return &job, nil
}

func (q *Queue) CompleteJob(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("failed to remove job from processing queue: %w", err)
	}

	q.logger.Info("Completed job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return nil
}

// retryDelay doubles from 15s: 15s, 30s, 60s, 120s, 240s.
func retryDelay(retryCount int) time.Duration {
	return time.Duration(15*(1<<(retryCount-1))) * time.Second
}

// FailJob schedules a retry with exponential backoff, or parks the job in the
// failed list once MaxRetries is reached.
func (q *Queue) FailJob(ctx context.Context, job *Job, jobErr error) error {
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		q.logger.Warn("Failed to remove job from processing queue", zap.String("job_id", job.ID), zap.Error(err))
	}

	job.RetryCount++
	job.LastError = jobErr.Error()

	if job.RetryCount <= MaxRetries {
		delay := retryDelay(job.RetryCount)
		retryAt := q.now().Add(delay)
		job.NextRetryAt = &retryAt

		jobJSON, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := q.client.ZAdd(ctx, q.delayed, &redis.Z{
			Score:  float64(retryAt.Unix()),
			Member: jobJSON,
		}).Err(); err != nil {
			q.logger.Warn("Failed to schedule retry, moving job to failed queue", zap.String("job_id", job.ID), zap.Error(err))
			if err := q.client.RPush(ctx, q.failed, jobJSON).Err(); err != nil {
				return fmt.Errorf("failed to push job to failed queue: %w", err)
			}
			return nil
		}

		q.logger.Info("Job scheduled for retry",
			zap.String("job_id", job.ID),
			zap.Int("retry", job.RetryCount),
			zap.Int("max_retries", MaxRetries),
			zap.Duration("delay", delay),
		)
		return nil
	}

	job.NextRetryAt = nil
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.failed, jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to push job to failed queue: %w", err)
	}

	q.logger.Warn("Job moved to failed queue, retries exhausted",
		zap.String("job_id", job.ID),
		zap.Int("retries", job.RetryCount),
		zap.String("last_error", job.LastError),
	)
	return nil
}

// ProcessDelayedJobs moves every due retry back onto the main queue.
func (q *Queue) ProcessDelayedJobs(ctx context.Context) error {
	jobs, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", q.now().Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed jobs: %w", err)
	}

	for _, jobJSON := range jobs {
		removed, err := q.client.ZRem(ctx, q.delayed, jobJSON).Result()
		if err != nil {
			q.logger.Warn("Failed to remove job from delayed queue", zap.Error(err))
			continue
		}
		// another relay took it
		if removed == 0 {
			continue
		}

		if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
			q.logger.Warn("Failed to move delayed job to main queue", zap.Error(err))
			continue
		}
	}

	return nil
}

// RetryJob requeues a parked job by id with its retry count reset.
func (q *Queue) RetryJob(ctx context.Context, jobID string) error {
	jobs, err := q.client.LRange(ctx, q.failed, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list failed jobs: %w", err)
	}

	for _, jobJSON := range jobs {
		var job Job
		if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
			q.logger.Warn("Failed to unmarshal failed job", zap.Error(err))
			continue
		}
		if job.ID != jobID {
			continue
		}

		if err := q.client.LRem(ctx, q.failed, 1, jobJSON).Err(); err != nil {
			return fmt.Errorf("failed to remove job from failed queue: %w", err)
		}

		job.RetryCount = 0
		job.LastError = ""
		job.NextRetryAt = nil
		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := q.client.RPush(ctx, q.queueName, updated).Err(); err != nil {
			return fmt.Errorf("failed to push job to main queue: %w", err)
		}

		q.logger.Info("Manually requeued job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		return nil
	}

	return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}
