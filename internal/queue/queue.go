// Package queue wraps asynq with a closed set of task kinds, idempotent
// enqueue by task ID, and one server per queue so concurrency and rate
// limits apply per subsystem.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"firelater-orchestrator/shared/config"
)

var (
	// ErrDuplicateJob means a job with the same unique ID is already
	// queued or running. Callers treat this as success.
	ErrDuplicateJob = errors.New("duplicate job")
	ErrUnknownKind  = errors.New("unknown task kind")
)

// Options control a single enqueue. The zero value uses the configured
// defaults for retry and retention.
type Options struct {
	// UniqueID dedupes the job across schedulers. Empty means no dedupe.
	UniqueID  string
	Delay     time.Duration
	MaxRetry  int
	Retention time.Duration
}

type Client struct {
	inner            *asynq.Client
	defaultMaxRetry  int
	defaultRetention time.Duration
}

func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		inner:            asynq.NewClient(RedisOpt(cfg)),
		defaultMaxRetry:  cfg.JobMaxRetry,
		defaultRetention: time.Duration(cfg.DoneRetentionSec) * time.Second,
	}
}

// Enqueue marshals payload and places a task of the given kind on its
// queue. Returns ErrDuplicateJob when opts.UniqueID collides with a job
// that has not completed and passed retention yet.
func (c *Client) Enqueue(ctx context.Context, kind string, payload any, opts Options) (string, error) {
	queueName, ok := QueueFor(kind)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	maxRetry := opts.MaxRetry
	if maxRetry <= 0 {
		maxRetry = c.defaultMaxRetry
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = c.defaultRetention
	}
	taskOpts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(retention),
	}
	if opts.UniqueID != "" {
		taskOpts = append(taskOpts, asynq.TaskID(opts.UniqueID))
	}
	if opts.Delay > 0 {
		taskOpts = append(taskOpts, asynq.ProcessIn(opts.Delay))
	}

	info, err := c.inner.EnqueueContext(ctx, asynq.NewTask(kind, body), taskOpts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", ErrDuplicateJob
		}
		return "", err
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// RetryDelay doubles the base delay per prior attempt, capped at cap.
func RetryDelay(base time.Duration, attempt int, cap time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
