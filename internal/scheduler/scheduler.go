// Package scheduler fans periodic sweeps out to per-tenant jobs. Each
// sweep lists the active tenants and enqueues one job per tenant with a
// tick-scoped unique ID, so overlapping schedulers cannot double-queue
// the same tenant for the same tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/shared/lockx"
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (string, error)
}

type TenantLister interface {
	ListActive(ctx context.Context) ([]models.Tenant, error)
}

// Sweep describes one periodic fan-out.
type Sweep struct {
	Kind     string
	Interval time.Duration
}

type Scheduler struct {
	tenants TenantLister
	enq     Enqueuer
	redis   *redis.Client
	lockTTL time.Duration
	logger  logx.Logger
}

// New builds a scheduler. redisClient may be nil; the tick lock is then
// skipped and every instance enqueues, relying on unique IDs to dedupe.
func New(tenants TenantLister, enq Enqueuer, redisClient *redis.Client, lockTTL time.Duration, logger logx.Logger) *Scheduler {
	return &Scheduler{
		tenants: tenants,
		enq:     enq,
		redis:   redisClient,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// Run starts one ticker per sweep and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, sweeps []Sweep) {
	done := make(chan struct{})
	for _, sw := range sweeps {
		sw := sw
		go func() {
			defer func() { done <- struct{}{} }()
			ticker := time.NewTicker(sw.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case tick := <-ticker.C:
					s.tick(ctx, sw, tick)
				}
			}
		}()
	}
	for range sweeps {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context, sw Sweep, tick time.Time) {
	queueName, _ := queue.QueueFor(sw.Kind)
	if s.redis != nil {
		// The lock is held until its TTL expires. Releasing it after the
		// fan-out would let a peer's later tick re-sweep the same window.
		acquired, err := lockx.AcquireTick(ctx, s.redis, sw.Kind, s.lockTTL)
		if err != nil {
			s.logger.Warn(ctx, "tick_lock_error", "tick lock failed, proceeding unlocked",
				slog.String("kind", sw.Kind),
				slog.String("error", err.Error()),
			)
		} else if !acquired {
			return
		}
	}

	queued, err := s.SweepOnce(ctx, sw.Kind, tick, sw.Interval)
	if err != nil {
		s.logger.Error(ctx, "sweep_failed", "sweep could not list tenants",
			slog.String("kind", sw.Kind),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info(ctx, "sweep_queued", "sweep fan-out complete",
		slog.String("kind", sw.Kind),
		slog.String("queue", queueName),
		slog.Int("queued", queued),
	)
}

// SweepOnce enqueues one job per active tenant and returns how many were
// queued. A failure for one tenant never blocks the rest; duplicates
// from a prior tick count as already queued and are skipped silently.
// The unique ID buckets the tick down to the interval, so instances
// whose tickers fire at different moments inside one window collide on
// the same task ID and the broker drops the duplicate.
func (s *Scheduler) SweepOnce(ctx context.Context, kind string, tick time.Time, interval time.Duration) (int, error) {
	queueName, ok := queue.QueueFor(kind)
	if !ok {
		return 0, fmt.Errorf("no queue for kind %s", kind)
	}
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	bucket := tick
	if interval > 0 {
		bucket = tick.Truncate(interval)
	}
	queued := 0
	for _, tenant := range tenants {
		payload := queue.SweepPayload{TenantID: tenant.TenantID, TenantSlug: tenant.Slug}
		uniqueID := fmt.Sprintf("sweep:%s:%s:%d", queueName, tenant.Slug, bucket.Unix())
		_, err := s.enq.Enqueue(ctx, kind, payload, queue.Options{UniqueID: uniqueID})
		switch {
		case err == nil:
			queued++
			metricsx.IncSweepQueued(queueName)
		case errors.Is(err, queue.ErrDuplicateJob):
			// Another instance won the race for this tick.
		default:
			metricsx.IncSweepEnqueueFailure(queueName)
			s.logger.Error(ctx, "sweep_enqueue_failed", "failed to enqueue tenant sweep",
				slog.String("kind", kind),
				slog.String("tenant", tenant.Slug),
				slog.String("error", err.Error()),
			)
		}
	}
	return queued, nil
}
