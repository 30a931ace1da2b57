package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"firelater-orchestrator/shared/config"
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
	"firelater-orchestrator/shared/tenantx"
)

// Registry owns one asynq server per queue. Handlers register by task
// kind; the kind's queue decides which server runs them.
type Registry struct {
	redisOpt  asynq.RedisClientOpt
	servers   map[string]*asynq.Server
	muxes     map[string]*asynq.ServeMux
	inspector *asynq.Inspector
	logger    logx.Logger
	errCh     chan error
}

func NewRegistry(cfg config.Config, logger logx.Logger) *Registry {
	redisOpt := RedisOpt(cfg)
	retryBase := cfg.JobRetryBase()
	delayFn := func(n int, _ error, _ *asynq.Task) time.Duration {
		return RetryDelay(retryBase, n, 5*time.Minute)
	}

	concurrency := map[string]int{
		QueueSla:       cfg.SlaConcurrency,
		QueueHealth:    cfg.HealthConcurrency,
		QueueNotify:    cfg.NotifyConcurrency,
		QueueCloudSync: cfg.CloudSyncConcurrency,
	}
	ratePerMin := map[string]int{
		QueueSla:       cfg.SlaRatePerMin,
		QueueHealth:    cfg.HealthRatePerMin,
		QueueNotify:    cfg.NotifyRatePerMin,
		QueueCloudSync: cfg.CloudSyncRatePerMin,
	}

	r := &Registry{
		redisOpt:  redisOpt,
		servers:   make(map[string]*asynq.Server, len(concurrency)),
		muxes:     make(map[string]*asynq.ServeMux, len(concurrency)),
		inspector: asynq.NewInspector(redisOpt),
		logger:    logger,
		errCh:     make(chan error, len(concurrency)),
	}
	for _, queueName := range Queues() {
		server := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency:    concurrency[queueName],
			Queues:         map[string]int{queueName: 1},
			RetryDelayFunc: delayFn,
		})
		limiter := rate.NewLimiter(rate.Limit(float64(ratePerMin[queueName])/60.0), concurrency[queueName])
		mux := asynq.NewServeMux()
		mux.Use(r.observe(queueName, limiter))
		r.servers[queueName] = server
		r.muxes[queueName] = mux
	}
	return r
}

// Handle registers a handler for a task kind on the kind's queue mux.
// Must be called before Start.
func (r *Registry) Handle(kind string, h asynq.HandlerFunc) {
	queueName, ok := QueueFor(kind)
	if !ok {
		panic("queue: handler registered for unknown kind " + kind)
	}
	r.muxes[queueName].HandleFunc(kind, h)
}

func (r *Registry) observe(queueName string, limiter *rate.Limiter) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			ctx, span := otel.Tracer("asynq").Start(ctx, t.Type())
			span.SetAttributes(attribute.String("queue", queueName))
			defer span.End()

			start := time.Now()
			err := next.ProcessTask(ctx, t)
			status := "ok"
			if err != nil {
				status = "error"
				r.logger.Error(ctx, "job_failed", "job handler returned error",
					slog.String("queue", queueName),
					slog.String("type", t.Type()),
					slog.String("tenant", tenantx.SlugFromContext(ctx)),
					slog.String("error", err.Error()),
				)
			}
			metricsx.ObserveJobDuration(queueName, t.Type(), status, time.Since(start))
			return err
		})
	}
}

// Start runs every server. Server failures land on Errors.
func (r *Registry) Start() {
	for queueName, server := range r.servers {
		queueName, server := queueName, server
		go func() {
			if err := server.Run(r.muxes[queueName]); err != nil {
				r.errCh <- err
			}
		}()
	}
}

func (r *Registry) Errors() <-chan error {
	return r.errCh
}

// PollDepth reports queue sizes to metrics until ctx is done.
func (r *Registry) PollDepth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, queueName := range Queues() {
				info, err := r.inspector.GetQueueInfo(queueName)
				if err != nil {
					continue
				}
				metricsx.SetQueueDepth(queueName, info.Size)
			}
		}
	}
}

func (r *Registry) Shutdown() {
	for _, server := range r.servers {
		server.Shutdown()
	}
	_ = r.inspector.Close()
}
