package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"firelater-orchestrator/internal/cloudsync"
	"firelater-orchestrator/internal/health"
	"firelater-orchestrator/internal/notify"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/internal/repos"
	"firelater-orchestrator/internal/scheduler"
	"firelater-orchestrator/internal/sla"
	"firelater-orchestrator/shared/cachex"
	"firelater-orchestrator/shared/config"
	"firelater-orchestrator/shared/cryptox"
	"firelater-orchestrator/shared/dbx"
	"firelater-orchestrator/shared/influxx"
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
	"firelater-orchestrator/shared/mqx"
	"firelater-orchestrator/shared/observability"
)

const queueDepthPollInterval = 10 * time.Second

func main() {
	cfg, problems := config.Load("orchestrator-worker", 8084)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(context.Background(), cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	tenantsRepo := repos.NewTenantsRepo(dbPool)
	usersRepo := repos.NewUsersRepo(dbPool)
	slaRepo := repos.NewSlaRepo(dbPool)
	healthRepo := repos.NewHealthRepo(dbPool)
	cloudRepo := repos.NewCloudRepo(dbPool)
	notificationsRepo := repos.NewNotificationsRepo(dbPool)

	var cache *cachex.Client
	var lockClient *redis.Client
	if cfg.RedisAddr != "" {
		cache, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "cache_init_failed", "continuing without redis cache",
				slog.String("error", err.Error()),
			)
		} else {
			defer cache.Close()
			lockClient = cache.Client()
		}
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "continuing without event publishing",
				slog.String("error", err.Error()),
			)
			producer = nil
		} else {
			defer producer.Close()
		}
	}

	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "continuing without time series",
				slog.String("error", err.Error()),
			)
			influx = nil
		} else {
			defer influx.Close()
		}
	}

	codec, err := cryptox.NewCodec(cfg.CredentialKey)
	if err != nil {
		logger.Error(context.Background(), "credential_key_invalid", "credential key rejected",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if codec.Insecure() {
		logger.Warn(context.Background(), "credential_encryption_disabled",
			"CREDENTIAL_ENCRYPTION_KEY is not set, cloud credentials are stored as plaintext")
	}

	client := queue.NewClient(cfg)
	defer client.Close()
	registry := queue.NewRegistry(cfg, logger)

	detector := sla.New(slaRepo, usersRepo, client, cache, producer, logger.WithQueue(queue.QueueSla))
	healthEngine := health.New(healthRepo, usersRepo, client, cache, influx, producer, logger.WithQueue(queue.QueueHealth))

	var relay *notify.Relay
	if cfg.EmailRelayURL != "" {
		relay, err = notify.NewRelay(cfg)
		if err != nil {
			logger.Warn(context.Background(), "email_relay_init_failed", "continuing without email delivery",
				slog.String("error", err.Error()),
			)
			relay = nil
		}
	}
	var emailSender notify.EmailSender
	if relay != nil {
		emailSender = relay
	}
	slackClient := notify.NewSlackWebhook(time.Duration(cfg.SlackWebhookTimeoutMS) * time.Millisecond)
	dispatcher := notify.New(usersRepo, notificationsRepo, emailSender, slackClient, logger.WithQueue(queue.QueueNotify))

	cloudEngine := cloudsync.New(cloudRepo, codec, usersRepo, client, producer, cfg, nil, logger.WithQueue(queue.QueueCloudSync))

	registry.Handle(queue.KindSlaSweepTenant, detector.HandleSweep)
	registry.Handle(queue.KindHealthScoreTenant, healthEngine.HandleSweep)
	registry.Handle(queue.KindNotifyDispatch, dispatcher.HandleDispatch)
	registry.Handle(queue.KindCloudSyncTenant, cloudEngine.HandleSweepTenant)
	registry.Handle(queue.KindCloudSyncAccount, cloudEngine.HandleSyncAccount)

	metricsx.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsx.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db unreachable"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	opsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "ops_listener_failed", "ops listener failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
	}()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.Start()
	go registry.PollDepth(runCtx, queueDepthPollInterval)

	sched := scheduler.New(tenantsRepo, client, lockClient, time.Duration(cfg.TickLockTTLSec)*time.Second, logger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(runCtx, []scheduler.Sweep{
			{Kind: queue.KindSlaSweepTenant, Interval: time.Duration(cfg.SlaSweepSec) * time.Second},
			{Kind: queue.KindHealthScoreTenant, Interval: time.Duration(cfg.HealthSweepSec) * time.Second},
			{Kind: queue.KindCloudSyncTenant, Interval: time.Duration(cfg.CloudSyncSweepSec) * time.Second},
		})
	}()

	logger.Info(context.Background(), "worker_start", "orchestrator worker started",
		slog.Int("http_port", cfg.HTTPPort),
		slog.Int("sla_sweep_seconds", cfg.SlaSweepSec),
		slog.Int("health_sweep_seconds", cfg.HealthSweepSec),
		slog.Int("cloud_sync_sweep_seconds", cfg.CloudSyncSweepSec),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-registry.Errors():
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "queue server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
	}

	// Scheduler first so nothing new is enqueued into closing servers.
	cancel()
	<-schedDone
	registry.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = opsServer.Shutdown(shutdownCtx)

	logger.Info(context.Background(), "worker_stop", "orchestrator worker stopped")
}
