package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/internal/repos"
	"firelater-orchestrator/shared/cachex"
	"firelater-orchestrator/shared/events"
	"firelater-orchestrator/shared/influxx"
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
	"firelater-orchestrator/shared/mqx"
	"firelater-orchestrator/shared/tenantx"
)

// scoreWindow is the rolling window every component aggregates over.
const scoreWindow = 30 * 24 * time.Hour

// criticalScore is the overall score below which admins are alerted
// even when the trend is still inside the stable band.
const criticalScore = 50.0

const configCacheTTL = 5 * time.Minute

type Store interface {
	ListActiveApplications(ctx context.Context, tenantID uuid.UUID) ([]models.Application, error)
	Config(ctx context.Context, tenantID uuid.UUID) (models.HealthScoreConfig, bool, error)
	IssueWindow(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID, since time.Time) (repos.IssueWindow, error)
	ChangeWindow(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID, since time.Time) (repos.ChangeWindow, error)
	LatestScore(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID) (models.HealthScore, bool, error)
	InsertScore(ctx context.Context, tenantID uuid.UUID, score models.HealthScore) (models.HealthScore, error)
}

type AdminDirectory interface {
	Admins(ctx context.Context, tenantID uuid.UUID) ([]models.User, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (string, error)
}

type Engine struct {
	store    Store
	admins   AdminDirectory
	enq      Enqueuer
	cache    *cachex.Client
	influx   *influxx.Client
	producer *mqx.Producer
	logger   logx.Logger
}

// New builds an engine. admins/enq gate the critical-score alerts;
// cache, influx and producer are optional collaborators. Any of them
// may be nil and that concern is skipped.
func New(store Store, admins AdminDirectory, enq Enqueuer, cache *cachex.Client, influx *influxx.Client, producer *mqx.Producer, logger logx.Logger) *Engine {
	return &Engine{
		store:    store,
		admins:   admins,
		enq:      enq,
		cache:    cache,
		influx:   influx,
		producer: producer,
		logger:   logger,
	}
}

type Result struct {
	Applications int
	Computed     int
	Failed       int
}

func (e *Engine) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var p queue.SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode sweep payload: %w", err)
	}
	ctx = tenantx.WithTenant(ctx, tenantx.Tenant{ID: p.TenantID.String(), Slug: p.TenantSlug})
	res, err := e.Sweep(ctx, p.TenantID, p.TenantSlug)
	if err != nil {
		return err
	}
	e.logger.Info(ctx, "health_sweep_done", "health sweep complete",
		slog.String("tenant", p.TenantSlug),
		slog.Int("applications", res.Applications),
		slog.Int("computed", res.Computed),
		slog.Int("failed", res.Failed),
	)
	return nil
}

// Sweep scores every active application for one tenant. A failure on
// one application is logged and the sweep moves on; partial success is
// the expected outcome, not an error.
func (e *Engine) Sweep(ctx context.Context, tenantID uuid.UUID, slug string) (Result, error) {
	var res Result

	cfg, err := e.config(ctx, tenantID, slug)
	if err != nil {
		return res, fmt.Errorf("load health config: %w", err)
	}
	apps, err := e.store.ListActiveApplications(ctx, tenantID)
	if err != nil {
		return res, fmt.Errorf("list applications: %w", err)
	}
	res.Applications = len(apps)

	for _, app := range apps {
		score, err := e.scoreApplication(ctx, tenantID, app.ApplicationID, cfg)
		if err != nil {
			res.Failed++
			e.logger.Error(ctx, "health_score_failed", "scoring failed for application",
				slog.String("tenant", slug),
				slog.String("application_id", app.ApplicationID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Computed++
		metricsx.IncHealthScoreComputed()
		e.record(ctx, slug, app, score)
		e.alertIfCritical(ctx, tenantID, slug, app, score)
	}
	return res, nil
}

// alertIfCritical enqueues a declining-health notification to tenant
// admins. The alert is asynchronous message passing into the notify
// queue, never a direct call, and an enqueue failure never fails the
// sweep.
func (e *Engine) alertIfCritical(ctx context.Context, tenantID uuid.UUID, slug string, app models.Application, score models.HealthScore) {
	if e.enq == nil || e.admins == nil {
		return
	}
	if score.Trend != models.TrendDeclining && score.OverallScore >= criticalScore {
		return
	}
	admins, err := e.admins.Admins(ctx, tenantID)
	if err != nil || len(admins) == 0 {
		if err != nil {
			e.logger.Warn(ctx, "health_alert_admins_failed", "could not resolve admins",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	adminIDs := make([]uuid.UUID, 0, len(admins))
	for _, a := range admins {
		adminIDs = append(adminIDs, a.UserID)
	}
	payload := queue.NotifyPayload{
		TenantID:    tenantID,
		TenantSlug:  slug,
		TemplateKey: "health_declining",
		Channel:     models.ChannelAll,
		UserIDs:     adminIDs,
		Data: map[string]any{
			"application_name": app.Name,
			"overall":          fmt.Sprintf("%.1f", score.OverallScore),
			"trend":            score.Trend,
		},
	}
	// One alert per application per day, no matter how many sweeps run.
	uniqueID := fmt.Sprintf("health-alert:%s:%s", app.ApplicationID, score.ComputedAt.Format("2006-01-02"))
	_, err = e.enq.Enqueue(ctx, queue.KindNotifyDispatch, payload, queue.Options{
		UniqueID:  uniqueID,
		Retention: 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
		e.logger.Error(ctx, "health_alert_enqueue_failed", "failed to enqueue health alert",
			slog.String("tenant", slug),
			slog.String("application_id", app.ApplicationID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) config(ctx context.Context, tenantID uuid.UUID, slug string) (models.HealthScoreConfig, error) {
	cacheKey := cachex.Key("health", "config", slug)
	if e.cache != nil {
		var cached models.HealthScoreConfig
		if ok, err := e.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}
	cfg, _, err := e.store.Config(ctx, tenantID)
	if err != nil {
		return models.HealthScoreConfig{}, err
	}
	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, cacheKey, cfg, configCacheTTL); err != nil {
			e.logger.Warn(ctx, "health_config_cache_write_failed", "could not cache health config",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		}
	}
	return cfg, nil
}

func (e *Engine) scoreApplication(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID, cfg models.HealthScoreConfig) (models.HealthScore, error) {
	since := time.Now().UTC().Add(-scoreWindow)

	issues, err := e.store.IssueWindow(ctx, tenantID, appID, since)
	if err != nil {
		return models.HealthScore{}, err
	}
	changes, err := e.store.ChangeWindow(ctx, tenantID, appID, since)
	if err != nil {
		return models.HealthScore{}, err
	}

	components := Components{
		Issue:  IssueScore(issues, cfg),
		Change: ChangeScore(changes, cfg),
		Sla:    SlaScore(issues, cfg),
		Uptime: UptimeScore(issues),
	}
	overall := Overall(components, cfg)

	previous, hasPrevious, err := e.store.LatestScore(ctx, tenantID, appID)
	if err != nil {
		return models.HealthScore{}, err
	}

	return e.store.InsertScore(ctx, tenantID, models.HealthScore{
		ApplicationID: appID,
		IssueScore:    components.Issue,
		ChangeScore:   components.Change,
		SlaScore:      components.Sla,
		UptimeScore:   components.Uptime,
		OverallScore:  overall,
		Trend:         Trend(overall, previous.OverallScore, hasPrevious),
		ComputedAt:    time.Now().UTC(),
	})
}

func (e *Engine) record(ctx context.Context, slug string, app models.Application, score models.HealthScore) {
	if e.influx != nil {
		err := e.influx.WritePoint(ctx, "health_score",
			map[string]string{
				"tenant":      slug,
				"application": app.ApplicationID.String(),
			},
			map[string]any{
				"issue":   score.IssueScore,
				"change":  score.ChangeScore,
				"sla":     score.SlaScore,
				"uptime":  score.UptimeScore,
				"overall": score.OverallScore,
			},
			score.ComputedAt,
		)
		if err != nil {
			e.logger.Warn(ctx, "health_influx_write_failed", "influx write failed",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.producer != nil {
		env, err := events.NewEnvelope(slug, events.EventHealthScoreComputed, map[string]any{
			"application_id": app.ApplicationID.String(),
			"overall":        score.OverallScore,
			"trend":          score.Trend,
		})
		if err != nil {
			return
		}
		body, err := json.Marshal(env)
		if err != nil {
			return
		}
		if err := e.producer.Publish(ctx, events.TopicHealthScores, []byte(slug), body, nil); err != nil {
			e.logger.Warn(ctx, "health_event_publish_failed", "kafka publish failed",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		}
	}
}
