// Package cloudsync pulls resource inventory and cost lines from each
// tenant's cloud accounts. Provider calls run behind per-provider
// circuit breakers; the resource and cost phases fail independently and
// the whole job only fails when neither phase updated anything.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/shared/breaker"
	"firelater-orchestrator/shared/config"
	"firelater-orchestrator/shared/cryptox"
	"firelater-orchestrator/shared/events"
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
	"firelater-orchestrator/shared/mqx"
	"firelater-orchestrator/shared/tenantx"
)

type Store interface {
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]models.CloudAccount, error)
	GetAccount(ctx context.Context, tenantID uuid.UUID, accountID uuid.UUID) (models.CloudAccount, error)
	UpsertResource(ctx context.Context, tenantID uuid.UUID, res models.CloudResource) error
	UpsertCost(ctx context.Context, tenantID uuid.UUID, rec models.CloudCostRecord) error
	RecordSyncResult(ctx context.Context, tenantID uuid.UUID, accountID uuid.UUID, status string, syncErr string) error
}

type AdminDirectory interface {
	Admins(ctx context.Context, tenantID uuid.UUID) ([]models.User, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (string, error)
}

type Engine struct {
	store    Store
	codec    *cryptox.Codec
	factory  CollectorFactory
	breakers map[models.CloudProvider]*breaker.Breaker
	admins   AdminDirectory
	enq      Enqueuer
	producer *mqx.Producer
	logger   logx.Logger
}

// New builds an engine with one breaker per provider so a flapping AWS
// account cannot trip detection for azure or gcp. factory defaults to
// NewCollector when nil; admins/enq gate the sync-failure alerts.
func New(store Store, codec *cryptox.Codec, admins AdminDirectory, enq Enqueuer, producer *mqx.Producer, cfg config.Config, factory CollectorFactory, logger logx.Logger) *Engine {
	if factory == nil {
		factory = NewCollector
	}
	breakers := make(map[models.CloudProvider]*breaker.Breaker, 3)
	for _, provider := range []models.CloudProvider{models.ProviderAWS, models.ProviderAzure, models.ProviderGCP} {
		breakers[provider] = breaker.New(
			"cloud:"+string(provider),
			cfg.BreakerFailureThreshold,
			cfg.BreakerCooldown(),
			cfg.BreakerCallTimeout(),
		)
	}
	return &Engine{
		store:    store,
		codec:    codec,
		factory:  factory,
		breakers: breakers,
		admins:   admins,
		enq:      enq,
		producer: producer,
		logger:   logger,
	}
}

// HandleSweepTenant fans a tenant sweep out to one job per account.
func (e *Engine) HandleSweepTenant(ctx context.Context, t *asynq.Task) error {
	var p queue.SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode sweep payload: %w", err)
	}
	ctx = tenantx.WithTenant(ctx, tenantx.Tenant{ID: p.TenantID.String(), Slug: p.TenantSlug})
	accounts, err := e.store.ListAccounts(ctx, p.TenantID)
	if err != nil {
		return fmt.Errorf("list cloud accounts: %w", err)
	}

	queued := 0
	hour := time.Now().UTC().Format("2006010215")
	for _, account := range accounts {
		payload := queue.CloudSyncPayload{
			TenantID:   p.TenantID,
			TenantSlug: p.TenantSlug,
			AccountID:  account.AccountID,
			SyncType:   models.SyncTypeAll,
		}
		uniqueID := fmt.Sprintf("cloudsync:%s:%s", account.AccountID, hour)
		_, err := e.enq.Enqueue(ctx, queue.KindCloudSyncAccount, payload, queue.Options{UniqueID: uniqueID})
		switch {
		case err == nil:
			queued++
		case errors.Is(err, queue.ErrDuplicateJob):
		default:
			e.logger.Error(ctx, "cloudsync_enqueue_failed", "failed to enqueue account sync",
				slog.String("tenant", p.TenantSlug),
				slog.String("account_id", account.AccountID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	e.logger.Info(ctx, "cloudsync_sweep_done", "cloud sync sweep complete",
		slog.String("tenant", p.TenantSlug),
		slog.Int("accounts", len(accounts)),
		slog.Int("queued", queued),
	)
	return nil
}

func (e *Engine) HandleSyncAccount(ctx context.Context, t *asynq.Task) error {
	var p queue.CloudSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode sync payload: %w", err)
	}
	ctx = tenantx.WithTenant(ctx, tenantx.Tenant{ID: p.TenantID.String(), Slug: p.TenantSlug})
	return e.SyncAccount(ctx, p.TenantID, p.TenantSlug, p.AccountID, p.SyncType)
}

// SyncAccount runs both phases for one account. Configuration failures
// (missing account, bad credentials) are recorded and skipped, never
// retried; only a run where nothing at all synced and errors occurred
// is handed back to the queue.
func (e *Engine) SyncAccount(ctx context.Context, tenantID uuid.UUID, slug string, accountID uuid.UUID, syncType string) error {
	account, err := e.store.GetAccount(ctx, tenantID, accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		e.logger.Warn(ctx, "cloudsync_account_missing", "cloud account no longer exists",
			slog.String("tenant", slug),
			slog.String("account_id", accountID.String()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cloud account: %w", err)
	}

	collector, err := e.buildCollector(ctx, account)
	if err != nil {
		e.logger.Warn(ctx, "cloudsync_config_invalid", "account skipped",
			slog.String("tenant", slug),
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()),
		)
		_ = e.store.RecordSyncResult(ctx, tenantID, accountID, models.SyncStatusFailed, err.Error())
		e.alertFailure(ctx, tenantID, slug, account, err.Error())
		return nil
	}

	if syncType == "" {
		syncType = models.SyncTypeAll
	}
	br := e.breakers[account.Provider]
	var errs []string
	resourceUpdates := 0
	costUpdates := 0

	if syncType == models.SyncTypeAll || syncType == models.SyncTypeResources {
		resourceUpdates = e.syncResources(ctx, tenantID, account, br, collector, &errs)
	}
	if syncType == models.SyncTypeAll || syncType == models.SyncTypeCosts {
		costUpdates = e.syncCosts(ctx, tenantID, account, br, collector, &errs)
	}

	if resourceUpdates == 0 && costUpdates == 0 && len(errs) > 0 {
		msg := strings.Join(errs, "; ")
		_ = e.store.RecordSyncResult(ctx, tenantID, accountID, models.SyncStatusFailed, msg)
		e.alertFailure(ctx, tenantID, slug, account, msg)
		return fmt.Errorf("cloud sync produced nothing for account %s: %s", accountID, msg)
	}

	if err := e.store.RecordSyncResult(ctx, tenantID, accountID, models.SyncStatusSuccess, ""); err != nil {
		return fmt.Errorf("record sync result: %w", err)
	}
	e.publishCompleted(ctx, slug, account, resourceUpdates, costUpdates, len(errs))
	e.logger.Info(ctx, "cloudsync_account_done", "account sync complete",
		slog.String("tenant", slug),
		slog.String("account_id", accountID.String()),
		slog.String("provider", string(account.Provider)),
		slog.Int("resources", resourceUpdates),
		slog.Int("costs", costUpdates),
		slog.Int("errors", len(errs)),
	)
	return nil
}

// alertFailure tells tenant admins an account failed to sync. One
// alert per account per day; an enqueue failure never changes the job
// outcome.
func (e *Engine) alertFailure(ctx context.Context, tenantID uuid.UUID, slug string, account models.CloudAccount, syncErr string) {
	if e.enq == nil || e.admins == nil {
		return
	}
	admins, err := e.admins.Admins(ctx, tenantID)
	if err != nil || len(admins) == 0 {
		if err != nil {
			e.logger.Warn(ctx, "cloudsync_alert_admins_failed", "could not resolve admins",
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
		TemplateKey: "cloud_sync_failed",
		Channel:     models.ChannelAll,
		UserIDs:     adminIDs,
		Data: map[string]any{
			"account_name": account.Name,
			"provider":     string(account.Provider),
			"error":        syncErr,
		},
	}
	uniqueID := fmt.Sprintf("cloudsync-failed:%s:%s", account.AccountID, time.Now().UTC().Format("2006-01-02"))
	_, err = e.enq.Enqueue(ctx, queue.KindNotifyDispatch, payload, queue.Options{
		UniqueID:  uniqueID,
		Retention: 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
		e.logger.Error(ctx, "cloudsync_alert_enqueue_failed", "failed to enqueue sync failure alert",
			slog.String("tenant", slug),
			slog.String("account_id", account.AccountID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) buildCollector(ctx context.Context, account models.CloudAccount) (Collector, error) {
	if !account.Provider.Valid() {
		return nil, fmt.Errorf("unknown provider %q", account.Provider)
	}
	creds, err := decodeCredentials(e.codec, account.Credentials)
	if err != nil {
		return nil, err
	}
	return e.factory(ctx, account.Provider, creds)
}

func (e *Engine) syncResources(ctx context.Context, tenantID uuid.UUID, account models.CloudAccount, br *breaker.Breaker, collector Collector, errs *[]string) int {
	var list []models.CloudResource
	err := br.Call(ctx, func(ctx context.Context) error {
		var cerr error
		list, cerr = collector.Resources(ctx)
		return cerr
	})
	if err != nil {
		*errs = append(*errs, "resources: "+err.Error())
		metricsx.IncCloudSyncFailure(string(account.Provider), "resources")
		return 0
	}

	updates := 0
	for _, res := range list {
		res.AccountID = account.AccountID
		if uerr := e.store.UpsertResource(ctx, tenantID, res); uerr != nil {
			*errs = append(*errs, "resources: "+uerr.Error())
			continue
		}
		updates++
	}
	return updates
}

func (e *Engine) syncCosts(ctx context.Context, tenantID uuid.UUID, account models.CloudAccount, br *breaker.Breaker, collector Collector, errs *[]string) int {
	var list []models.CloudCostRecord
	err := br.Call(ctx, func(ctx context.Context) error {
		var cerr error
		list, cerr = collector.Costs(ctx)
		return cerr
	})
	if err != nil {
		*errs = append(*errs, "costs: "+err.Error())
		metricsx.IncCloudSyncFailure(string(account.Provider), "costs")
		return 0
	}

	updates := 0
	for _, rec := range list {
		rec.AccountID = account.AccountID
		if uerr := e.store.UpsertCost(ctx, tenantID, rec); uerr != nil {
			*errs = append(*errs, "costs: "+uerr.Error())
			continue
		}
		updates++
	}
	return updates
}

func (e *Engine) publishCompleted(ctx context.Context, slug string, account models.CloudAccount, resources int, costs int, errCount int) {
	if e.producer == nil {
		return
	}
	env, err := events.NewEnvelope(slug, events.EventCloudSyncCompleted, map[string]any{
		"account_id": account.AccountID.String(),
		"provider":   string(account.Provider),
		"resources":  resources,
		"costs":      costs,
		"errors":     errCount,
	})
	if err != nil {
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := e.producer.Publish(ctx, events.TopicCloudSync, []byte(slug), body, nil); err != nil {
		e.logger.Warn(ctx, "cloudsync_event_publish_failed", "kafka publish failed",
			slog.String("tenant", slug),
			slog.String("error", err.Error()),
		)
	}
}
