// Package sla detects response and resolution SLA breaches per tenant
// sweep, marks them idempotently, and fans notification jobs out to the
// assignee and assignment-group manager of each breached ticket.
package sla

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
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
	"firelater-orchestrator/shared/mqx"
	"firelater-orchestrator/shared/tenantx"
)

const targetsCacheTTL = 5 * time.Minute

type Store interface {
	TargetsForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.SlaTarget, error)
	FindResponseBreaches(ctx context.Context, tenantID uuid.UUID, targetsByPriority map[string]int) ([]repos.BreachCandidate, error)
	FindResolutionBreaches(ctx context.Context, tenantID uuid.UUID, targetsByPriority map[string]int) ([]repos.BreachCandidate, error)
	MarkBreached(ctx context.Context, tenantID uuid.UUID, ticketIDs []uuid.UUID) (int64, error)
	ApproachingResolution(ctx context.Context, tenantID uuid.UUID, targets []models.SlaTarget) ([]models.SlaWarning, error)
}

type Directory interface {
	ActiveByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.User, error)
	GroupManagers(ctx context.Context, tenantID uuid.UUID, groupIDs []uuid.UUID) (map[uuid.UUID]models.User, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (string, error)
}

type Detector struct {
	store    Store
	users    Directory
	enq      Enqueuer
	cache    *cachex.Client
	producer *mqx.Producer
	logger   logx.Logger
}

// New builds a detector. cache and producer may be nil; target caching
// and breach events are then skipped.
func New(store Store, users Directory, enq Enqueuer, cache *cachex.Client, producer *mqx.Producer, logger logx.Logger) *Detector {
	return &Detector{
		store:    store,
		users:    users,
		enq:      enq,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// Result summarizes one tenant sweep.
type Result struct {
	ResponseBreaches   int
	ResolutionBreaches int
	Marked             int64
	NotifyQueued       int
	NotifyFailed       int
}

func (d *Detector) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var p queue.SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode sweep payload: %w", err)
	}
	ctx = tenantx.WithTenant(ctx, tenantx.Tenant{ID: p.TenantID.String(), Slug: p.TenantSlug})
	res, err := d.Sweep(ctx, p.TenantID, p.TenantSlug)
	if err != nil {
		return err
	}
	d.logger.Info(ctx, "sla_sweep_done", "sla sweep complete",
		slog.String("tenant", p.TenantSlug),
		slog.Int("response_breaches", res.ResponseBreaches),
		slog.Int("resolution_breaches", res.ResolutionBreaches),
		slog.Int64("marked", res.Marked),
		slog.Int("notify_queued", res.NotifyQueued),
		slog.Int("notify_failed", res.NotifyFailed),
	)
	return nil
}

type breachNotice struct {
	candidate repos.BreachCandidate
	kind      models.BreachType
}

// Sweep runs breach detection for one tenant.
func (d *Detector) Sweep(ctx context.Context, tenantID uuid.UUID, slug string) (Result, error) {
	var res Result

	targets, err := d.targets(ctx, tenantID, slug)
	if err != nil {
		return res, fmt.Errorf("load sla targets: %w", err)
	}
	responseTiers, resolutionTiers := tiersByMetric(targets)

	responseHits, err := d.store.FindResponseBreaches(ctx, tenantID, responseTiers)
	if err != nil {
		return res, fmt.Errorf("find response breaches: %w", err)
	}
	resolutionHits, err := d.store.FindResolutionBreaches(ctx, tenantID, resolutionTiers)
	if err != nil {
		return res, fmt.Errorf("find resolution breaches: %w", err)
	}
	res.ResponseBreaches = len(responseHits)
	res.ResolutionBreaches = len(resolutionHits)

	notices := make([]breachNotice, 0, len(responseHits)+len(resolutionHits))
	for _, c := range responseHits {
		notices = append(notices, breachNotice{candidate: c, kind: models.BreachResponse})
	}
	for _, c := range resolutionHits {
		notices = append(notices, breachNotice{candidate: c, kind: models.BreachResolution})
	}
	if len(notices) == 0 {
		return res, nil
	}

	// A ticket can breach both metrics in one sweep; it is marked once.
	ticketIDs := dedupeTickets(notices)
	marked, err := d.store.MarkBreached(ctx, tenantID, ticketIDs)
	if err != nil {
		return res, fmt.Errorf("mark breached: %w", err)
	}
	res.Marked = marked

	for _, n := range notices {
		metricsx.IncBreachDetected(string(n.kind))
	}

	recipients, err := d.resolveRecipients(ctx, tenantID, notices)
	if err != nil {
		return res, fmt.Errorf("resolve recipients: %w", err)
	}

	queued, errs := queueEach(notices, func(n breachNotice) error {
		return d.enqueueBreachNotification(ctx, tenantID, slug, n, recipients)
	})
	res.NotifyQueued = queued
	res.NotifyFailed = len(errs)
	for _, qe := range errs {
		d.logger.Error(ctx, "breach_notify_enqueue_failed", "failed to enqueue breach notification",
			slog.String("tenant", slug),
			slog.String("error", qe.Error()),
		)
	}

	d.publishEvents(ctx, slug, notices)
	return res, nil
}

// Warnings lists tickets approaching their resolution target. On-demand
// only; never driven by the scheduler.
func (d *Detector) Warnings(ctx context.Context, tenantID uuid.UUID, slug string) ([]models.SlaWarning, error) {
	targets, err := d.targets(ctx, tenantID, slug)
	if err != nil {
		return nil, err
	}
	return d.store.ApproachingResolution(ctx, tenantID, targets)
}

func (d *Detector) targets(ctx context.Context, tenantID uuid.UUID, slug string) ([]models.SlaTarget, error) {
	cacheKey := cachex.Key("sla", "targets", slug)
	if d.cache != nil {
		var cached []models.SlaTarget
		if ok, err := d.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok && len(cached) > 0 {
			return cached, nil
		}
	}

	targets, err := d.store.TargetsForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		targets = DefaultTargets()
	}
	if d.cache != nil {
		if err := d.cache.SetJSON(ctx, cacheKey, targets, targetsCacheTTL); err != nil {
			d.logger.Warn(ctx, "targets_cache_write_failed", "could not cache sla targets",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		}
	}
	return targets, nil
}

func tiersByMetric(targets []models.SlaTarget) (response map[string]int, resolution map[string]int) {
	response = make(map[string]int)
	resolution = make(map[string]int)
	for _, t := range targets {
		if t.TargetMinutes <= 0 {
			continue
		}
		switch t.Metric {
		case models.SlaMetricResponse:
			response[t.Priority] = t.TargetMinutes
		case models.SlaMetricResolution:
			resolution[t.Priority] = t.TargetMinutes
		}
	}
	return response, resolution
}

func dedupeTickets(notices []breachNotice) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(notices))
	out := make([]uuid.UUID, 0, len(notices))
	for _, n := range notices {
		if _, ok := seen[n.candidate.TicketID]; ok {
			continue
		}
		seen[n.candidate.TicketID] = struct{}{}
		out = append(out, n.candidate.TicketID)
	}
	return out
}

// recipientIndex resolves assignees and group managers in two batched
// lookups, never one query per breach.
type recipientIndex struct {
	usersByID map[uuid.UUID]models.User
	managers  map[uuid.UUID]models.User
}

func (d *Detector) resolveRecipients(ctx context.Context, tenantID uuid.UUID, notices []breachNotice) (recipientIndex, error) {
	idx := recipientIndex{
		usersByID: make(map[uuid.UUID]models.User),
		managers:  make(map[uuid.UUID]models.User),
	}

	assigneeSet := make(map[uuid.UUID]struct{})
	groupSet := make(map[uuid.UUID]struct{})
	for _, n := range notices {
		if n.candidate.AssigneeID != nil {
			assigneeSet[*n.candidate.AssigneeID] = struct{}{}
		}
		if n.candidate.AssignmentGroup != nil {
			groupSet[*n.candidate.AssignmentGroup] = struct{}{}
		}
	}

	if len(assigneeSet) > 0 {
		ids := make([]uuid.UUID, 0, len(assigneeSet))
		for id := range assigneeSet {
			ids = append(ids, id)
		}
		users, err := d.users.ActiveByIDs(ctx, tenantID, ids)
		if err != nil {
			return idx, err
		}
		for _, u := range users {
			idx.usersByID[u.UserID] = u
		}
	}
	if len(groupSet) > 0 {
		ids := make([]uuid.UUID, 0, len(groupSet))
		for id := range groupSet {
			ids = append(ids, id)
		}
		managers, err := d.users.GroupManagers(ctx, tenantID, ids)
		if err != nil {
			return idx, err
		}
		idx.managers = managers
	}
	return idx, nil
}

// recipientsFor returns the assignee plus the group manager when the
// manager is a different user.
func (idx recipientIndex) recipientsFor(c repos.BreachCandidate) []uuid.UUID {
	var out []uuid.UUID
	var assigneeID uuid.UUID
	if c.AssigneeID != nil {
		if u, ok := idx.usersByID[*c.AssigneeID]; ok {
			assigneeID = u.UserID
			out = append(out, u.UserID)
		}
	}
	if c.AssignmentGroup != nil {
		if m, ok := idx.managers[*c.AssignmentGroup]; ok && m.UserID != assigneeID {
			out = append(out, m.UserID)
		}
	}
	return out
}

func (d *Detector) enqueueBreachNotification(ctx context.Context, tenantID uuid.UUID, slug string, n breachNotice, idx recipientIndex) error {
	userIDs := idx.recipientsFor(n.candidate)
	if len(userIDs) == 0 {
		return nil
	}
	payload := queue.NotifyPayload{
		TenantID:    tenantID,
		TenantSlug:  slug,
		TemplateKey: "sla_breach",
		Channel:     models.ChannelAll,
		UserIDs:     userIDs,
		Data: map[string]any{
			"ticket_id":   n.candidate.TicketID.String(),
			"breach_type": string(n.kind),
			"priority":    n.candidate.Priority,
		},
	}
	uniqueID := fmt.Sprintf("sla-breach:%s:%s", n.candidate.TicketID, n.kind)
	_, err := d.enq.Enqueue(ctx, queue.KindNotifyDispatch, payload, queue.Options{UniqueID: uniqueID})
	if errors.Is(err, queue.ErrDuplicateJob) {
		return nil
	}
	return err
}

func (d *Detector) publishEvents(ctx context.Context, slug string, notices []breachNotice) {
	if d.producer == nil {
		return
	}
	for _, n := range notices {
		env, err := events.NewEnvelope(slug, events.EventBreachDetected, map[string]any{
			"ticket_id":   n.candidate.TicketID.String(),
			"breach_type": string(n.kind),
			"priority":    n.candidate.Priority,
		})
		if err != nil {
			continue
		}
		body, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if err := d.producer.Publish(ctx, events.TopicSlaBreaches, []byte(slug), body, nil); err != nil {
			d.logger.Warn(ctx, "breach_event_publish_failed", "kafka publish failed",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// queueEach applies enqueue per item, collecting failures instead of
// stopping. One broken enqueue never hides the rest of the batch.
func queueEach[T any](items []T, enqueue func(T) error) (int, []error) {
	ok := 0
	var errs []error
	for _, item := range items {
		if err := enqueue(item); err != nil {
			errs = append(errs, err)
			continue
		}
		ok++
	}
	return ok, errs
}
