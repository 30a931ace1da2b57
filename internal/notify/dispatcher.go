// Package notify fans a notification job out across in-app, email, and
// slack channels. Per-recipient failures are collected, not fatal; the
// job only fails when nothing at all was delivered.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/shared/logx"
	"firelater-orchestrator/shared/metricsx"
	"firelater-orchestrator/shared/tenantx"
)

// maxReportedErrors bounds how many delivery errors make it into the
// partial-success log line.
const maxReportedErrors = 3

type Directory interface {
	ActiveByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.User, error)
	ActiveByEmails(ctx context.Context, tenantID uuid.UUID, emails []string) ([]models.User, error)
}

type InAppStore interface {
	InsertInApp(ctx context.Context, tenantID uuid.UUID, n models.InAppNotification) (models.InAppNotification, error)
}

type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

type WebhookPoster interface {
	Post(ctx context.Context, webhookURL string, text string) error
}

type Dispatcher struct {
	users  Directory
	inapp  InAppStore
	email  EmailSender
	slack  WebhookPoster
	logger logx.Logger
}

// New builds a dispatcher. email and slack may be nil when those
// channels are not configured; attempts against them record an error
// instead of delivering.
func New(users Directory, inapp InAppStore, email EmailSender, slack WebhookPoster, logger logx.Logger) *Dispatcher {
	return &Dispatcher{
		users:  users,
		inapp:  inapp,
		email:  email,
		slack:  slack,
		logger: logger,
	}
}

// outcome aggregates one dispatch run.
type outcome struct {
	sent   map[string]int
	errors []string
}

func newOutcome() *outcome {
	return &outcome{sent: make(map[string]int)}
}

func (o *outcome) success(channel string) {
	o.sent[channel]++
	metricsx.IncNotificationSent(channel)
}

func (o *outcome) failure(channel string, err error) {
	o.errors = append(o.errors, channel+": "+err.Error())
	metricsx.IncNotificationFailure(channel)
}

func (o *outcome) totalSent() int {
	n := 0
	for _, c := range o.sent {
		n += c
	}
	return n
}

func (o *outcome) firstErrors() []string {
	if len(o.errors) <= maxReportedErrors {
		return o.errors
	}
	return o.errors[:maxReportedErrors]
}

func (d *Dispatcher) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	var p queue.NotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode notify payload: %w", err)
	}
	ctx = tenantx.WithTenant(ctx, tenantx.Tenant{ID: p.TenantID.String(), Slug: p.TenantSlug})
	return d.Dispatch(ctx, p)
}

// Dispatch resolves recipients and attempts every selected channel for
// each. It returns an error only when zero deliveries succeeded, at
// least one recipient existed, and at least one error was recorded;
// that combination hands the whole job back to the queue for retry.
func (d *Dispatcher) Dispatch(ctx context.Context, p queue.NotifyPayload) error {
	rendered, err := Lookup(p.TemplateKey).Render(templateData(p))
	if err != nil {
		return err
	}

	recipients, err := d.resolveRecipients(ctx, p)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}

	out := newOutcome()
	for _, user := range recipients {
		if wantsChannel(p.Channel, models.ChannelInApp) {
			d.deliverInApp(ctx, p, user, rendered, out)
		}
		if wantsChannel(p.Channel, models.ChannelEmail) {
			d.deliverEmail(ctx, p, user, rendered, out)
		}
	}
	if wantsChannel(p.Channel, models.ChannelSlack) {
		d.deliverSlack(ctx, p, rendered, out)
	}

	if out.totalSent() == 0 && len(recipients) > 0 && len(out.errors) > 0 {
		return fmt.Errorf("all deliveries failed for %d recipients: %v", len(recipients), out.firstErrors())
	}

	d.logger.Info(ctx, "notify_dispatched", "notification dispatched",
		slog.String("tenant", p.TenantSlug),
		slog.String("type", p.TemplateKey),
		slog.Int("recipients", len(recipients)),
		slog.Int("in_app", out.sent[models.ChannelInApp]),
		slog.Int("email", out.sent[models.ChannelEmail]),
		slog.Int("slack", out.sent[models.ChannelSlack]),
		slog.Int("errors", len(out.errors)),
		slog.Any("first_errors", out.firstErrors()),
	)
	return nil
}

func wantsChannel(selector string, channel string) bool {
	return selector == models.ChannelAll || selector == channel
}

func templateData(p queue.NotifyPayload) map[string]any {
	data := make(map[string]any, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	data["tenant_slug"] = p.TenantSlug
	return data
}

// resolveRecipients merges id-addressed and email-addressed users,
// deduped by user id. Only active users come back from the directory.
func (d *Dispatcher) resolveRecipients(ctx context.Context, p queue.NotifyPayload) ([]models.User, error) {
	seen := make(map[uuid.UUID]struct{})
	var recipients []models.User

	add := func(users []models.User) {
		for _, u := range users {
			if _, ok := seen[u.UserID]; ok {
				continue
			}
			seen[u.UserID] = struct{}{}
			recipients = append(recipients, u)
		}
	}

	if len(p.UserIDs) > 0 {
		users, err := d.users.ActiveByIDs(ctx, p.TenantID, p.UserIDs)
		if err != nil {
			return nil, err
		}
		add(users)
	}
	if len(p.Emails) > 0 {
		users, err := d.users.ActiveByEmails(ctx, p.TenantID, p.Emails)
		if err != nil {
			return nil, err
		}
		add(users)
	}
	return recipients, nil
}

func (d *Dispatcher) deliverInApp(ctx context.Context, p queue.NotifyPayload, user models.User, r Rendered, out *outcome) {
	if !user.InAppEnabled {
		return
	}
	_, err := d.inapp.InsertInApp(ctx, p.TenantID, models.InAppNotification{
		UserID:    user.UserID,
		Type:      p.TemplateKey,
		Title:     r.Subject,
		Body:      r.Text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		out.failure(models.ChannelInApp, err)
		return
	}
	out.success(models.ChannelInApp)
}

func (d *Dispatcher) deliverEmail(ctx context.Context, p queue.NotifyPayload, user models.User, r Rendered, out *outcome) {
	if user.Email == "" {
		return
	}
	if d.email == nil {
		out.failure(models.ChannelEmail, fmt.Errorf("email relay not configured"))
		return
	}
	err := d.email.Send(ctx, Email{
		To:         user.Email,
		Type:       p.TemplateKey,
		Subject:    r.Subject,
		HTML:       r.HTML,
		Text:       r.Text,
		TenantSlug: p.TenantSlug,
	})
	if err != nil {
		out.failure(models.ChannelEmail, err)
		return
	}
	out.success(models.ChannelEmail)
}

// deliverSlack runs once per job, keyed by a webhook target inside the
// job data, never per recipient.
func (d *Dispatcher) deliverSlack(ctx context.Context, p queue.NotifyPayload, r Rendered, out *outcome) {
	webhookURL, _ := p.Data["slack_webhook"].(string)
	if webhookURL == "" {
		return
	}
	if d.slack == nil {
		out.failure(models.ChannelSlack, fmt.Errorf("slack client not configured"))
		return
	}
	if err := d.slack.Post(ctx, webhookURL, r.Short); err != nil {
		out.failure(models.ChannelSlack, err)
		return
	}
	out.success(models.ChannelSlack)
}
