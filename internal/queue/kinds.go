package queue

import "github.com/google/uuid"

// Queue names. Each queue runs on its own asynq server with its own
// concurrency and rate limit.
const (
	QueueSla       = "sla"
	QueueHealth    = "health"
	QueueNotify    = "notify"
	QueueCloudSync = "cloudsync"
)

// Task kinds. The set is closed: Enqueue rejects anything not listed here.
const (
	KindSlaSweepTenant    = "sla:sweep_tenant"
	KindHealthScoreTenant = "health:score_tenant"
	KindNotifyDispatch    = "notify:dispatch"
	KindCloudSyncTenant   = "cloudsync:sweep_tenant"
	KindCloudSyncAccount  = "cloudsync:sync_account"
)

var kindQueues = map[string]string{
	KindSlaSweepTenant:    QueueSla,
	KindHealthScoreTenant: QueueHealth,
	KindNotifyDispatch:    QueueNotify,
	KindCloudSyncTenant:   QueueCloudSync,
	KindCloudSyncAccount:  QueueCloudSync,
}

// QueueFor returns the queue a task kind runs on.
func QueueFor(kind string) (string, bool) {
	q, ok := kindQueues[kind]
	return q, ok
}

// Queues lists every queue name.
func Queues() []string {
	return []string{QueueSla, QueueHealth, QueueNotify, QueueCloudSync}
}

type SweepPayload struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantSlug string    `json:"tenant_slug"`
}

type NotifyPayload struct {
	TenantID    uuid.UUID      `json:"tenant_id"`
	TenantSlug  string         `json:"tenant_slug"`
	TemplateKey string         `json:"template_key"`
	Channel     string         `json:"channel"`
	UserIDs     []uuid.UUID    `json:"user_ids,omitempty"`
	Emails      []string       `json:"emails,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

type CloudSyncPayload struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantSlug string    `json:"tenant_slug"`
	AccountID  uuid.UUID `json:"account_id"`
	SyncType   string    `json:"sync_type"`
}
