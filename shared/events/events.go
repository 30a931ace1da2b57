package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	TenantSlug string          `json:"tenant_slug"`
	OccurredAt time.Time       `json:"occurred_at"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(tenantSlug string, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:    uuid.New(),
		TenantSlug: tenantSlug,
		OccurredAt: time.Now().UTC(),
		EventType:  eventType,
		Payload:    raw,
	}, nil
}

const (
	TopicSlaBreaches  = "sla.breaches"
	TopicHealthScores = "health.scores"
	TopicCloudSync    = "cloud.sync"
)

const (
	EventBreachDetected      = "sla.breach.detected"
	EventHealthScoreComputed = "health.score.computed"
	EventCloudSyncCompleted  = "cloud.sync.completed"
)
