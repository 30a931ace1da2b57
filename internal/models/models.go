package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

type Tenant struct {
	TenantID  uuid.UUID
	Slug      string
	Name      string
	Status    string
	CreatedAt time.Time
}

type User struct {
	UserID       uuid.UUID
	Email        string
	Name         string
	Active       bool
	InAppEnabled bool
}

const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

const (
	SlaMetricResponse   = "response"
	SlaMetricResolution = "resolution"
)

type SlaTarget struct {
	TargetID         uuid.UUID
	Priority         string
	Metric           string
	TargetMinutes    int
	WarningThreshold float64 // percent of target, e.g. 80
}

// Ticket is the SLA-tracked entity. Breached flips once and is never
// reset by the detector; scans filter on breached = false.
type Ticket struct {
	TicketID        uuid.UUID
	Number          int64
	Title           string
	Priority        string
	Status          string
	Category        string
	ApplicationID   *uuid.UUID
	AssigneeID      *uuid.UUID
	AssignmentGroup *uuid.UUID
	Breached        bool
	CreatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
}

type BreachType string

const (
	BreachResponse   BreachType = "response"
	BreachResolution BreachType = "resolution"
)

type SlaBreach struct {
	TicketID   uuid.UUID
	Type       BreachType
	Priority   string
	DetectedAt time.Time
}

// SlaWarning is an on-demand "approaching SLA" row; it is computed per
// request and never persisted.
type SlaWarning struct {
	TicketID       uuid.UUID
	Priority       string
	ElapsedMinutes int
	TargetMinutes  int
	ThresholdPct   float64
}

type Application struct {
	ApplicationID uuid.UUID
	Name          string
	Active        bool
}

// HealthScoreConfig weights need not sum to 100; the engine divides by
// the sum actually supplied. All weights are non-negative.
type HealthScoreConfig struct {
	IssueWeight  int
	ChangeWeight int
	SlaWeight    int
	UptimeWeight int

	CriticalPenalty     float64
	FailedChangePenalty float64
	BreachPenalty       float64
}

func DefaultHealthScoreConfig() HealthScoreConfig {
	return HealthScoreConfig{
		IssueWeight:         40,
		ChangeWeight:        25,
		SlaWeight:           25,
		UptimeWeight:        10,
		CriticalPenalty:     15,
		FailedChangePenalty: 10,
		BreachPenalty:       10,
	}
}

const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

type HealthScore struct {
	ScoreID       uuid.UUID
	ApplicationID uuid.UUID
	IssueScore    float64
	ChangeScore   float64
	SlaScore      float64
	UptimeScore   float64
	OverallScore  float64
	Trend         string
	ComputedAt    time.Time
}

type CloudProvider string

const (
	ProviderAWS   CloudProvider = "aws"
	ProviderAzure CloudProvider = "azure"
	ProviderGCP   CloudProvider = "gcp"
)

func (p CloudProvider) Valid() bool {
	switch p {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return true
	}
	return false
}

const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

const (
	SyncTypeResources = "resources"
	SyncTypeCosts     = "costs"
	SyncTypeAll       = "all"
)

type CloudAccount struct {
	AccountID    uuid.UUID
	Name         string
	Provider     CloudProvider
	Credentials  string // encrypted blob, see shared/cryptox
	SyncStatus   string
	LastSyncedAt *time.Time
	LastSyncErr  string
}

type CloudResource struct {
	AccountID          uuid.UUID
	ProviderResourceID string
	ResourceType       string
	Region             string
	Name               string
	Metadata           json.RawMessage
	CostMonthly        float64
}

type CloudCostRecord struct {
	AccountID uuid.UUID
	Period    string // YYYY-MM
	Service   string
	Amount    float64
	Currency  string
}

const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
	ChannelInApp = "in_app"
	ChannelAll   = "all"
)

type InAppNotification struct {
	NotificationID uuid.UUID
	UserID         uuid.UUID
	Type           string
	Title          string
	Body           string
	CreatedAt      time.Time
}
