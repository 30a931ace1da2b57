package sla

import "firelater-orchestrator/internal/models"

// defaultWarningThreshold is the percent of the resolution target past
// which a ticket counts as approaching breach.
const defaultWarningThreshold = 80

// DefaultTargets are the built-in tiers used when a tenant has no SLA
// targets configured. Detection never skips a tenant for lack of rows.
func DefaultTargets() []models.SlaTarget {
	type tier struct {
		priority          string
		responseMinutes   int
		resolutionMinutes int
	}
	tiers := []tier{
		{models.PriorityCritical, 15, 240},
		{models.PriorityHigh, 30, 480},
		{models.PriorityMedium, 60, 1440},
		{models.PriorityLow, 120, 2880},
	}
	out := make([]models.SlaTarget, 0, len(tiers)*2)
	for _, t := range tiers {
		out = append(out,
			models.SlaTarget{
				Priority:         t.priority,
				Metric:           models.SlaMetricResponse,
				TargetMinutes:    t.responseMinutes,
				WarningThreshold: defaultWarningThreshold,
			},
			models.SlaTarget{
				Priority:         t.priority,
				Metric:           models.SlaMetricResolution,
				TargetMinutes:    t.resolutionMinutes,
				WarningThreshold: defaultWarningThreshold,
			},
		)
	}
	return out
}
