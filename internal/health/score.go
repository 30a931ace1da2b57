// Package health computes per-application weighted health scores over a
// rolling window and tracks the trend against the previous score.
package health

import (
	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/repos"
)

// trendBand is the overall-score delta beyond which the trend moves off
// stable.
const trendBand = 5.0

type Components struct {
	Issue  float64
	Change float64
	Sla    float64
	Uptime float64
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// IssueScore starts at 100 and charges 5 per open ticket, the critical
// penalty per open critical, and 10 per open high.
func IssueScore(w repos.IssueWindow, cfg models.HealthScoreConfig) float64 {
	s := 100.0
	s -= 5 * float64(w.Open)
	s -= cfg.CriticalPenalty * float64(w.OpenCritical)
	s -= 10 * float64(w.OpenHigh)
	return clamp(s)
}

// ChangeScore is neutral when the window has no completed or failed
// changes.
func ChangeScore(w repos.ChangeWindow, cfg models.HealthScoreConfig) float64 {
	total := w.Completed + w.Failed
	if total == 0 {
		return 100
	}
	successRate := float64(w.Completed) / float64(total)
	return clamp(successRate*100 - float64(w.Failed)*cfg.FailedChangePenalty)
}

// SlaScore is neutral when the window has no tickets at all.
func SlaScore(w repos.IssueWindow, cfg models.HealthScoreConfig) float64 {
	if w.Total == 0 {
		return 100
	}
	complianceRate := float64(w.Total-w.Breached) / float64(w.Total)
	return clamp(complianceRate*100 - float64(w.Breached)*cfg.BreachPenalty)
}

func UptimeScore(w repos.IssueWindow) float64 {
	return clamp(100 - 5*float64(w.Outages))
}

// Overall divides by the sum of the supplied weights, never a hardcoded
// 100. An all-zero weight set yields the neutral score.
func Overall(c Components, cfg models.HealthScoreConfig) float64 {
	sum := cfg.IssueWeight + cfg.ChangeWeight + cfg.SlaWeight + cfg.UptimeWeight
	if sum == 0 {
		return 100
	}
	weighted := c.Issue*float64(cfg.IssueWeight) +
		c.Change*float64(cfg.ChangeWeight) +
		c.Sla*float64(cfg.SlaWeight) +
		c.Uptime*float64(cfg.UptimeWeight)
	return clamp(weighted / float64(sum))
}

// Trend compares the new overall score to the previous stored one. The
// first computation for an application has no prior row and is stable.
func Trend(current float64, previous float64, hasPrevious bool) string {
	if !hasPrevious {
		return models.TrendStable
	}
	diff := current - previous
	if diff > trendBand {
		return models.TrendImproving
	}
	if diff < -trendBand {
		return models.TrendDeclining
	}
	return models.TrendStable
}
