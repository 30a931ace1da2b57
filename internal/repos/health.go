package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"firelater-orchestrator/internal/models"
)

type HealthRepo struct {
	db DBTX
}

func NewHealthRepo(db DBTX) *HealthRepo {
	return &HealthRepo{db: db}
}

func (r *HealthRepo) ListActiveApplications(ctx context.Context, tenantID uuid.UUID) ([]models.Application, error) {
	rows, err := r.db.Query(ctx, `
		SELECT application_id, name, active
		FROM applications
		WHERE tenant_id = $1 AND active
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		var a models.Application
		if err := rows.Scan(&a.ApplicationID, &a.Name, &a.Active); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *HealthRepo) Config(ctx context.Context, tenantID uuid.UUID) (models.HealthScoreConfig, bool, error) {
	var cfg models.HealthScoreConfig
	err := r.db.QueryRow(ctx, `
		SELECT issue_weight, change_weight, sla_weight, uptime_weight,
		       critical_penalty, failed_change_penalty, breach_penalty
		FROM health_score_configs
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&cfg.IssueWeight, &cfg.ChangeWeight, &cfg.SlaWeight, &cfg.UptimeWeight,
		&cfg.CriticalPenalty, &cfg.FailedChangePenalty, &cfg.BreachPenalty,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultHealthScoreConfig(), false, nil
	}
	if err != nil {
		return models.HealthScoreConfig{}, false, err
	}
	return cfg, true, nil
}

// IssueWindow aggregates one application's tickets over the scoring
// window in a single query.
type IssueWindow struct {
	Total        int
	Open         int
	OpenCritical int
	OpenHigh     int
	Breached     int
	Outages      int
}

func (r *HealthRepo) IssueWindow(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID, since time.Time) (IssueWindow, error) {
	var w IssueWindow
	err := r.db.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE resolved_at IS NULL),
			count(*) FILTER (WHERE resolved_at IS NULL AND priority = 'critical'),
			count(*) FILTER (WHERE resolved_at IS NULL AND priority = 'high'),
			count(*) FILTER (WHERE breached),
			count(*) FILTER (WHERE priority = 'critical' AND category = 'outage')
		FROM tickets
		WHERE tenant_id = $1 AND application_id = $2 AND created_at >= $3
	`, tenantID, appID, since).
		Scan(&w.Total, &w.Open, &w.OpenCritical, &w.OpenHigh, &w.Breached, &w.Outages)
	return w, err
}

type ChangeWindow struct {
	Completed int
	Failed    int
}

func (r *HealthRepo) ChangeWindow(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID, since time.Time) (ChangeWindow, error) {
	var w ChangeWindow
	err := r.db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed')
		FROM changes
		WHERE tenant_id = $1 AND application_id = $2 AND completed_at >= $3
	`, tenantID, appID, since).Scan(&w.Completed, &w.Failed)
	return w, err
}

// LatestScore returns the most recent stored score for trend
// comparison; ok is false on the first-ever computation.
func (r *HealthRepo) LatestScore(ctx context.Context, tenantID uuid.UUID, appID uuid.UUID) (models.HealthScore, bool, error) {
	var s models.HealthScore
	err := r.db.QueryRow(ctx, `
		SELECT score_id, application_id, issue_score, change_score, sla_score, uptime_score, overall_score, trend, computed_at
		FROM health_scores
		WHERE tenant_id = $1 AND application_id = $2
		ORDER BY computed_at DESC
		LIMIT 1
	`, tenantID, appID).
		Scan(&s.ScoreID, &s.ApplicationID, &s.IssueScore, &s.ChangeScore, &s.SlaScore, &s.UptimeScore, &s.OverallScore, &s.Trend, &s.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.HealthScore{}, false, nil
	}
	if err != nil {
		return models.HealthScore{}, false, err
	}
	return s, true, nil
}

func (r *HealthRepo) InsertScore(ctx context.Context, tenantID uuid.UUID, score models.HealthScore) (models.HealthScore, error) {
	if score.ComputedAt.IsZero() {
		score.ComputedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO health_scores (
			tenant_id, application_id, issue_score, change_score, sla_score, uptime_score, overall_score, trend, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING score_id
	`, tenantID, score.ApplicationID, score.IssueScore, score.ChangeScore, score.SlaScore, score.UptimeScore, score.OverallScore, score.Trend, score.ComputedAt).
		Scan(&score.ScoreID)
	return score, err
}
