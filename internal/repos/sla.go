package repos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"firelater-orchestrator/internal/models"
)

type SlaRepo struct {
	db DBTX
}

func NewSlaRepo(db DBTX) *SlaRepo {
	return &SlaRepo{db: db}
}

func (r *SlaRepo) TargetsForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.SlaTarget, error) {
	rows, err := r.db.Query(ctx, `
		SELECT target_id, priority, metric, target_minutes, warning_threshold
		FROM sla_targets
		WHERE tenant_id = $1 AND active
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []models.SlaTarget
	for rows.Next() {
		var t models.SlaTarget
		if err := rows.Scan(&t.TargetID, &t.Priority, &t.Metric, &t.TargetMinutes, &t.WarningThreshold); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// BreachCandidate is an open ticket whose age exceeded its tier target.
type BreachCandidate struct {
	TicketID        uuid.UUID
	Priority        string
	AssigneeID      *uuid.UUID
	AssignmentGroup *uuid.UUID
}

// FindResponseBreaches unions all priority tiers into a single query:
// open tickets with no first response older than that tier's response
// target. Already-breached tickets are excluded by the breached filter.
func (r *SlaRepo) FindResponseBreaches(ctx context.Context, tenantID uuid.UUID, targetsByPriority map[string]int) ([]BreachCandidate, error) {
	return r.findBreaches(ctx, tenantID, targetsByPriority, "AND t.first_response_at IS NULL")
}

// FindResolutionBreaches is the symmetric query over unresolved tickets
// against the resolution targets.
func (r *SlaRepo) FindResolutionBreaches(ctx context.Context, tenantID uuid.UUID, targetsByPriority map[string]int) ([]BreachCandidate, error) {
	return r.findBreaches(ctx, tenantID, targetsByPriority, "")
}

func (r *SlaRepo) findBreaches(ctx context.Context, tenantID uuid.UUID, targetsByPriority map[string]int, extraFilter string) ([]BreachCandidate, error) {
	if len(targetsByPriority) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(targetsByPriority))
	args := []any{tenantID}
	i := 2
	for priority, minutes := range targetsByPriority {
		values = append(values, fmt.Sprintf("($%d::text, $%d::int)", i, i+1))
		args = append(args, priority, minutes)
		i += 2
	}

	query := fmt.Sprintf(`
		SELECT t.ticket_id, t.priority, t.assignee_id, t.assignment_group
		FROM tickets t
		JOIN (VALUES %s) AS targets(priority, minutes) ON t.priority = targets.priority
		WHERE t.tenant_id = $1
		  AND t.status NOT IN ('resolved', 'closed', 'cancelled')
		  AND t.breached = false
		  AND t.created_at < now() - targets.minutes * interval '1 minute'
		  %s
	`, strings.Join(values, ", "), extraFilter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BreachCandidate
	for rows.Next() {
		var c BreachCandidate
		if err := rows.Scan(&c.TicketID, &c.Priority, &c.AssigneeID, &c.AssignmentGroup); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkBreached flips breached in one batched update. The breached =
// false guard makes a retried sweep a no-op for already-marked rows.
func (r *SlaRepo) MarkBreached(ctx context.Context, tenantID uuid.UUID, ticketIDs []uuid.UUID) (int64, error) {
	if len(ticketIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE tickets
		SET breached = true, updated_at = now()
		WHERE tenant_id = $1 AND ticket_id = ANY($2) AND breached = false
	`, tenantID, ticketIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApproachingResolution lists unresolved, unbreached tickets past the
// warning threshold of their resolution target. On-demand only; the
// scheduler never drives this.
func (r *SlaRepo) ApproachingResolution(ctx context.Context, tenantID uuid.UUID, targets []models.SlaTarget) ([]models.SlaWarning, error) {
	var warnings []models.SlaWarning
	for _, target := range targets {
		if target.Metric != models.SlaMetricResolution || target.TargetMinutes <= 0 {
			continue
		}
		threshold := target.WarningThreshold
		if threshold <= 0 {
			threshold = 80
		}
		warnMinutes := float64(target.TargetMinutes) * threshold / 100

		rows, err := r.db.Query(ctx, `
			SELECT ticket_id, EXTRACT(EPOCH FROM now() - created_at)::bigint / 60
			FROM tickets
			WHERE tenant_id = $1
			  AND priority = $2
			  AND status NOT IN ('resolved', 'closed', 'cancelled')
			  AND breached = false
			  AND created_at < now() - $3 * interval '1 minute'
			  AND created_at >= now() - $4 * interval '1 minute'
		`, tenantID, target.Priority, warnMinutes, target.TargetMinutes)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			w := models.SlaWarning{
				Priority:      target.Priority,
				TargetMinutes: target.TargetMinutes,
				ThresholdPct:  threshold,
			}
			var elapsed int64
			if err := rows.Scan(&w.TicketID, &elapsed); err != nil {
				rows.Close()
				return nil, err
			}
			w.ElapsedMinutes = int(elapsed)
			warnings = append(warnings, w)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return warnings, nil
}
