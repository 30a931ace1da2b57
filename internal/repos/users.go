package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"firelater-orchestrator/internal/models"
)

type UsersRepo struct {
	db DBTX
}

func NewUsersRepo(db DBTX) *UsersRepo {
	return &UsersRepo{db: db}
}

func (r *UsersRepo) ActiveByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, email, display_name, active, in_app_enabled
		FROM users
		WHERE tenant_id = $1 AND user_id = ANY($2) AND active
	`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *UsersRepo) ActiveByEmails(ctx context.Context, tenantID uuid.UUID, emails []string) ([]models.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, email, display_name, active, in_app_enabled
		FROM users
		WHERE tenant_id = $1 AND lower(email) = ANY($2) AND active
	`, tenantID, lowerAll(emails))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// Admins lists the tenant's active admin users. Health alerts address
// this set when an application turns critical.
func (r *UsersRepo) Admins(ctx context.Context, tenantID uuid.UUID) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, email, display_name, active, in_app_enabled
		FROM users
		WHERE tenant_id = $1 AND role = 'admin' AND active
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// GroupManagers resolves assignment-group managers in one query; the
// detector calls this once per sweep, never per breach.
func (r *UsersRepo) GroupManagers(ctx context.Context, tenantID uuid.UUID, groupIDs []uuid.UUID) (map[uuid.UUID]models.User, error) {
	if len(groupIDs) == 0 {
		return map[uuid.UUID]models.User{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT g.group_id, u.user_id, u.email, u.display_name, u.active, u.in_app_enabled
		FROM assignment_groups g
		JOIN users u ON u.user_id = g.manager_id AND u.tenant_id = g.tenant_id
		WHERE g.tenant_id = $1 AND g.group_id = ANY($2) AND u.active
	`, tenantID, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	managers := make(map[uuid.UUID]models.User, len(groupIDs))
	for rows.Next() {
		var groupID uuid.UUID
		var u models.User
		if err := rows.Scan(&groupID, &u.UserID, &u.Email, &u.Name, &u.Active, &u.InAppEnabled); err != nil {
			return nil, err
		}
		managers[groupID] = u
	}
	return managers, rows.Err()
}

func scanUsers(rows pgx.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.UserID, &u.Email, &u.Name, &u.Active, &u.InAppEnabled); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
