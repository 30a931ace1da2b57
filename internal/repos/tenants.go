package repos

import (
	"context"

	"firelater-orchestrator/internal/models"
)

type TenantsRepo struct {
	db DBTX
}

func NewTenantsRepo(db DBTX) *TenantsRepo {
	return &TenantsRepo{db: db}
}

// ListActive is the only cross-tenant enumeration point; every sweep
// starts here.
func (r *TenantsRepo) ListActive(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tenant_id, slug, name, status, created_at
		FROM tenants
		WHERE status = $1
		ORDER BY slug
	`, models.TenantStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.TenantID, &t.Slug, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *TenantsRepo) GetBySlug(ctx context.Context, slug string) (models.Tenant, error) {
	var t models.Tenant
	err := r.db.QueryRow(ctx, `
		SELECT tenant_id, slug, name, status, created_at
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.TenantID, &t.Slug, &t.Name, &t.Status, &t.CreatedAt)
	return t, err
}
