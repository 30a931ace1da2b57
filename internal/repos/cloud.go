package repos

import (
	"context"
	"time"

	"github.com/google/uuid"

	"firelater-orchestrator/internal/models"
)

type CloudRepo struct {
	db DBTX
}

func NewCloudRepo(db DBTX) *CloudRepo {
	return &CloudRepo{db: db}
}

func (r *CloudRepo) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]models.CloudAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT account_id, name, provider, credentials, sync_status, last_synced_at, COALESCE(last_sync_error, '')
		FROM cloud_accounts
		WHERE tenant_id = $1 AND active
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.CloudAccount
	for rows.Next() {
		var a models.CloudAccount
		if err := rows.Scan(&a.AccountID, &a.Name, &a.Provider, &a.Credentials, &a.SyncStatus, &a.LastSyncedAt, &a.LastSyncErr); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *CloudRepo) GetAccount(ctx context.Context, tenantID uuid.UUID, accountID uuid.UUID) (models.CloudAccount, error) {
	var a models.CloudAccount
	err := r.db.QueryRow(ctx, `
		SELECT account_id, name, provider, credentials, sync_status, last_synced_at, COALESCE(last_sync_error, '')
		FROM cloud_accounts
		WHERE tenant_id = $1 AND account_id = $2
	`, tenantID, accountID).
		Scan(&a.AccountID, &a.Name, &a.Provider, &a.Credentials, &a.SyncStatus, &a.LastSyncedAt, &a.LastSyncErr)
	return a, err
}

// UpsertResource is keyed on (account, provider resource id) so a
// repeated sync updates the row in place.
func (r *CloudRepo) UpsertResource(ctx context.Context, tenantID uuid.UUID, res models.CloudResource) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cloud_resources (
			tenant_id, account_id, provider_resource_id, resource_type, region, name, metadata, cost_monthly, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (tenant_id, account_id, provider_resource_id)
		DO UPDATE SET
			resource_type = EXCLUDED.resource_type,
			region = EXCLUDED.region,
			name = EXCLUDED.name,
			metadata = EXCLUDED.metadata,
			cost_monthly = EXCLUDED.cost_monthly,
			updated_at = EXCLUDED.updated_at
	`, tenantID, res.AccountID, res.ProviderResourceID, res.ResourceType, res.Region, res.Name, res.Metadata, res.CostMonthly)
	return err
}

// UpsertCost is keyed on (account, period, service).
func (r *CloudRepo) UpsertCost(ctx context.Context, tenantID uuid.UUID, rec models.CloudCostRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cloud_cost_records (
			tenant_id, account_id, period, service, amount, currency, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, account_id, period, service)
		DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at
	`, tenantID, rec.AccountID, rec.Period, rec.Service, rec.Amount, rec.Currency)
	return err
}

func (r *CloudRepo) RecordSyncResult(ctx context.Context, tenantID uuid.UUID, accountID uuid.UUID, status string, syncErr string) error {
	var errText any
	if syncErr != "" {
		errText = syncErr
	}
	_, err := r.db.Exec(ctx, `
		UPDATE cloud_accounts
		SET sync_status = $3, last_synced_at = $4, last_sync_error = $5
		WHERE tenant_id = $1 AND account_id = $2
	`, tenantID, accountID, status, time.Now().UTC(), errText)
	return err
}
