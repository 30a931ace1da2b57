package repos

import (
	"context"
	"time"

	"github.com/google/uuid"

	"firelater-orchestrator/internal/models"
)

type NotificationsRepo struct {
	db DBTX
}

func NewNotificationsRepo(db DBTX) *NotificationsRepo {
	return &NotificationsRepo{db: db}
}

func (r *NotificationsRepo) InsertInApp(ctx context.Context, tenantID uuid.UUID, n models.InAppNotification) (models.InAppNotification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (tenant_id, user_id, type, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING notification_id
	`, tenantID, n.UserID, n.Type, n.Title, n.Body, n.CreatedAt).
		Scan(&n.NotificationID)
	return n, err
}
