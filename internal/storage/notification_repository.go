package storage

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"im-sync/internal/models"
)

// NotificationRepository stores archived notifications.
type NotificationRepository interface {
	// Save inserts n or overwrites the row with the same server id.
	Save(ctx context.Context, n *models.ArchivedNotification) error
	MarkRead(ctx context.Context, serverID string) error
	// List returns the newest notifications first.
	List(ctx context.Context, limit int) ([]*models.ArchivedNotification, error)
}

type gormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a gorm backed NotificationRepository.
func NewGormNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) Save(ctx context.Context, n *models.ArchivedNotification) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "title", "body", "data_raw", "is_read", "updated_at"}),
	}).Create(n).Error
}

func (r *gormNotificationRepository) MarkRead(ctx context.Context, serverID string) error {
	return r.db.WithContext(ctx).Model(&models.ArchivedNotification{}).
		Where("server_id = ?", serverID).Update("is_read", true).Error
}

func (r *gormNotificationRepository) List(ctx context.Context, limit int) ([]*models.ArchivedNotification, error) {
	var list []*models.ArchivedNotification
	query := r.db.WithContext(ctx).Order("received_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
