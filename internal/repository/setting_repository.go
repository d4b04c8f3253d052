package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"rainbow-register/internal/models"
)

// GetSetting retrieves a setting row by key
func (r *Repository) GetSetting(ctx context.Context, key string) (*models.SystemSetting, error) {
	var setting models.SystemSetting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

// UpsertSetting inserts or overwrites a setting row
func (r *Repository) UpsertSetting(ctx context.Context, setting *models.SystemSetting) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(setting).Error
}

// ListSettings returns every stored setting
func (r *Repository) ListSettings(ctx context.Context) ([]models.SystemSetting, error) {
	var settings []models.SystemSetting
	err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error
	return settings, err
}

// CreateAuditLog appends an audit entry
func (r *Repository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListAuditLogs returns audit entries newest first, optionally for one profile
func (r *Repository) ListAuditLogs(ctx context.Context, resourceType string, resourceID *uint, offset, limit int) ([]models.AuditLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if resourceType != "" {
		query = query.Where("resource_type = ?", resourceType)
	}
	if resourceID != nil {
		query = query.Where("resource_id = ?", *resourceID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&logs).Error
	return logs, total, err
}
