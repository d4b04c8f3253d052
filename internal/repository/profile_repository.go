package repository

import (
	"context"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rainbow-register/internal/models"
)

// CreateProfile inserts a new profile
func (r *Repository) CreateProfile(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// GetProfileByID retrieves a profile by ID
func (r *Repository) GetProfileByID(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileByOpenID retrieves the profile owned by an identifier
func (r *Repository) GetProfileByOpenID(ctx context.Context, openid string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("openid = ?", openid).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// ProfileExistsByOpenID checks whether an identifier already owns a profile
func (r *Repository) ProfileExistsByOpenID(ctx context.Context, openid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Where("openid = ?", openid).Count(&count).Error
	return count > 0, err
}

// UpdateProfileIfStatus applies updates only while the stored status is one of
// from. It is the compare-and-set every status transition goes through; the
// boolean is false when no row matched.
func (r *Repository) UpdateProfileIfStatus(ctx context.Context, id uint, from []models.ProfileStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteProfileIfStatus hard-deletes a profile only while its status is one of from
func (r *Repository) DeleteProfileIfStatus(ctx context.Context, id uint, from []models.ProfileStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, from).
		Delete(&models.Profile{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListProfiles returns profiles newest first, filtered by status unless status is empty
func (r *Repository) ListProfiles(ctx context.Context, status models.ProfileStatus, offset, limit int) ([]models.Profile, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Profile{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var profiles []models.Profile
	err := query.Order("create_time DESC, id DESC").Offset(offset).Limit(limit).Find(&profiles).Error
	return profiles, total, err
}

// ListPendingProfiles returns the oldest pending profiles first
func (r *Repository) ListPendingProfiles(ctx context.Context, offset, limit int) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ProfileStatusPending).
		Order("create_time ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

// AllProfilesByCreation loads every profile ordered by creation time
func (r *Repository) AllProfilesByCreation(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).Order("create_time ASC, id ASC").Find(&profiles).Error
	return profiles, err
}

// ProfilesWithLocation loads profiles that have a work location
func (r *Repository) ProfilesWithLocation(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).
		Where("work_location IS NOT NULL AND work_location <> ''").
		Order("create_time ASC, id ASC").
		Find(&profiles).Error
	return profiles, err
}

// InviteesOf returns the profiles directly invited by inviterID
func (r *Repository) InviteesOf(ctx context.Context, inviterID uint) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).
		Where("invited_by = ? AND id <> ?", inviterID, inviterID).
		Order("create_time ASC, id ASC").
		Find(&profiles).Error
	return profiles, err
}

// CountProfilesByStatus returns the number of profiles per status
func (r *Repository) CountProfilesByStatus(ctx context.Context) (map[models.ProfileStatus]int64, error) {
	var rows []struct {
		Status models.ProfileStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.ProfileStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// NextSequence increments and returns the named counter. Call it inside a
// transaction so the increment and the read see the same row version.
func (r *Repository) NextSequence(ctx context.Context, name string) (int64, error) {
	db := r.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Sequence{Name: name}).Error; err != nil {
		return 0, err
	}

	if err := db.Model(&models.Sequence{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + 1")).Error; err != nil {
		return 0, err
	}

	var seq models.Sequence
	if err := db.Where("name = ?", name).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}

// EnsureSequenceAtLeast raises the named counter to floor if it is lower
func (r *Repository) EnsureSequenceAtLeast(ctx context.Context, name string, floor int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Sequence{Name: name}).Error; err != nil {
		return err
	}
	return db.Model(&models.Sequence{}).
		Where("name = ? AND value < ?", name, floor).
		UpdateColumn("value", floor).Error
}

// MaxSerialNumber returns the highest numeric serial currently stored
func (r *Repository) MaxSerialNumber(ctx context.Context) (int64, error) {
	var serials []string
	if err := r.db.WithContext(ctx).Model(&models.Profile{}).Pluck("serial_number", &serials).Error; err != nil {
		return 0, err
	}

	var max int64
	for _, s := range serials {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

// SetProfilePostURL records where the generated post for a profile lives
func (r *Repository) SetProfilePostURL(ctx context.Context, id uint, url string) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		UpdateColumn("post_url", url).Error
}
