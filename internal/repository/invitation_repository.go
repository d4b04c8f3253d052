package repository

import (
	"context"
	"time"

	"rainbow-register/internal/models"
)

// InvitationFilter narrows an admin listing of codes
type InvitationFilter struct {
	IsUsed        *bool
	CreatedByType models.CreatorType
	CreatedBy     *uint
	Offset        int
	Limit         int
}

// CreateInvitationCode inserts a freshly minted code
func (r *Repository) CreateInvitationCode(ctx context.Context, code *models.InvitationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// InvitationCodeExists checks the ledger for a code value
func (r *Repository) InvitationCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvitationCode{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// GetInvitationCode retrieves a code by value
func (r *Repository) GetInvitationCode(ctx context.Context, code string) (*models.InvitationCode, error) {
	var inv models.InvitationCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// RedeemInvitationCode flips is_used and stamps the redeemer in a single
// conditional update. It returns false when the code was not redeemable at now.
func (r *Repository) RedeemInvitationCode(ctx context.Context, code, openid string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("code = ? AND is_used = ? AND is_active = ? AND (expire_at IS NULL OR expire_at > ?)", code, false, true, now).
		Updates(map[string]interface{}{
			"is_used":        true,
			"used_by_openid": openid,
			"used_at":        now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindRedeemedCodeByOpenID returns the latest code redeemed by an identifier
func (r *Repository) FindRedeemedCodeByOpenID(ctx context.Context, openid string) (*models.InvitationCode, error) {
	var inv models.InvitationCode
	err := r.db.WithContext(ctx).
		Where("used_by_openid = ? AND is_used = ?", openid, true).
		Order("used_at DESC, id DESC").
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvitationCodes returns codes newest first along with the filtered total
func (r *Repository) ListInvitationCodes(ctx context.Context, filter InvitationFilter) ([]models.InvitationCode, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvitationCode{})
	if filter.IsUsed != nil {
		query = query.Where("is_used = ?", *filter.IsUsed)
	}
	if filter.CreatedByType != "" {
		query = query.Where("created_by_type = ?", filter.CreatedByType)
	}
	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var codes []models.InvitationCode
	err := query.Order("create_time DESC, id DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&codes).Error
	return codes, total, err
}

// CodesCreatedByProfile returns all codes minted from a profile's quota
func (r *Repository) CodesCreatedByProfile(ctx context.Context, profileID uint) ([]models.InvitationCode, error) {
	var codes []models.InvitationCode
	err := r.db.WithContext(ctx).
		Where("created_by = ? AND created_by_type = ?", profileID, models.CreatorUser).
		Order("create_time ASC, id ASC").
		Find(&codes).Error
	return codes, err
}

// DisableInvitationCode deactivates an unused code
func (r *Repository) DisableInvitationCode(ctx context.Context, code, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("code = ? AND is_active = ?", code, true).
		Updates(map[string]interface{}{
			"is_active":      false,
			"disable_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountInvitationCodes returns total and used code counts
func (r *Repository) CountInvitationCodes(ctx context.Context) (total, used int64, err error) {
	db := r.db.WithContext(ctx).Model(&models.InvitationCode{})
	if err = db.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).Model(&models.InvitationCode{}).Where("is_used = ?", true).Count(&used).Error
	return total, used, err
}

// ResetInvitationCode returns a used code to the unused state, clearing the
// redeemer and the expiry. It reports false when the code was not used.
func (r *Repository) ResetInvitationCode(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("code = ? AND is_used = ?", code, true).
		Updates(map[string]interface{}{
			"is_used":        false,
			"used_by_openid": "",
			"used_at":        nil,
			"expire_at":      nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
