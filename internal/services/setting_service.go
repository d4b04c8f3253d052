package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
)

// SettingAIAutoReview is the toggle for background AI review
const SettingAIAutoReview = "ai_auto_review"

// settingDefaults are returned for keys that were never written
var settingDefaults = map[string]models.SystemSetting{
	SettingAIAutoReview: {
		Key:         SettingAIAutoReview,
		Value:       "false",
		Description: "AI 自动审核开关（提交/修改资料后自动检测缺失字段）",
	},
}

type SettingService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func NewSettingService(repo *repository.Repository, logger *zap.Logger) *SettingService {
	return &SettingService{repo: repo, logger: logger}
}

// Get returns the stored value or the documented default ("" for unknown keys)
func (s *SettingService) Get(ctx context.Context, key string) (string, error) {
	setting, err := s.repo.GetSetting(ctx, key)
	if err == nil {
		return setting.Value, nil
	}
	if !repository.IsNotFound(err) {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return settingDefaults[key].Value, nil
}

// GetBool reads a setting as a boolean
func (s *SettingService) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ParseBool(value), nil
}

// Set writes a setting and records who changed it
func (s *SettingService) Set(ctx context.Context, key, value, updatedBy string) (*models.SystemSetting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &ValidationError{Field: "key", Message: "不能为空"}
	}

	setting := &models.SystemSetting{
		Key:         key,
		Value:       value,
		Description: settingDefaults[key].Description,
		UpdatedBy:   updatedBy,
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.UpsertSetting(ctx, setting); err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, &models.AuditLog{
			Actor:        updatedBy,
			Action:       models.AuditSettingChanged,
			ResourceType: "setting",
			Details:      map[string]interface{}{"key": key, "value": value},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	s.logger.Info("Setting updated", zap.String("key", key), zap.String("value", value), zap.String("by", updatedBy))
	return setting, nil
}

// All returns stored settings merged over the defaults, keyed by name
func (s *SettingService) All(ctx context.Context) (map[string]models.SystemSetting, error) {
	stored, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	out := make(map[string]models.SystemSetting, len(settingDefaults)+len(stored))
	for k, v := range settingDefaults {
		out[k] = v
	}
	for _, row := range stored {
		out[row.Key] = row
	}
	return out, nil
}

// AIAutoReviewEnabled reports the background AI review toggle
func (s *SettingService) AIAutoReviewEnabled(ctx context.Context) (bool, error) {
	return s.GetBool(ctx, SettingAIAutoReview)
}

// ToggleAIAutoReview flips the toggle and returns the new state
func (s *SettingService) ToggleAIAutoReview(ctx context.Context, updatedBy string) (bool, error) {
	current, err := s.AIAutoReviewEnabled(ctx)
	if err != nil {
		return false, err
	}
	next := !current
	if _, err := s.Set(ctx, SettingAIAutoReview, strconv.FormatBool(next), updatedBy); err != nil {
		return false, err
	}
	return next, nil
}

// ParseBool accepts true/1/yes/on in any case; everything else is false
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// EnsureDefaults stores every default setting that has never been written
func (s *SettingService) EnsureDefaults(ctx context.Context, updatedBy string) error {
	for key, def := range settingDefaults {
		_, err := s.repo.GetSetting(ctx, key)
		if err == nil {
			continue
		}
		if !repository.IsNotFound(err) {
			return fmt.Errorf("failed to read setting %s: %w", key, err)
		}
		if _, err := s.Set(ctx, key, def.Value, updatedBy); err != nil {
			return err
		}
	}
	return nil
}
