package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rainbow-register/internal/models"
)

func TestSettingDefaultsAndToggle(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewSettingService(repo, zap.NewNop())
	ctx := context.Background()

	enabled, err := svc.AIAutoReviewEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	next, err := svc.ToggleAIAutoReview(ctx, "ops")
	require.NoError(t, err)
	assert.True(t, next)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "true", all[SettingAIAutoReview].Value)
	assert.Equal(t, "ops", all[SettingAIAutoReview].UpdatedBy)

	next, err = svc.ToggleAIAutoReview(ctx, "ops")
	require.NoError(t, err)
	assert.False(t, next)

	logs, total, err := repo.ListAuditLogs(ctx, "setting", nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, models.AuditSettingChanged, logs[0].Action)
}

func TestSettingSetRequiresKey(t *testing.T) {
	svc := NewSettingService(setupTestDB(t), zap.NewNop())
	_, err := svc.Set(context.Background(), "  ", "x", "ops")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", " 1 ", "yes", "On"} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "false", "0", "off", "maybe"} {
		assert.False(t, ParseBool(v), v)
	}
}

func TestEnsureDefaultsKeepsExistingValues(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewSettingService(repo, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Set(ctx, SettingAIAutoReview, "true", "ops")
	require.NoError(t, err)
	require.NoError(t, svc.EnsureDefaults(ctx, "migrate"))

	enabled, err := svc.AIAutoReviewEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	fresh := NewSettingService(setupTestDB(t), zap.NewNop())
	require.NoError(t, fresh.EnsureDefaults(ctx, "migrate"))
	all, err := fresh.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "migrate", all[SettingAIAutoReview].UpdatedBy)
}
