package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/services"
)

type SettingsHandler struct {
	settings *services.SettingService
	logger   *zap.Logger
}

func NewSettingsHandler(settings *services.SettingService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// GetSettings lists every setting, defaults included
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	all, err := h.settings.All(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    all,
	})
}

// UpdateSetting writes one setting
func (h *SettingsHandler) UpdateSetting(c *gin.Context) {
	var req struct {
		Value *string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	setting, err := h.settings.Set(c.Request.Context(), c.Param("key"), *req.Value, reviewer(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    setting,
	})
}

// GetAIReviewStatus reports whether background AI review is on
func (h *SettingsHandler) GetAIReviewStatus(c *gin.Context) {
	enabled, err := h.settings.AIAutoReviewEnabled(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"enabled": enabled},
	})
}

// ToggleAIReview flips background AI review
func (h *SettingsHandler) ToggleAIReview(c *gin.Context) {
	enabled, err := h.settings.ToggleAIAutoReview(c.Request.Context(), reviewer(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "AI自动审核已关闭"
	if enabled {
		message = "AI自动审核已开启"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    gin.H{"enabled": enabled},
	})
}
