package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/auth"
)

// Handlers bundles every route group's handler
type Handlers struct {
	Invitation *InvitationHandler
	Profile    *ProfileHandler
	Admin      *AdminHandler
	Network    *NetworkHandler
	Settings   *SettingsHandler
}

// RegisterRoutes mounts the API under /api/v1
func RegisterRoutes(router *gin.Engine, h *Handlers, logger *zap.Logger) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")

	// Public invitation routes
	invitation := api.Group("/invitation")
	{
		invitation.POST("/verify", h.Invitation.Verify)
		invitation.POST("/auto-login", h.Invitation.AutoLogin)
	}

	// Holder routes (bearer openid)
	holder := api.Group("")
	holder.Use(auth.HolderMiddleware())
	{
		holder.GET("/invitation/my-codes", h.Invitation.MyCodes)

		holder.POST("/profile/submit", h.Profile.Submit)
		holder.GET("/profile/my", h.Profile.My)
		holder.PUT("/profile/update", h.Profile.Update)
		holder.POST("/profile/archive", h.Profile.Archive)
		holder.DELETE("/profile/delete", h.Profile.Delete)
	}

	// Admin routes (JWT with admin role)
	admin := api.Group("/admin")
	admin.Use(auth.AdminMiddleware(logger))
	{
		admin.GET("/profiles/pending", h.Admin.GetPendingProfiles)
		admin.GET("/profiles/list", h.Admin.GetProfiles)
		admin.GET("/profile/:id/detail", h.Admin.GetProfileDetail)
		admin.GET("/profile/:id/post", h.Admin.PreviewPost)
		admin.POST("/profile/:id/approve", h.Admin.ApproveProfile)
		admin.POST("/profile/:id/reject", h.Admin.RejectProfile)
		admin.POST("/profile/:id/publish", h.Admin.PublishProfile)
		admin.POST("/profile/:id/ai-review", h.Admin.AIReviewProfile)
		admin.POST("/ai-review/batch", h.Admin.BatchAIReview)

		admin.POST("/invitation/generate", h.Admin.GenerateInvitationCodes)
		admin.GET("/invitation/list", h.Admin.GetInvitationCodes)
		admin.POST("/invitation/disable/:code", h.Admin.DisableInvitationCode)

		admin.GET("/dashboard/stats", h.Admin.GetDashboardStats)
		admin.GET("/logs", h.Admin.GetAuditLogs)

		admin.GET("/network/tree", h.Network.GetTree)
		admin.GET("/network/user/:id", h.Network.GetUserNetwork)
		admin.GET("/map/users", h.Network.GetMapUsers)

		admin.GET("/settings", h.Settings.GetSettings)
		admin.PUT("/settings/:key", h.Settings.UpdateSetting)
		admin.GET("/settings/ai-review/status", h.Settings.GetAIReviewStatus)
		admin.POST("/settings/ai-review/toggle", h.Settings.ToggleAIReview)
	}
}
