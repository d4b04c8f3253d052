package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/auth"
	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
	"rainbow-register/internal/services"
)

type AdminHandler struct {
	review *services.ReviewService
	ledger *services.InvitationService
	posts  *services.PostService
	logger *zap.Logger
}

func NewAdminHandler(review *services.ReviewService, ledger *services.InvitationService, posts *services.PostService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{review: review, ledger: ledger, posts: posts, logger: logger}
}

// reviewer is the admin subject recorded on review actions
func reviewer(c *gin.Context) string {
	if admin, ok := auth.GetAdmin(c); ok && admin != "" {
		return admin
	}
	return "admin"
}

// GetPendingProfiles returns pending profiles, oldest first
func (h *AdminHandler) GetPendingProfiles(c *gin.Context) {
	page, limit := pageParams(c)
	profiles, err := h.review.ListPending(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profiles,
		"count":   len(profiles),
	})
}

// GetProfiles pages through profiles, optionally by status
func (h *AdminHandler) GetProfiles(c *gin.Context) {
	page, limit := pageParams(c)
	status := models.ProfileStatus(c.Query("status"))

	profiles, total, err := h.review.ListProfiles(c.Request.Context(), status, page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profiles,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// GetProfileDetail returns one profile
func (h *AdminHandler) GetProfileDetail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	profile, err := h.review.GetProfile(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}

// ApproveProfile approves a pending profile and returns the minted codes
func (h *AdminHandler) ApproveProfile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&req)

	result, err := h.review.Approve(c.Request.Context(), id, reviewer(c), req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "审核通过",
		"data":    result,
	})
}

// RejectProfile rejects a pending profile with a reason
func (h *AdminHandler) RejectProfile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "驳回原因不能为空"})
		return
	}

	if err := h.review.Reject(c.Request.Context(), id, reviewer(c), req.Reason); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "已驳回",
	})
}

// PublishProfile marks an approved profile as published
func (h *AdminHandler) PublishProfile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		PostURL string `json:"post_url"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.review.Publish(c.Request.Context(), id, req.PostURL, reviewer(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "已发布",
	})
}

// PreviewPost renders the announcement post for a profile
func (h *AdminHandler) PreviewPost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	post, err := h.posts.Preview(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    post,
	})
}

// AIReviewProfile runs the completeness review on one pending profile
func (h *AdminHandler) AIReviewProfile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	result, err := h.review.RunAIReview(c.Request.Context(), id, services.TriggerManual)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Message,
		"data":    result,
	})
}

// BatchAIReview runs the completeness review over pending profiles
func (h *AdminHandler) BatchAIReview(c *gin.Context) {
	result, err := h.review.BatchAIReview(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GenerateInvitationCodes mints admin codes
func (h *AdminHandler) GenerateInvitationCodes(c *gin.Context) {
	var req struct {
		Count      int    `json:"count" binding:"required"`
		Notes      string `json:"notes"`
		ExpireDays *int   `json:"expire_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mint := services.MintRequest{
		Count:         req.Count,
		CreatedByType: models.CreatorAdmin,
		Notes:         req.Notes,
	}
	if req.ExpireDays != nil {
		if *req.ExpireDays <= 0 {
			mint.TTL = -1
		} else {
			mint.TTL = time.Duration(*req.ExpireDays) * 24 * time.Hour
		}
	}

	codes, err := h.ledger.Mint(c.Request.Context(), mint)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Admin minted invitation codes", zap.String("admin", reviewer(c)), zap.Int("count", len(codes)))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    codes,
		"count":   len(codes),
	})
}

// GetInvitationCodes lists codes with optional filters
func (h *AdminHandler) GetInvitationCodes(c *gin.Context) {
	page, limit := pageParams(c)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	filter := repository.InvitationFilter{
		CreatedByType: models.CreatorType(c.Query("created_by_type")),
		Offset:        (page - 1) * limit,
		Limit:         limit,
	}
	if v := c.Query("is_used"); v != "" {
		used, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid is_used"})
			return
		}
		filter.IsUsed = &used
	}
	if v := c.Query("created_by"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid created_by"})
			return
		}
		creator := uint(id)
		filter.CreatedBy = &creator
	}

	codes, total, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    codes,
		"total":   total,
	})
}

// DisableInvitationCode deactivates an unused code
func (h *AdminHandler) DisableInvitationCode(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "禁用原因不能为空"})
		return
	}

	if err := h.ledger.Disable(c.Request.Context(), c.Param("code"), req.Reason, reviewer(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "邀请码已禁用",
	})
}

// GetDashboardStats returns registry counters
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.review.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetAuditLogs pages through the audit trail
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	page, limit := pageParams(c)

	var profileID *uint
	if v := c.Query("profile_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile_id"})
			return
		}
		pid := uint(id)
		profileID = &pid
	}

	logs, total, err := h.review.AuditLogs(c.Request.Context(), profileID, page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
		"total":   total,
	})
}
