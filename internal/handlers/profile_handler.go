package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/auth"
	"rainbow-register/internal/services"
)

type ProfileHandler struct {
	review *services.ReviewService
	logger *zap.Logger
}

func NewProfileHandler(review *services.ReviewService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{review: review, logger: logger}
}

// Submit creates the caller's profile
func (h *ProfileHandler) Submit(c *gin.Context) {
	openid, exists := auth.GetOpenID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req services.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.review.Submit(c.Request.Context(), openid, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "提交成功，请等待审核",
		"data":    result,
	})
}

// My returns the caller's profile
func (h *ProfileHandler) My(c *gin.Context) {
	openid, exists := auth.GetOpenID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	profile, err := h.review.MyProfile(c.Request.Context(), openid)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}

// Update replaces the caller's editable fields and resubmits for review
func (h *ProfileHandler) Update(c *gin.Context) {
	openid, exists := auth.GetOpenID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req services.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.review.Update(c.Request.Context(), openid, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "修改成功，请等待重新审核",
		"data":    result,
	})
}

// Archive hides the caller's approved profile
func (h *ProfileHandler) Archive(c *gin.Context) {
	openid, exists := auth.GetOpenID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.review.Archive(c.Request.Context(), openid); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "资料已下架",
	})
}

// Delete removes the caller's profile
func (h *ProfileHandler) Delete(c *gin.Context) {
	openid, exists := auth.GetOpenID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.review.Delete(c.Request.Context(), openid); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "资料已删除",
	})
}
