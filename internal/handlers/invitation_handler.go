package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/auth"
	"rainbow-register/internal/services"
)

// IdentityExchanger turns a client login code into a holder identifier
type IdentityExchanger interface {
	OpenID(ctx context.Context, code string) (string, error)
}

type InvitationHandler struct {
	ledger   *services.InvitationService
	review   *services.ReviewService
	identity IdentityExchanger
	logger   *zap.Logger
}

func NewInvitationHandler(ledger *services.InvitationService, review *services.ReviewService, identity IdentityExchanger, logger *zap.Logger) *InvitationHandler {
	return &InvitationHandler{ledger: ledger, review: review, identity: identity, logger: logger}
}

// Verify checks an invitation code and binds it to the caller's identity
func (h *InvitationHandler) Verify(c *gin.Context) {
	var req struct {
		InvitationCode string `json:"invitation_code" binding:"required"`
		WxCode         string `json:"wx_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// codes are checked before the login exchange
	if _, err := h.ledger.Validate(c.Request.Context(), req.InvitationCode); err != nil {
		respondError(c, h.logger, err)
		return
	}

	openid, err := h.identity.OpenID(c.Request.Context(), req.WxCode)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.ledger.Verify(c.Request.Context(), req.InvitationCode, openid)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "验证成功",
		"openid":      result.OpenID,
		"has_profile": result.HasProfile,
	})
}

// AutoLogin identifies a returning holder by login code alone
func (h *InvitationHandler) AutoLogin(c *gin.Context) {
	var req struct {
		WxCode string `json:"wx_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	openid, err := h.identity.OpenID(c.Request.Context(), req.WxCode)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if _, err := h.review.MyProfile(c.Request.Context(), openid); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "非注册用户"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "自动登录成功",
		"openid":      openid,
		"has_profile": true,
	})
}

// MyCodes lists the caller's own invitation codes
func (h *InvitationHandler) MyCodes(c *gin.Context) {
	openid, exists := auth.GetOpenID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summary, err := h.ledger.CodesForHolder(c.Request.Context(), openid)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "获取成功"
	if summary.Total == 0 {
		message = "资料尚未发布，暂无邀请码"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    summary,
	})
}
