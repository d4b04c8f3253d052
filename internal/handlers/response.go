package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rainbow-register/internal/services"
	"rainbow-register/internal/wechat"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger logs every request with zap and tags it with a request id
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Info("Request handled", fields...)
		}
	}
}

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation *services.ValidationError
		invitation *services.InvitationError
		conflict   *services.StateConflictError
	)

	switch {
	case errors.As(err, &invitation):
		c.JSON(http.StatusBadRequest, gin.H{"error": invitation.Message, "reason": invitation.Reason})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "status": conflict.Current})
	case errors.Is(err, services.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, gin.H{"error": "您已提交过资料"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "资料不存在"})
	case errors.Is(err, wechat.ErrLoginFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "微信登录失败，请重试"})
	case errors.Is(err, services.ErrExternalService):
		logger.Warn("Upstream failure", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "外部服务暂不可用"})
	default:
		logger.Error("Unhandled error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// pageParams reads page and limit query parameters; the services clamp them
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

// idParam parses a positive numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func isNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
