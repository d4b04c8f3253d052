package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxOpenID = "openid"
	ctxAdmin  = "admin"
)

// bearerToken extracts the token from a "Bearer <token>" header
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// HolderMiddleware reads the holder identifier from the bearer header. The
// identifier is the openid issued by the login exchange.
func HolderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		openid, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			c.Abort()
			return
		}

		c.Set(ctxOpenID, openid)
		c.Next()
	}
}

// AdminMiddleware validates operator JWTs and requires the admin role
func AdminMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			logger.Debug("Admin token rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		if claims.Role != RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin role required",
			})
			c.Abort()
			return
		}

		c.Set(ctxAdmin, claims.Subject)
		c.Next()
	}
}

// GetOpenID retrieves the holder identifier from the context
func GetOpenID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxOpenID)
	if !exists {
		return "", false
	}
	openid, ok := v.(string)
	return openid, ok
}

// GetAdmin retrieves the admin subject from the context
func GetAdmin(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxAdmin)
	if !exists {
		return "", false
	}
	admin, ok := v.(string)
	return admin, ok
}
