package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerateAndValidateToken(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestValidateTokenRejectsExpiredAndForeign(t *testing.T) {
	InitJWT("test-secret")

	expired, err := GenerateToken("ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired)
	assert.Error(t, err)

	InitJWT("other-secret")
	foreign, err := GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	InitJWT("test-secret")
	_, err = ValidateToken(foreign)
	assert.Error(t, err)
}

func adminRouter() *gin.Engine {
	r := gin.New()
	r.GET("/admin", AdminMiddleware(zap.NewNop()), func(c *gin.Context) {
		admin, _ := GetAdmin(c)
		c.String(http.StatusOK, admin)
	})
	return r
}

func TestAdminMiddleware(t *testing.T) {
	InitJWT("test-secret")
	r := adminRouter()

	adminToken, _ := GenerateToken("ops", RoleAdmin, time.Hour)
	userToken, _ := GenerateToken("someone", "user", time.Hour)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"non-admin role", "Bearer " + userToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}

func TestHolderMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", HolderMiddleware(), func(c *gin.Context) {
		openid, _ := GetOpenID(c)
		c.String(http.StatusOK, openid)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer dev_openid_abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev_openid_abc", w.Body.String())
}
