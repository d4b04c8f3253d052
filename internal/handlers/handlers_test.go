package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rainbow-register/internal/auth"
	"rainbow-register/internal/database"
	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
	"rainbow-register/internal/services"
	"rainbow-register/internal/wechat"
)

// fakeIdentity maps login codes to openids; unknown codes fail
type fakeIdentity map[string]string

func (f fakeIdentity) OpenID(ctx context.Context, code string) (string, error) {
	if openid, ok := f[code]; ok {
		return openid, nil
	}
	return "", fmt.Errorf("%w: invalid code", wechat.ErrLoginFailed)
}

type nopPostWriter struct{}

func (nopPostWriter) Save(ctx context.Context, serial string, content []byte) (string, error) {
	return "/uploads/posts/" + serial + "/post.md", nil
}

type testServer struct {
	router *gin.Engine
	repo   *repository.Repository
	ledger *services.InvitationService
	token  string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	log := zap.NewNop()
	require.NoError(t, database.AutoMigrate(db, log))
	repo := repository.NewRepository(db)

	ledger := services.NewInvitationService(repo, log, services.InvitationOptions{CodeLength: 6, Quota: 2})
	settings := services.NewSettingService(repo, log)
	analyzer := services.NewCompletionAnalyzer(nil, log)
	review := services.NewReviewService(repo, ledger, analyzer, settings, log, services.ReviewOptions{})
	posts := services.NewPostService(repo, nopPostWriter{}, "", log)

	identity := fakeIdentity{"wx-a": "o-a", "wx-b": "o-b"}
	router := gin.New()
	RegisterRoutes(router, &Handlers{
		Invitation: NewInvitationHandler(ledger, review, identity, log),
		Profile:    NewProfileHandler(review, log),
		Admin:      NewAdminHandler(review, ledger, posts, log),
		Network:    NewNetworkHandler(services.NewNetworkService(repo, log), services.NewGeoService(repo, log), log),
		Settings:   NewSettingsHandler(settings, log),
	}, log)

	auth.InitJWT("handler-test-secret")
	token, err := auth.GenerateToken("ops", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	return &testServer{router: router, repo: repo, ledger: ledger, token: token}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) mint(t *testing.T) string {
	t.Helper()
	codes, err := s.ledger.Mint(context.Background(), services.MintRequest{Count: 1})
	require.NoError(t, err)
	return codes[0].Code
}

func submission(code string) map[string]interface{} {
	return map[string]interface{}{
		"invitation_code":   code,
		"name":              "小林",
		"gender":            "男",
		"age":               28,
		"height":            178,
		"weight":            70,
		"work_location":     "上海浦东",
		"marital_status":    "单身",
		"health_condition":  "健康",
		"housing_status":    "租房",
		"dating_purpose":    "寻找长期伴侣",
		"want_children":     "可以考虑",
		"coming_out_status": "半出柜",
		"expectation":       map[string]string{"age_range": "25-35"},
	}
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "missing data in %v", body)
	return d
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestVerifyInvitation(t *testing.T) {
	s := setupServer(t)
	invCode := s.mint(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/invitation/verify", "", gin.H{"invitation_code": strings.ToLower(invCode), "wx_code": "wx-a"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "o-a", body["openid"])
	assert.Equal(t, false, body["has_profile"])

	code, body = s.do(t, http.MethodPost, "/api/v1/invitation/verify", "", gin.H{"invitation_code": invCode, "wx_code": "wx-b"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "邀请码已被使用", body["error"])
	assert.Equal(t, "used", body["reason"])

	code, body = s.do(t, http.MethodPost, "/api/v1/invitation/verify", "", gin.H{"invitation_code": "ZZZZ22", "wx_code": "wx-b"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "not_found", body["reason"])

	code, body = s.do(t, http.MethodPost, "/api/v1/invitation/verify", "", gin.H{"invitation_code": s.mint(t), "wx_code": "bogus"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "微信登录失败，请重试", body["error"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/invitation/verify", "", gin.H{"wx_code": "wx-a"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSubmitAndAutoLogin(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/invitation/auto-login", "", gin.H{"wx_code": "wx-a"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/profile/submit", "", submission(s.mint(t)))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", submission(s.mint(t)))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "001", data(t, body)["serial_number"])
	assert.Equal(t, "pending", data(t, body)["status"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", submission(s.mint(t)))
	assert.Equal(t, http.StatusConflict, code)

	code, body = s.do(t, http.MethodPost, "/api/v1/invitation/auto-login", "", gin.H{"wx_code": "wx-a"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_profile"])

	code, body = s.do(t, http.MethodGet, "/api/v1/profile/my", "o-a", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "小林", data(t, body)["name"])

	code, _ = s.do(t, http.MethodGet, "/api/v1/profile/my", "o-nobody", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSubmitValidationErrors(t *testing.T) {
	s := setupServer(t)
	payload := submission(s.mint(t))
	payload["age"] = 17

	code, body := s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", payload)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "age", body["field"])

	code, body = s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", submission(""))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing", body["reason"])
}

func TestAdminRequiresToken(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, http.MethodGet, "/api/v1/admin/dashboard/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/dashboard/stats", "o-a", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	holderToken, err := auth.GenerateToken("someone", "holder", time.Hour)
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/dashboard/stats", holderToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminReviewFlow(t *testing.T) {
	s := setupServer(t)
	_, body := s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", submission(s.mint(t)))
	id := uint(data(t, body)["profile_id"].(float64))

	code, body := s.do(t, http.MethodGet, "/api/v1/admin/profiles/pending", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/profile/%d/reject", id), s.token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/profile/abc/approve", s.token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/profile/%d/approve", id), s.token, gin.H{"notes": "ok"})
	require.Equal(t, http.StatusOK, code, body)
	codes := data(t, body)["codes"].([]interface{})
	assert.Len(t, codes, 2)

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/profile/%d/approve", id), s.token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "approved", body["status"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/profile/999/approve", s.token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/invitation/my-codes", "o-a", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), data(t, body)["remaining"])

	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/profile/%d/post", id), s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "特伴№001 上海浦东", data(t, body)["title"])

	code, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/profile/%d/publish", id), s.token, gin.H{"post_url": "https://example.com/1"})
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/admin/logs?profile_id="+fmt.Sprint(id), s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["total"])

	code, body = s.do(t, http.MethodGet, "/api/v1/admin/dashboard/stats", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), data(t, body)["total_profiles"])
}

func TestAdminAIReviewWithoutGateway(t *testing.T) {
	s := setupServer(t)
	payload := submission(s.mint(t))
	delete(payload, "health_condition")
	payload["lifestyle"] = "身体不错"
	_, body := s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", payload)
	id := uint(data(t, body)["profile_id"].(float64))

	code, body := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/profile/%d/ai-review", id), s.token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "error", data(t, body)["action"])

	p, err := s.repo.GetProfileByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ProfileStatusPending, p.Status)
	assert.Equal(t, services.NoteAIError, p.ReviewNotes)

	code, body = s.do(t, http.MethodPost, "/api/v1/admin/ai-review/batch", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), data(t, body)["errors"])
}

func TestAdminInvitationManagement(t *testing.T) {
	s := setupServer(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/admin/invitation/generate", s.token, gin.H{"count": 3, "notes": "春季", "expire_days": 0})
	require.Equal(t, http.StatusCreated, code, body)
	minted := body["data"].([]interface{})
	require.Len(t, minted, 3)
	first := minted[0].(map[string]interface{})
	assert.Nil(t, first["expire_at"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/invitation/generate", s.token, gin.H{"count": 101})
	assert.Equal(t, http.StatusBadRequest, code)

	target := first["code"].(string)
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/invitation/disable/"+target, s.token, gin.H{"reason": "作废"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/invitation/disable/"+target, s.token, gin.H{"reason": "作废"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/invitation/disable/NOPE22", s.token, gin.H{"reason": "作废"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/admin/invitation/list?is_used=false", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["total"])

	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/invitation/list?is_used=maybe", s.token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNetworkAndMapViews(t *testing.T) {
	s := setupServer(t)
	_, body := s.do(t, http.MethodPost, "/api/v1/profile/submit", "o-a", submission(s.mint(t)))
	id := uint(data(t, body)["profile_id"].(float64))

	code, body := s.do(t, http.MethodGet, "/api/v1/admin/network/tree", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	stats := data(t, body)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_users"])

	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/network/user/%d", id), s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, data(t, body)["inviter"])

	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/network/user/77", s.token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/admin/map/users", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	cities := data(t, body)["cities"].([]interface{})
	require.Len(t, cities, 1)
	assert.Equal(t, "上海", cities[0].(map[string]interface{})["city"])
}

func TestSettingsRoutes(t *testing.T) {
	s := setupServer(t)

	code, body := s.do(t, http.MethodGet, "/api/v1/admin/settings/ai-review/status", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, data(t, body)["enabled"])

	code, body = s.do(t, http.MethodPost, "/api/v1/admin/settings/ai-review/toggle", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, data(t, body)["enabled"])

	code, _ = s.do(t, http.MethodPut, "/api/v1/admin/settings/"+services.SettingAIAutoReview, s.token, gin.H{"value": "false"})
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/admin/settings", s.token, nil)
	require.Equal(t, http.StatusOK, code)
	setting := data(t, body)[services.SettingAIAutoReview].(map[string]interface{})
	assert.Equal(t, "false", setting["value"])
	assert.Equal(t, "ops", setting["updated_by"])

	code, _ = s.do(t, http.MethodPut, "/api/v1/admin/settings/x", s.token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}
