package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"rainbow-register/internal/models"
)

type memoryPostWriter struct {
	saved map[string][]byte
	err   error
}

func (w *memoryPostWriter) Save(ctx context.Context, serial string, content []byte) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	if w.saved == nil {
		w.saved = map[string][]byte{}
	}
	w.saved[serial] = content
	return "/uploads/posts/" + serial + "/post.md", nil
}

func postProfile() *models.Profile {
	return &models.Profile{
		SerialNumber:    "007",
		Name:            "小林",
		Gender:          "男",
		Age:             28,
		Height:          178,
		Weight:          70,
		BodyType:        "匀称",
		MaritalStatus:   "单身",
		Hometown:        "湖南",
		WorkLocation:    "上海 浦东",
		Industry:        "互联网",
		HealthCondition: "健康",
		MBTI:            "INFP",
		DatingPurpose:   "寻找长期伴侣",
		Hobbies:         datatypes.JSONSlice[string]{"健身", "电影"},
		Photos:          datatypes.JSONSlice[string]{"/uploads/photos/o-1/a.jpg"},
		Expectation: datatypes.NewJSONType(models.Expectation{
			AgeRange:   "25-35",
			Appearance: "短发干净",
		}),
		Status: models.ProfileStatusApproved,
	}
}

func TestRenderPost(t *testing.T) {
	post := RenderPost(postProfile(), "rainbow_admin")

	assert.Equal(t, "特伴№007 上海 爱运动 喜短发", post.Title)
	lines := strings.Split(post.Content, "\n")
	assert.Equal(t, "男 28/178/70kg 单身 型号匀称", lines[0])
	assert.Equal(t, "湖南人 上海 浦东工作，互联网，健康", lines[1])
	assert.Contains(t, post.Content, "交友目的：寻找长期伴侣")
	assert.Contains(t, post.Content, "接受25-35")
	assert.True(t, strings.HasSuffix(post.Content, "管理员V：rainbow_admin"))
	assert.Equal(t, []string{"/uploads/photos/o-1/a.jpg"}, post.Photos)
}

func TestRenderPostSparseProfile(t *testing.T) {
	post := RenderPost(&models.Profile{SerialNumber: "010", Gender: "男"}, "")
	assert.Equal(t, "特伴№010", post.Title)
	assert.NotContains(t, post.Content, "管理员V")
	assert.NotNil(t, post.Photos)
}

func TestGeneratePostStoresAndRecordsURL(t *testing.T) {
	repo := setupTestDB(t)
	writer := &memoryPostWriter{}
	svc := NewPostService(repo, writer, "", zap.NewNop())
	ctx := context.Background()

	p := postProfile()
	p.OpenID = "o-post"
	require.NoError(t, repo.CreateProfile(ctx, p))

	require.NoError(t, svc.Generate(ctx, p))
	assert.Contains(t, string(writer.saved["007"]), "![](/uploads/photos/o-1/a.jpg)")

	preview, err := svc.Preview(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/posts/007/post.md", preview.PostURL)

	_, err = svc.Preview(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGeneratePostRequiresApproval(t *testing.T) {
	repo := setupTestDB(t)
	writer := &memoryPostWriter{}
	svc := NewPostService(repo, writer, "", zap.NewNop())

	p := postProfile()
	p.Status = models.ProfileStatusPending
	assert.ErrorIs(t, svc.Generate(context.Background(), p), ErrStateConflict)
	assert.Empty(t, writer.saved)

	p.Status = models.ProfileStatusApproved
	writer.err = errors.New("disk full")
	assert.Error(t, svc.Generate(context.Background(), p))
}
