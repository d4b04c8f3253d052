package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rainbow-register/internal/database"
	"rainbow-register/internal/extraction"
	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
)

// setupTestDB opens a private in-memory database per test. One connection
// keeps every statement on the same memory store.
func setupTestDB(t testing.TB) *repository.Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db, zap.NewNop()))
	return repository.NewRepository(db)
}

// fakeExtractor returns a canned result and counts calls
type fakeExtractor struct {
	mu     sync.Mutex
	calls  int
	last   extraction.Request
	result *extraction.Result
	err    error
	// hook runs before returning, e.g. to simulate an admin racing the review
	hook func()
}

func (f *fakeExtractor) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	return f.result, f.err
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strPtr(s string) *string { return &s }

// recordingScheduler captures scheduled reviews instead of running them
type recordingScheduler struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recordingScheduler) Schedule(profileID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, profileID)
	return true
}

func (r *recordingScheduler) Scheduled() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.ids...)
}

type fakePhotos struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakePhotos) DeletePhotos(ctx context.Context, openid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, openid)
	return f.err
}

type testEnv struct {
	repo      *repository.Repository
	ledger    *InvitationService
	settings  *SettingService
	extractor *fakeExtractor
	review    *ReviewService
	scheduler *recordingScheduler
	photos    *fakePhotos
}

func newTestEnv(t testing.TB, opts ReviewOptions) *testEnv {
	t.Helper()
	repo := setupTestDB(t)
	log := zap.NewNop()

	ledger := NewInvitationService(repo, log, InvitationOptions{
		CodeLength: 6,
		DefaultTTL: 7 * 24 * time.Hour,
		Quota:      2,
	})
	settings := NewSettingService(repo, log)
	extractor := &fakeExtractor{}
	analyzer := NewCompletionAnalyzer(extractor, log)
	review := NewReviewService(repo, ledger, analyzer, settings, log, opts)

	scheduler := &recordingScheduler{}
	photos := &fakePhotos{}
	review.SetScheduler(scheduler)
	review.SetPhotoCleaner(photos)

	return &testEnv{
		repo:      repo,
		ledger:    ledger,
		settings:  settings,
		extractor: extractor,
		review:    review,
		scheduler: scheduler,
		photos:    photos,
	}
}

// mintCode creates one admin code and returns it
func (e *testEnv) mintCode(t testing.TB) string {
	t.Helper()
	codes, err := e.ledger.Mint(context.Background(), MintRequest{Count: 1, CreatedByType: models.CreatorAdmin})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	return codes[0].Code
}

// completeInput is a submission with every required field filled in
func completeInput(code string) *ProfileInput {
	return &ProfileInput{
		InvitationCode:  code,
		Name:            "小林",
		Gender:          "男",
		Age:             28,
		Height:          178,
		Weight:          70,
		WorkLocation:    "上海浦东",
		MaritalStatus:   "单身",
		HealthCondition: "健康",
		HousingStatus:   "租房",
		DatingPurpose:   "寻找长期伴侣",
		WantChildren:    "可以考虑",
		ComingOutStatus: "半出柜",
		Expectation:     &models.Expectation{AgeRange: "25-35", Personality: "温和"},
		Hobbies:         []string{"健身", "电影"},
	}
}

// submit redeems a fresh admin code and submits in for openid
func (e *testEnv) submit(t testing.TB, openid string, in *ProfileInput) *SubmitResult {
	t.Helper()
	if in.InvitationCode == "" {
		in.InvitationCode = e.mintCode(t)
	}
	res, err := e.review.Submit(context.Background(), openid, in)
	require.NoError(t, err)
	return res
}

// insertProfile writes a profile row directly, bypassing the pipeline
func insertProfile(t testing.TB, repo *repository.Repository, p models.Profile) *models.Profile {
	t.Helper()
	if p.OpenID == "" {
		p.OpenID = uuid.NewString()
	}
	if p.SerialNumber == "" {
		p.SerialNumber = uuid.NewString()[:8]
	}
	if p.Status == "" {
		p.Status = models.ProfileStatusPending
	}
	if p.Name == "" {
		p.Name = "用户"
	}
	if p.Gender == "" {
		p.Gender = "男"
	}
	require.NoError(t, repo.CreateProfile(context.Background(), &p))
	return &p
}
