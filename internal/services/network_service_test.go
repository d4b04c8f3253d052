package services

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rainbow-register/internal/models"
)

func statuses(approved, rejected, pending int) []models.ProfileStatus {
	out := make([]models.ProfileStatus, 0, approved+rejected+pending)
	for i := 0; i < approved; i++ {
		out = append(out, models.ProfileStatusApproved)
	}
	for i := 0; i < rejected; i++ {
		out = append(out, models.ProfileStatusRejected)
	}
	for i := 0; i < pending; i++ {
		out = append(out, models.ProfileStatusPending)
	}
	return out
}

func TestComputeQualityGrades(t *testing.T) {
	tests := []struct {
		name                        string
		approved, rejected, pending int
		score, label                string
		rate                        float64
	}{
		{"exactly eighty", 4, 1, 0, "A", "优质", 80.0},
		{"just below eighty", 799, 201, 0, "B", "良好", 79.9},
		{"exactly sixty", 3, 2, 0, "B", "良好", 60.0},
		{"two of three", 2, 1, 0, "B", "良好", 66.7},
		{"forty", 2, 3, 0, "C", "一般", 40.0},
		{"poor", 1, 4, 3, "D", "较差", 20.0},
		{"all approved", 5, 0, 1, "A", "优质", 100.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ComputeQuality(statuses(tt.approved, tt.rejected, tt.pending))
			assert.Equal(t, tt.score, q.QualityScore)
			assert.Equal(t, tt.label, q.QualityLabel)
			require.NotNil(t, q.ApprovalRate)
			assert.InDelta(t, tt.rate, *q.ApprovalRate, 1e-9)
			assert.Equal(t, tt.approved+tt.rejected+tt.pending, q.InvitedCount)
			assert.Equal(t, tt.pending, q.PendingCount)
		})
	}
}

func TestComputeQualityUndefinedRate(t *testing.T) {
	q := ComputeQuality(nil)
	assert.Equal(t, "-", q.QualityScore)
	assert.Equal(t, "无邀请", q.QualityLabel)
	assert.Nil(t, q.ApprovalRate)

	q = ComputeQuality(statuses(0, 0, 3))
	assert.Equal(t, "-", q.QualityScore)
	assert.Equal(t, "待评估", q.QualityLabel)
	assert.Nil(t, q.ApprovalRate)
	assert.Equal(t, 3, q.InvitedCount)
}

func TestPublishedCountsAsApprovedButArchivedDoesNot(t *testing.T) {
	q := ComputeQuality([]models.ProfileStatus{
		models.ProfileStatusPublished,
		models.ProfileStatusArchived,
		models.ProfileStatusRejected,
	})
	assert.Equal(t, 3, q.InvitedCount)
	assert.Equal(t, 1, q.ApprovedCount)
	assert.Equal(t, 1, q.RejectedCount)
	require.NotNil(t, q.ApprovalRate)
	assert.InDelta(t, 50.0, *q.ApprovalRate, 1e-9)
	assert.Equal(t, "C", q.QualityScore)
}

func TestGradeRoundsBeforeComparing(t *testing.T) {
	// 79.95 rounds half up to 80.0
	rate := decimal.RequireFromString("79.95").Round(1)
	score, _ := Grade(rate)
	assert.Equal(t, "A", score)

	score, _ = Grade(decimal.RequireFromString("79.9"))
	assert.Equal(t, "B", score)
	score, _ = Grade(decimal.RequireFromString("39.9"))
	assert.Equal(t, "D", score)
}

func uptr(v uint) *uint { return &v }

func profileRow(id uint, invitedBy *uint, status models.ProfileStatus) models.Profile {
	return models.Profile{
		ID:           id,
		Name:         "用户",
		SerialNumber: models.FormatSerial(int64(id)),
		Status:       status,
		InvitedBy:    invitedBy,
		CreateTime:   time.Date(2025, 3, 1, 0, 0, int(id), 0, time.UTC),
	}
}

// A invites B, C, D (approved, approved, rejected); B invites E (pending).
func TestBuildNetworkScenario(t *testing.T) {
	profiles := []models.Profile{
		profileRow(1, nil, models.ProfileStatusApproved),
		profileRow(2, uptr(1), models.ProfileStatusApproved),
		profileRow(3, uptr(1), models.ProfileStatusApproved),
		profileRow(4, uptr(1), models.ProfileStatusRejected),
		profileRow(5, uptr(2), models.ProfileStatusPending),
	}

	tree := BuildNetwork(profiles)
	require.Len(t, tree.Tree, 1)

	a := tree.Tree[0]
	assert.Equal(t, uint(1), a.ID)
	assert.Equal(t, "2025-03-01", a.CreateTime)
	assert.Equal(t, 0, a.Depth)
	assert.Equal(t, 4, a.DescendantCount)
	assert.Equal(t, 3, a.Quality.InvitedCount)
	assert.Equal(t, "B", a.Quality.QualityScore)
	require.NotNil(t, a.Quality.ApprovalRate)
	assert.InDelta(t, 66.7, *a.Quality.ApprovalRate, 1e-9)

	require.Len(t, a.Children, 3)
	b := a.Children[0]
	assert.Equal(t, uint(2), b.ID)
	assert.Equal(t, 1, b.Depth)
	assert.Equal(t, 1, b.DescendantCount)
	assert.Equal(t, "-", b.Quality.QualityScore)
	assert.Equal(t, "待评估", b.Quality.QualityLabel)
	assert.Equal(t, 2, b.Children[0].Depth)
	assert.Equal(t, "无邀请", a.Children[2].Quality.QualityLabel)

	stats := tree.Stats
	assert.Equal(t, 5, stats.TotalUsers)
	assert.Equal(t, 1, stats.TotalRoots)
	assert.Equal(t, 2, stats.TotalInviters)
	assert.Equal(t, 2, stats.MaxDepth)
	assert.Equal(t, 3, stats.TotalApproved)
	assert.Equal(t, 1, stats.TotalRejected)
	assert.Equal(t, 1, stats.TotalPending)
	assert.InDelta(t, 75.0, stats.OverallApprovalRate, 1e-9)
	assert.Equal(t, 3, stats.StatusCounts[models.ProfileStatusApproved])

	require.Len(t, stats.TopInviters, 2)
	assert.Equal(t, uint(1), stats.TopInviters[0].ID)
	assert.Equal(t, uint(2), stats.TopInviters[1].ID)
	assert.Empty(t, stats.WorstInviters)
}

func TestBuildNetworkOrphansAndSelfReferencesAreRoots(t *testing.T) {
	tree := BuildNetwork([]models.Profile{
		profileRow(1, uptr(99), models.ProfileStatusApproved),
		profileRow(2, uptr(2), models.ProfileStatusPending),
		profileRow(3, uptr(1), models.ProfileStatusPending),
	})

	require.Len(t, tree.Tree, 2)
	assert.Equal(t, uint(1), tree.Tree[0].ID)
	assert.Equal(t, uint(2), tree.Tree[1].ID)
	assert.Equal(t, 1, tree.Tree[0].DescendantCount)
	assert.Equal(t, 0, tree.Tree[1].Quality.InvitedCount)
}

func TestBuildNetworkBreaksCycles(t *testing.T) {
	tree := BuildNetwork([]models.Profile{
		profileRow(1, uptr(3), models.ProfileStatusApproved),
		profileRow(2, uptr(1), models.ProfileStatusApproved),
		profileRow(3, uptr(2), models.ProfileStatusApproved),
		profileRow(4, nil, models.ProfileStatusPending),
	})

	assert.Equal(t, 4, tree.Stats.TotalUsers)
	require.Len(t, tree.Tree, 2)

	seen := map[uint]int{}
	var visit func(n *NetworkNode)
	visit = func(n *NetworkNode) {
		seen[n.ID]++
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, root := range tree.Tree {
		visit(root)
	}
	assert.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, "profile %d appears %d times", id, n)
	}
	assert.Equal(t, 2, tree.Stats.MaxDepth)
}

func TestWorstInvitersNeedThree(t *testing.T) {
	// inviters 1, 2, 3 with rates 100, 50, 0; plus an unreviewed inviter 4
	profiles := []models.Profile{
		profileRow(1, nil, models.ProfileStatusApproved),
		profileRow(2, nil, models.ProfileStatusApproved),
		profileRow(3, nil, models.ProfileStatusApproved),
		profileRow(4, nil, models.ProfileStatusApproved),
		profileRow(10, uptr(1), models.ProfileStatusApproved),
		profileRow(11, uptr(2), models.ProfileStatusApproved),
		profileRow(12, uptr(2), models.ProfileStatusRejected),
		profileRow(13, uptr(3), models.ProfileStatusRejected),
		profileRow(14, uptr(4), models.ProfileStatusPending),
	}

	stats := BuildNetwork(profiles).Stats
	assert.Equal(t, 4, stats.TotalInviters)

	var top []uint
	for _, r := range stats.TopInviters {
		top = append(top, r.ID)
	}
	// the unreviewed inviter sorts as zero and keeps creation order after 3
	assert.Equal(t, []uint{1, 2, 3, 4}, top)

	var worst []uint
	for _, r := range stats.WorstInviters {
		worst = append(worst, r.ID)
	}
	assert.Equal(t, []uint{4, 3, 2}, worst)
}

// randomForest builds n profiles where each one either starts a new tree
// or is invited by an earlier profile.
func randomForest(rng *rand.Rand, n int) []models.Profile {
	all := []models.ProfileStatus{
		models.ProfileStatusPending,
		models.ProfileStatusApproved,
		models.ProfileStatusRejected,
		models.ProfileStatusPublished,
	}
	profiles := make([]models.Profile, 0, n)
	for i := 1; i <= n; i++ {
		var inviter *uint
		if i > 1 && rng.Intn(5) > 0 {
			inviter = uptr(uint(rng.Intn(i-1) + 1))
		}
		profiles = append(profiles, profileRow(uint(i), inviter, all[rng.Intn(len(all))]))
	}
	return profiles
}

func TestDescendantCountMatchesSubtreeSize(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		profiles := randomForest(rng, 1+rng.Intn(80))
		tree := BuildNetwork(profiles)

		total := 0
		var size func(n *NetworkNode, depth int) int
		size = func(n *NetworkNode, depth int) int {
			assert.Equal(t, depth, n.Depth)
			count := 0
			for _, c := range n.Children {
				count += size(c, depth+1)
			}
			assert.Equal(t, count, n.DescendantCount, "profile %d", n.ID)
			assert.Equal(t, len(n.Children), n.Quality.InvitedCount)
			return count + 1
		}
		for _, root := range tree.Tree {
			total += size(root, 0)
		}
		assert.Equal(t, len(profiles), total)
		assert.Equal(t, len(tree.Tree), tree.Stats.TotalRoots)
	}
}

func TestNetworkServiceUserNetwork(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewNetworkService(repo, zap.NewNop())
	ctx := context.Background()

	inviter := insertProfile(t, repo, models.Profile{Name: "阿明", Status: models.ProfileStatusApproved})
	me := insertProfile(t, repo, models.Profile{Name: "小林", Status: models.ProfileStatusApproved, InvitedBy: &inviter.ID})
	insertProfile(t, repo, models.Profile{Status: models.ProfileStatusApproved, InvitedBy: &me.ID})
	insertProfile(t, repo, models.Profile{Status: models.ProfileStatusRejected, InvitedBy: &me.ID})

	network, err := svc.UserNetwork(ctx, me.ID)
	require.NoError(t, err)
	assert.Equal(t, "小林", network.User.Name)
	require.NotNil(t, network.Inviter)
	assert.Equal(t, "阿明", network.Inviter.Name)
	assert.Len(t, network.Invitees, 2)
	assert.Equal(t, "C", network.Quality.QualityScore)

	root, err := svc.UserNetwork(ctx, inviter.ID)
	require.NoError(t, err)
	assert.Nil(t, root.Inviter)
	assert.Equal(t, "A", root.Quality.QualityScore)

	_, err = svc.UserNetwork(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)

	tree, err := svc.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Stats.TotalUsers)
	assert.Equal(t, 2, tree.Stats.MaxDepth)
}

func BenchmarkBuildNetwork(b *testing.B) {
	profiles := randomForest(rand.New(rand.NewSource(7)), 5000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildNetwork(profiles)
	}
}
