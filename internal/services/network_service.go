package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
)

const (
	topInviterCount   = 5
	worstInviterCount = 3
	dateLayout        = "2006-01-02"
)

var (
	gradeA = decimal.NewFromInt(80)
	gradeB = decimal.NewFromInt(60)
	gradeC = decimal.NewFromInt(40)
)

// Quality is an inviter's score over its direct invitees
type Quality struct {
	InvitedCount  int      `json:"invited_count"`
	ApprovedCount int      `json:"approved_count"`
	RejectedCount int      `json:"rejected_count"`
	PendingCount  int      `json:"pending_count"`
	ApprovalRate  *float64 `json:"approval_rate"`
	QualityScore  string   `json:"quality_score"`
	QualityLabel  string   `json:"quality_label"`
}

// NetworkUser is the public view of a profile inside the network
type NetworkUser struct {
	ID           uint                 `json:"id"`
	SerialNumber string               `json:"serial_number"`
	Name         string               `json:"name"`
	Gender       string               `json:"gender"`
	Age          int                  `json:"age"`
	WorkLocation string               `json:"work_location"`
	Status       models.ProfileStatus `json:"status"`
	CreateTime   string               `json:"create_time"`
	ReferredBy   string               `json:"referred_by,omitempty"`
}

// NetworkNode is one profile in the invitation forest
type NetworkNode struct {
	NetworkUser
	Depth           int            `json:"depth"`
	Quality         Quality        `json:"quality"`
	DescendantCount int            `json:"descendant_count"`
	Children        []*NetworkNode `json:"children"`
}

// InviterRank is an inviter row in the top and worst lists
type InviterRank struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	Quality
}

// NetworkStats summarises the whole forest
type NetworkStats struct {
	TotalUsers          int                          `json:"total_users"`
	TotalRoots          int                          `json:"total_roots"`
	TotalInviters       int                          `json:"total_inviters"`
	TotalApproved       int                          `json:"total_approved"`
	TotalRejected       int                          `json:"total_rejected"`
	TotalPending        int                          `json:"total_pending"`
	OverallApprovalRate float64                      `json:"overall_approval_rate"`
	MaxDepth            int                          `json:"max_depth"`
	StatusCounts        map[models.ProfileStatus]int `json:"status_counts"`
	TopInviters         []InviterRank                `json:"top_inviters"`
	WorstInviters       []InviterRank                `json:"worst_inviters"`
}

// NetworkTree is the invitation forest with its statistics
type NetworkTree struct {
	Tree  []*NetworkNode `json:"tree"`
	Stats NetworkStats   `json:"stats"`
}

// UserNetwork is the neighbourhood of a single profile
type UserNetwork struct {
	User     NetworkUser   `json:"user"`
	Inviter  *NetworkUser  `json:"inviter"`
	Invitees []NetworkUser `json:"invitees"`
	Quality  Quality       `json:"quality"`
}

type NetworkService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func NewNetworkService(repo *repository.Repository, logger *zap.Logger) *NetworkService {
	return &NetworkService{repo: repo, logger: logger}
}

// Tree builds the forest from a fresh snapshot of every profile
func (s *NetworkService) Tree(ctx context.Context) (*NetworkTree, error) {
	profiles, err := s.repo.AllProfilesByCreation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	tree := BuildNetwork(profiles)
	s.logger.Debug("Built invitation network",
		zap.Int("users", tree.Stats.TotalUsers),
		zap.Int("roots", tree.Stats.TotalRoots),
		zap.Int("max_depth", tree.Stats.MaxDepth),
	)
	return tree, nil
}

// UserNetwork resolves one profile's inviter and direct invitees
func (s *NetworkService) UserNetwork(ctx context.Context, profileID uint) (*UserNetwork, error) {
	profile, err := s.repo.GetProfileByID(ctx, profileID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	invitees, err := s.repo.InviteesOf(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invitees: %w", err)
	}

	result := &UserNetwork{
		User:     toNetworkUser(profile),
		Invitees: make([]NetworkUser, 0, len(invitees)),
	}

	if profile.InvitedBy != nil && *profile.InvitedBy != profile.ID {
		inviter, err := s.repo.GetProfileByID(ctx, *profile.InvitedBy)
		switch {
		case err == nil:
			u := toNetworkUser(inviter)
			result.Inviter = &u
		case !repository.IsNotFound(err):
			return nil, fmt.Errorf("failed to load inviter: %w", err)
		}
	}

	statuses := make([]models.ProfileStatus, 0, len(invitees))
	for i := range invitees {
		result.Invitees = append(result.Invitees, toNetworkUser(&invitees[i]))
		statuses = append(statuses, invitees[i].Status)
	}
	result.Quality = ComputeQuality(statuses)
	return result, nil
}

// ComputeQuality scores an inviter from its direct invitees' statuses.
// Pending invitees count toward invited_count but not the rate.
func ComputeQuality(statuses []models.ProfileStatus) Quality {
	q := Quality{InvitedCount: len(statuses)}
	if len(statuses) == 0 {
		q.QualityScore = "-"
		q.QualityLabel = "无邀请"
		return q
	}

	for _, st := range statuses {
		switch {
		case st.IsApprovedLike():
			q.ApprovedCount++
		case st == models.ProfileStatusRejected:
			q.RejectedCount++
		case st == models.ProfileStatusPending:
			q.PendingCount++
		}
	}

	rate, ok := approvalRate(q.ApprovedCount, q.RejectedCount)
	if !ok {
		q.QualityScore = "-"
		q.QualityLabel = "待评估"
		return q
	}

	f := rate.InexactFloat64()
	q.ApprovalRate = &f
	q.QualityScore, q.QualityLabel = Grade(rate)
	return q
}

// Grade maps a rounded approval rate to its letter and label
func Grade(rate decimal.Decimal) (string, string) {
	switch {
	case rate.GreaterThanOrEqual(gradeA):
		return "A", "优质"
	case rate.GreaterThanOrEqual(gradeB):
		return "B", "良好"
	case rate.GreaterThanOrEqual(gradeC):
		return "C", "一般"
	default:
		return "D", "较差"
	}
}

// approvalRate is approved/(approved+rejected)*100 rounded half-up to one decimal
func approvalRate(approved, rejected int) (decimal.Decimal, bool) {
	reviewed := approved + rejected
	if reviewed == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(approved) * 100).
		Div(decimal.NewFromInt(int64(reviewed))).
		Round(1), true
}

// arenaNode holds one profile and the indices of its tree children
type arenaNode struct {
	profile     *models.Profile
	invitees    []int
	children    []int
	depth       int
	descendants int
	visited     bool
}

// BuildNetwork turns a creation-ordered profile list into the invitation
// forest. The walk is iterative over an index arena; a profile whose
// inviter is missing or points at itself is a root, and profiles caught in
// an invited_by cycle are promoted to roots with the back edge dropped.
func BuildNetwork(profiles []models.Profile) *NetworkTree {
	arena := make([]arenaNode, len(profiles))
	index := make(map[uint]int, len(profiles))
	for i := range profiles {
		arena[i].profile = &profiles[i]
		index[profiles[i].ID] = i
	}

	var roots []int
	for i := range profiles {
		p := &profiles[i]
		if p.InvitedBy != nil && *p.InvitedBy != p.ID {
			if j, ok := index[*p.InvitedBy]; ok {
				arena[j].invitees = append(arena[j].invitees, i)
				continue
			}
		}
		roots = append(roots, i)
	}

	// breadth-first from every root; order records the visit sequence
	order := make([]int, 0, len(profiles))
	walk := func(root int) {
		arena[root].visited = true
		queue := []int{root}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			order = append(order, n)
			for _, c := range arena[n].invitees {
				if arena[c].visited {
					continue
				}
				arena[c].visited = true
				arena[c].depth = arena[n].depth + 1
				arena[n].children = append(arena[n].children, c)
				queue = append(queue, c)
			}
		}
	}
	for _, r := range roots {
		walk(r)
	}
	for i := range arena {
		if !arena[i].visited {
			roots = append(roots, i)
			walk(i)
		}
	}

	// children are visited after their parent, so reverse order is bottom-up
	for k := len(order) - 1; k >= 0; k-- {
		n := &arena[order[k]]
		for _, c := range n.children {
			n.descendants += arena[c].descendants + 1
		}
	}

	nodes := make([]*NetworkNode, len(arena))
	stats := NetworkStats{
		TotalUsers:    len(profiles),
		TotalRoots:    len(roots),
		StatusCounts:  make(map[models.ProfileStatus]int),
		TopInviters:   []InviterRank{},
		WorstInviters: []InviterRank{},
	}
	var inviters []InviterRank

	for i := range arena {
		n := &arena[i]
		statuses := make([]models.ProfileStatus, 0, len(n.invitees))
		for _, c := range n.invitees {
			statuses = append(statuses, arena[c].profile.Status)
		}
		quality := ComputeQuality(statuses)

		nodes[i] = &NetworkNode{
			NetworkUser:     toNetworkUser(n.profile),
			Depth:           n.depth,
			Quality:         quality,
			DescendantCount: n.descendants,
			Children:        make([]*NetworkNode, 0, len(n.children)),
		}

		if n.depth > stats.MaxDepth {
			stats.MaxDepth = n.depth
		}
		status := n.profile.Status
		stats.StatusCounts[status]++
		switch {
		case status.IsApprovedLike():
			stats.TotalApproved++
		case status == models.ProfileStatusRejected:
			stats.TotalRejected++
		case status == models.ProfileStatusPending:
			stats.TotalPending++
		}

		if quality.InvitedCount > 0 {
			inviters = append(inviters, InviterRank{
				ID:           n.profile.ID,
				Name:         n.profile.Name,
				SerialNumber: n.profile.SerialNumber,
				Quality:      quality,
			})
		}
	}

	for i := range arena {
		for _, c := range arena[i].children {
			nodes[i].Children = append(nodes[i].Children, nodes[c])
		}
	}

	tree := make([]*NetworkNode, 0, len(roots))
	for _, r := range roots {
		tree = append(tree, nodes[r])
	}

	if rate, ok := approvalRate(stats.TotalApproved, stats.TotalRejected); ok {
		stats.OverallApprovalRate = rate.InexactFloat64()
	}

	stats.TotalInviters = len(inviters)
	rankInviters(inviters)
	if len(inviters) > 0 {
		stats.TopInviters = inviters[:min(topInviterCount, len(inviters))]
	}
	if len(inviters) >= worstInviterCount {
		tail := inviters[len(inviters)-worstInviterCount:]
		worst := make([]InviterRank, 0, worstInviterCount)
		for k := len(tail) - 1; k >= 0; k-- {
			worst = append(worst, tail[k])
		}
		stats.WorstInviters = worst
	}

	return &NetworkTree{Tree: tree, Stats: stats}
}

// rankInviters sorts by approval rate descending; an undefined rate sorts as
// zero. Ties keep creation order.
func rankInviters(inviters []InviterRank) {
	sort.SliceStable(inviters, func(a, b int) bool {
		return rateOrZero(inviters[a].ApprovalRate) > rateOrZero(inviters[b].ApprovalRate)
	})
}

func rateOrZero(rate *float64) float64 {
	if rate == nil {
		return 0
	}
	return *rate
}

func toNetworkUser(p *models.Profile) NetworkUser {
	u := NetworkUser{
		ID:           p.ID,
		SerialNumber: p.SerialNumber,
		Name:         p.Name,
		Gender:       p.Gender,
		Age:          p.Age,
		WorkLocation: p.WorkLocation,
		Status:       p.Status,
		ReferredBy:   p.ReferredBy,
	}
	if !p.CreateTime.IsZero() {
		u.CreateTime = p.CreateTime.Format(dateLayout)
	}
	return u
}
