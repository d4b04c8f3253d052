package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
)

// Post is the announcement text for an approved profile
type Post struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Photos  []string `json:"photos"`
	PostURL string   `json:"post_url,omitempty"`
}

// PostWriter persists a rendered post and returns its public URL
type PostWriter interface {
	Save(ctx context.Context, serial string, content []byte) (string, error)
}

// PostService renders announcement posts and stores them for approved profiles
type PostService struct {
	repo         *repository.Repository
	writer       PostWriter
	adminContact string
	logger       *zap.Logger
}

func NewPostService(repo *repository.Repository, writer PostWriter, adminContact string, logger *zap.Logger) *PostService {
	return &PostService{repo: repo, writer: writer, adminContact: adminContact, logger: logger}
}

// Preview renders the post for a profile without storing it
func (s *PostService) Preview(ctx context.Context, profileID uint) (*Post, error) {
	profile, err := s.repo.GetProfileByID(ctx, profileID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	post := RenderPost(profile, s.adminContact)
	post.PostURL = profile.PostURL
	return post, nil
}

// Generate renders and stores the post, then records its URL on the profile
func (s *PostService) Generate(ctx context.Context, profile *models.Profile) error {
	if !profile.Status.IsApprovedLike() {
		return &StateConflictError{ProfileID: profile.ID, Current: string(profile.Status), Action: "生成文案"}
	}

	post := RenderPost(profile, s.adminContact)
	body := post.Title + "\n\n" + post.Content + "\n"
	for _, photo := range post.Photos {
		body += "\n![](" + photo + ")"
	}

	url, err := s.writer.Save(ctx, profile.SerialNumber, []byte(body))
	if err != nil {
		return fmt.Errorf("failed to store post: %w", err)
	}
	if err := s.repo.SetProfilePostURL(ctx, profile.ID, url); err != nil {
		return fmt.Errorf("failed to record post url: %w", err)
	}

	s.logger.Info("Post generated", zap.Uint("profile_id", profile.ID), zap.String("post_url", url))
	return nil
}

// RenderPost builds the title and body of the announcement
func RenderPost(p *models.Profile, adminContact string) *Post {
	var tags []string
	if loc := strings.Fields(p.WorkLocation); len(loc) > 0 {
		tags = append(tags, loc[0])
	}
	if slices.Contains(p.Hobbies, "健身") || slices.Contains(p.Hobbies, "运动") {
		tags = append(tags, "爱运动")
	}
	exp := p.ExpectationData()
	if strings.Contains(exp.Appearance, "短发") {
		tags = append(tags, "喜短发")
	}

	title := "特伴№" + p.SerialNumber
	if len(tags) > 0 {
		title += " " + strings.Join(tags, " ")
	}

	lines := []string{
		fmt.Sprintf("%s %s/%s/%skg %s 型号%s",
			p.Gender, num(p.Age), num(p.Height), num(p.Weight), p.MaritalStatus, p.BodyType),
	}

	work := fmt.Sprintf("%s人 %s工作，%s", p.Hometown, p.WorkLocation, p.Industry)
	if p.HealthCondition != "" {
		work += "，" + p.HealthCondition
	}
	lines = append(lines, work)

	var traits []string
	for _, t := range []string{p.Constellation, p.MBTI, p.ComingOutStatus} {
		if t != "" {
			traits = append(traits, t)
		}
	}
	if len(traits) > 0 {
		lines = append(lines, strings.Join(traits, " "))
	}
	if p.DatingPurpose != "" {
		lines = append(lines, "交友目的："+p.DatingPurpose)
	}
	if p.WantChildren != "" {
		lines = append(lines, "孩子意愿："+p.WantChildren)
	}
	if p.Lifestyle != "" {
		lines = append(lines, p.Lifestyle)
	}

	lines = append(lines, "\n期待交友")
	for _, v := range []string{exp.Relationship, exp.BodyType, exp.Appearance} {
		if v != "" {
			lines = append(lines, v)
		}
	}
	if exp.AgeRange != "" {
		lines = append(lines, "接受"+exp.AgeRange)
	}
	for _, v := range []string{exp.Habits, exp.Location, exp.Children, exp.Other} {
		if v != "" {
			lines = append(lines, v)
		}
	}
	if p.SpecialRequirements != "" {
		lines = append(lines, p.SpecialRequirements)
	}
	if adminContact != "" {
		lines = append(lines, "\n管理员V："+adminContact)
	}

	photos := []string(p.Photos)
	if photos == nil {
		photos = []string{}
	}
	return &Post{Title: title, Content: strings.Join(lines, "\n"), Photos: photos}
}

func num(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
