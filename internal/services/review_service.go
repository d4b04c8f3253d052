package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
)

const (
	// batchReviewLimit caps how many pending profiles one batch run inspects
	batchReviewLimit = 100
	// batchReviewConcurrency bounds parallel extraction calls during a batch
	batchReviewConcurrency = 4
	postTimeout            = 30 * time.Second
)

// Review notes written by the AI pass
const (
	NoteAIError      = "AI审核异常，请管理员手动审核"
	NoteAIAutoPass   = "AI已自动提取补充信息，等待管理员终审"
	NoteAIManualPass = "AI手动审核-已提取补充信息"
)

// ComplianceTestRejection is the reason given to profiles submitted with a
// compliance-test code
const ComplianceTestRejection = "该邀请码为平台合规测试专用，资料已自动驳回。如需正式报名，请联系管理员获取邀请码。"

const bypassApprovalNote = "免审核邀请码自动通过"

// AIReviewTrigger says who started an AI review
type AIReviewTrigger string

const (
	TriggerAuto   AIReviewTrigger = "auto"
	TriggerManual AIReviewTrigger = "manual"
)

func (t AIReviewTrigger) actor() string {
	if t == TriggerManual {
		return models.ActorAIManual
	}
	return models.ActorAIAuto
}

func (t AIReviewTrigger) passNote() string {
	if t == TriggerManual {
		return NoteAIManualPass
	}
	return NoteAIAutoPass
}

// ReviewScheduler queues background AI reviews
type ReviewScheduler interface {
	Schedule(profileID uint) bool
}

// PhotoCleaner removes a holder's stored photos
type PhotoCleaner interface {
	DeletePhotos(ctx context.Context, openid string) error
}

// PostGenerator produces the announcement post for an approved profile
type PostGenerator interface {
	Generate(ctx context.Context, profile *models.Profile) error
}

// ReviewOptions carries the special-purpose invitation codes
type ReviewOptions struct {
	BypassCodes     []string
	RejectTestCodes []string
}

// SubmitResult is returned to the holder after a submission
type SubmitResult struct {
	ProfileID    uint                 `json:"profile_id"`
	SerialNumber string               `json:"serial_number"`
	Status       models.ProfileStatus `json:"status"`
	ReferredBy   string               `json:"referred_by"`
}

// UpdateResult is returned after a holder edits their profile
type UpdateResult struct {
	ProfileID      uint                 `json:"profile_id"`
	Status         models.ProfileStatus `json:"status"`
	PreviousStatus models.ProfileStatus `json:"previous_status"`
}

// ApproveResult carries the codes minted by an approval
type ApproveResult struct {
	ProfileID uint                    `json:"profile_id"`
	Codes     []models.InvitationCode `json:"codes"`
}

// AIReviewResult is the outcome of one AI review as shown to admins
type AIReviewResult struct {
	ProfileID        uint              `json:"profile_id"`
	Name             string            `json:"name,omitempty"`
	Outcome          ReviewOutcome     `json:"action"`
	Message          string            `json:"message,omitempty"`
	Missing          []string          `json:"missing,omitempty"`
	MergedFields     map[string]string `json:"merged_fields,omitempty"`
	ExtractionCalled bool              `json:"extraction_called"`
	Error            string            `json:"error,omitempty"`
}

// BatchReviewResult aggregates a batch AI review run
type BatchReviewResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Rejected int               `json:"rejected"`
	Errors   int               `json:"errors"`
	Skipped  int               `json:"skipped"`
	Details  []*AIReviewResult `json:"details"`
}

// DashboardStats summarises the registry for the admin dashboard
type DashboardStats struct {
	TotalProfiles int64                          `json:"total_profiles"`
	StatusCounts  map[models.ProfileStatus]int64 `json:"status_counts"`
	TotalCodes    int64                          `json:"total_codes"`
	UsedCodes     int64                          `json:"used_codes"`
}

// ReviewService drives a profile through its lifecycle. Every status change
// is a conditional update on the expected prior status, so concurrent
// admin and AI actions on the same profile cannot both win.
type ReviewService struct {
	repo       *repository.Repository
	ledger     *InvitationService
	analyzer   *CompletionAnalyzer
	settings   *SettingService
	logger     *zap.Logger
	scheduler  ReviewScheduler
	photos     PhotoCleaner
	posts      PostGenerator
	bypass     map[string]struct{}
	rejectTest map[string]struct{}
	now        func() time.Time
}

func NewReviewService(
	repo *repository.Repository,
	ledger *InvitationService,
	analyzer *CompletionAnalyzer,
	settings *SettingService,
	logger *zap.Logger,
	opts ReviewOptions,
) *ReviewService {
	return &ReviewService{
		repo:       repo,
		ledger:     ledger,
		analyzer:   analyzer,
		settings:   settings,
		logger:     logger,
		bypass:     codeSet(opts.BypassCodes),
		rejectTest: codeSet(opts.RejectTestCodes),
		now:        time.Now,
	}
}

// SetScheduler wires the background review queue. The queue itself runs
// RunAIReview, so it is attached after construction.
func (s *ReviewService) SetScheduler(scheduler ReviewScheduler) {
	s.scheduler = scheduler
}

func (s *ReviewService) SetPhotoCleaner(photos PhotoCleaner) {
	s.photos = photos
}

func (s *ReviewService) SetPostGenerator(posts PostGenerator) {
	s.posts = posts
}

// Submit creates the holder's profile. The invitation code is consumed and
// the serial number assigned in the same transaction as the insert.
func (s *ReviewService) Submit(ctx context.Context, openid string, in *ProfileInput) (*SubmitResult, error) {
	openid = strings.TrimSpace(openid)
	if openid == "" {
		return nil, &ValidationError{Field: "openid", Message: "不能为空"}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.ProfileExistsByOpenID(ctx, openid)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing profile: %w", err)
	}
	if exists {
		return nil, ErrDuplicateSubmission
	}

	var (
		profile    *models.Profile
		approved   bool
		scheduleAI bool
	)
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		inv, err := s.claimCode(ctx, tx, openid, in.InvitationCode)
		if err != nil {
			return err
		}

		ref, err := s.ledger.resolveReferralWith(ctx, tx, inv)
		if err != nil {
			return err
		}

		serial, err := tx.NextSequence(ctx, models.ProfileSerialSequence)
		if err != nil {
			return fmt.Errorf("failed to allocate serial number: %w", err)
		}

		profile = &models.Profile{
			OpenID:             openid,
			SerialNumber:       models.FormatSerial(serial),
			Status:             models.ProfileStatusPending,
			InvitedBy:          ref.InvitedBy,
			ReferredBy:         ref.Label,
			InvitationCodeUsed: inv.Code,
		}
		in.apply(profile)

		if err := tx.CreateProfile(ctx, profile); err != nil {
			if repository.IsDuplicateKey(err) {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("failed to create profile: %w", err)
		}

		if err := s.audit(ctx, tx, models.ActorHolder, models.AuditProfileSubmitted, profile.ID, map[string]interface{}{
			"serial_number":   profile.SerialNumber,
			"invitation_code": inv.Code,
		}); err != nil {
			return err
		}

		switch {
		case s.isBypass(inv.Code):
			if _, err := s.approveWith(ctx, tx, profile.ID, models.ActorBypass, bypassApprovalNote); err != nil {
				return err
			}
			profile.Status = models.ProfileStatusApproved
			approved = true
		case s.isRejectTest(inv.Code):
			if err := s.rejectWith(ctx, tx, profile.ID, models.ActorComplianceTest, ComplianceTestRejection); err != nil {
				return err
			}
			profile.Status = models.ProfileStatusRejected
		default:
			scheduleAI = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Profile submitted",
		zap.Uint("profile_id", profile.ID),
		zap.String("serial_number", profile.SerialNumber),
		zap.String("status", string(profile.Status)),
	)

	if approved {
		s.generatePost(profile.ID)
	}
	if scheduleAI {
		s.scheduleAIReview(profile.ID)
	}

	return &SubmitResult{
		ProfileID:    profile.ID,
		SerialNumber: profile.SerialNumber,
		Status:       profile.Status,
		ReferredBy:   profile.ReferredBy,
	}, nil
}

// claimCode finds the holder's invitation code. An explicit code is redeemed
// now unless the same holder already redeemed it; without one the holder's
// earlier redemption is used.
func (s *ReviewService) claimCode(ctx context.Context, tx *repository.Repository, openid, code string) (*models.InvitationCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		inv, err := tx.FindRedeemedCodeByOpenID(ctx, openid)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, invitationError("", InvitationMissing, "")
			}
			return nil, fmt.Errorf("failed to find redeemed code: %w", err)
		}
		return inv, nil
	}

	inv, err := tx.GetInvitationCode(ctx, code)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, invitationError(code, InvitationNotFound, "")
		}
		return nil, fmt.Errorf("failed to load invitation code: %w", err)
	}
	if inv.IsUsed && inv.UsedByOpenID == openid {
		return inv, nil
	}
	return s.ledger.redeemWith(ctx, tx, code, openid)
}

// Update replaces the holder's editable fields. Only pending and rejected
// profiles can be edited; the result is always pending again.
func (s *ReviewService) Update(ctx context.Context, openid string, in *ProfileInput) (*UpdateResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	profile, err := s.profileByOpenID(ctx, openid)
	if err != nil {
		return nil, err
	}

	editable := []models.ProfileStatus{models.ProfileStatusPending, models.ProfileStatusRejected}
	updates := in.columns()
	updates["status"] = models.ProfileStatusPending
	updates["rejection_reason"] = ""

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.UpdateProfileIfStatus(ctx, profile.ID, editable, updates)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		if !ok {
			return s.conflict(ctx, tx, profile.ID, "修改")
		}
		return s.audit(ctx, tx, models.ActorHolder, models.AuditProfileUpdated, profile.ID, map[string]interface{}{
			"previous_status": profile.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Profile updated",
		zap.Uint("profile_id", profile.ID),
		zap.String("previous_status", string(profile.Status)),
	)
	s.scheduleAIReview(profile.ID)

	return &UpdateResult{
		ProfileID:      profile.ID,
		Status:         models.ProfileStatusPending,
		PreviousStatus: profile.Status,
	}, nil
}

// Approve moves a pending profile to approved and grants its invitation quota
func (s *ReviewService) Approve(ctx context.Context, profileID uint, reviewer, notes string) (*ApproveResult, error) {
	var codes []models.InvitationCode
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		codes, err = s.approveWith(ctx, tx, profileID, reviewer, notes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Profile approved",
		zap.Uint("profile_id", profileID),
		zap.String("reviewer", reviewer),
		zap.Int("codes", len(codes)),
	)
	s.generatePost(profileID)

	if codes == nil {
		codes = []models.InvitationCode{}
	}
	return &ApproveResult{ProfileID: profileID, Codes: codes}, nil
}

func (s *ReviewService) approveWith(ctx context.Context, tx *repository.Repository, profileID uint, reviewer, notes string) ([]models.InvitationCode, error) {
	ok, err := tx.UpdateProfileIfStatus(ctx, profileID, []models.ProfileStatus{models.ProfileStatusPending}, map[string]interface{}{
		"status":           models.ProfileStatusApproved,
		"reviewed_by":      reviewer,
		"reviewed_at":      s.now(),
		"review_notes":     notes,
		"rejection_reason": "",
		"invitation_quota": s.ledger.Quota(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to approve profile: %w", err)
	}
	if !ok {
		return nil, s.conflict(ctx, tx, profileID, "审核通过")
	}

	codes, err := s.ledger.MintQuota(ctx, tx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint invitation quota: %w", err)
	}

	if err := s.audit(ctx, tx, reviewer, models.AuditProfileApproved, profileID, map[string]interface{}{
		"notes": notes,
		"codes": len(codes),
	}); err != nil {
		return nil, err
	}
	return codes, nil
}

// Reject moves a pending profile to rejected. A reason is mandatory.
func (s *ReviewService) Reject(ctx context.Context, profileID uint, reviewer, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &ValidationError{Field: "reason", Message: "驳回原因不能为空"}
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return s.rejectWith(ctx, tx, profileID, reviewer, reason)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Profile rejected", zap.Uint("profile_id", profileID), zap.String("reviewer", reviewer))
	return nil
}

func (s *ReviewService) rejectWith(ctx context.Context, tx *repository.Repository, profileID uint, reviewer, reason string) error {
	ok, err := tx.UpdateProfileIfStatus(ctx, profileID, []models.ProfileStatus{models.ProfileStatusPending}, map[string]interface{}{
		"status":           models.ProfileStatusRejected,
		"rejection_reason": reason,
		"reviewed_by":      reviewer,
		"reviewed_at":      s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to reject profile: %w", err)
	}
	if !ok {
		return s.conflict(ctx, tx, profileID, "驳回")
	}
	return s.audit(ctx, tx, reviewer, models.AuditProfileRejected, profileID, map[string]interface{}{
		"reason": reason,
	})
}

// Publish marks an approved profile as published with its post URL
func (s *ReviewService) Publish(ctx context.Context, profileID uint, postURL, actor string) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.UpdateProfileIfStatus(ctx, profileID, []models.ProfileStatus{models.ProfileStatusApproved}, map[string]interface{}{
			"status":       models.ProfileStatusPublished,
			"post_url":     strings.TrimSpace(postURL),
			"published_at": s.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to publish profile: %w", err)
		}
		if !ok {
			return s.conflict(ctx, tx, profileID, "发布")
		}
		return s.audit(ctx, tx, actor, models.AuditProfilePublished, profileID, map[string]interface{}{
			"post_url": postURL,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Profile published", zap.Uint("profile_id", profileID))
	return nil
}

// Archive hides the holder's approved or published profile
func (s *ReviewService) Archive(ctx context.Context, openid string) error {
	profile, err := s.profileByOpenID(ctx, openid)
	if err != nil {
		return err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.UpdateProfileIfStatus(ctx, profile.ID,
			[]models.ProfileStatus{models.ProfileStatusApproved, models.ProfileStatusPublished},
			map[string]interface{}{"status": models.ProfileStatusArchived})
		if err != nil {
			return fmt.Errorf("failed to archive profile: %w", err)
		}
		if !ok {
			return s.conflict(ctx, tx, profile.ID, "归档")
		}
		return s.audit(ctx, tx, models.ActorHolder, models.AuditProfileArchived, profile.ID, map[string]interface{}{
			"previous_status": profile.Status,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Profile archived", zap.Uint("profile_id", profile.ID))
	return nil
}

// Delete removes the holder's profile unless it is archived, then removes
// stored photos. Photo cleanup failures are logged only.
func (s *ReviewService) Delete(ctx context.Context, openid string) error {
	profile, err := s.profileByOpenID(ctx, openid)
	if err != nil {
		return err
	}

	deletable := []models.ProfileStatus{
		models.ProfileStatusPending,
		models.ProfileStatusRejected,
		models.ProfileStatusApproved,
		models.ProfileStatusPublished,
	}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.DeleteProfileIfStatus(ctx, profile.ID, deletable)
		if err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		if !ok {
			return s.conflict(ctx, tx, profile.ID, "删除")
		}
		return s.audit(ctx, tx, models.ActorHolder, models.AuditProfileDeleted, profile.ID, map[string]interface{}{
			"serial_number": profile.SerialNumber,
			"status":        profile.Status,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Profile deleted", zap.Uint("profile_id", profile.ID), zap.String("serial_number", profile.SerialNumber))

	if s.photos != nil {
		if err := s.photos.DeletePhotos(ctx, profile.OpenID); err != nil {
			s.logger.Warn("Failed to delete profile photos", zap.Uint("profile_id", profile.ID), zap.Error(err))
		}
	}
	return nil
}

// RunAIReview runs the completeness analysis on one pending profile and
// applies its outcome. Background runs skip silently when the toggle is
// off or the profile has moved on; manual runs report those as errors.
func (s *ReviewService) RunAIReview(ctx context.Context, profileID uint, trigger AIReviewTrigger) (*AIReviewResult, error) {
	result := &AIReviewResult{ProfileID: profileID}

	if trigger == TriggerAuto {
		enabled, err := s.settings.AIAutoReviewEnabled(ctx)
		if err != nil {
			return nil, err
		}
		if !enabled {
			result.Outcome = OutcomeSkip
			result.Message = "AI自动审核已关闭"
			return result, nil
		}
	}

	profile, err := s.repo.GetProfileByID(ctx, profileID)
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		if trigger == TriggerManual {
			return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
		}
		result.Outcome = OutcomeSkip
		result.Message = "资料不存在"
		return result, nil
	}
	result.Name = profile.Name

	if profile.Status != models.ProfileStatusPending {
		if trigger == TriggerManual {
			return nil, &StateConflictError{ProfileID: profileID, Current: string(profile.Status), Action: "AI审核"}
		}
		result.Outcome = OutcomeSkip
		result.Message = "资料状态已变更"
		return result, nil
	}

	analysis := s.analyzer.Analyze(ctx, profile)
	result.Outcome = analysis.Outcome
	result.Missing = analysis.Missing
	result.MergedFields = analysis.MergedFields
	result.ExtractionCalled = analysis.ExtractionCalled

	if err := s.applyAnalysis(ctx, profile, trigger, analysis, result); err != nil {
		return nil, err
	}

	s.logger.Info("AI review finished",
		zap.Uint("profile_id", profileID),
		zap.String("trigger", string(trigger)),
		zap.String("outcome", string(result.Outcome)),
		zap.Bool("extraction_called", result.ExtractionCalled),
	)
	return result, nil
}

func (s *ReviewService) applyAnalysis(ctx context.Context, profile *models.Profile, trigger AIReviewTrigger, analysis *Analysis, result *AIReviewResult) error {
	var updates map[string]interface{}
	switch analysis.Outcome {
	case OutcomeReject:
		result.Message = analysis.Message
		updates = map[string]interface{}{
			"status":           models.ProfileStatusRejected,
			"rejection_reason": analysis.Message,
			"reviewed_by":      trigger.actor(),
			"reviewed_at":      s.now(),
		}
	case OutcomePass:
		if len(analysis.Updates) == 0 {
			result.Message = "资料完整"
			return nil
		}
		result.Message = trigger.passNote()
		updates = make(map[string]interface{}, len(analysis.Updates)+1)
		for k, v := range analysis.Updates {
			updates[k] = v
		}
		updates["review_notes"] = trigger.passNote()
	case OutcomeError:
		result.Message = NoteAIError
		if analysis.Err != nil {
			result.Error = analysis.Err.Error()
		}
		updates = map[string]interface{}{"review_notes": NoteAIError}
	default:
		return nil
	}

	applied := false
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.UpdateProfileIfStatus(ctx, profile.ID, []models.ProfileStatus{models.ProfileStatusPending}, updates)
		if err != nil {
			return fmt.Errorf("failed to apply AI review: %w", err)
		}
		if !ok {
			return nil
		}
		applied = true
		return s.audit(ctx, tx, trigger.actor(), models.AuditAIReview, profile.ID, map[string]interface{}{
			"outcome":           analysis.Outcome,
			"missing":           analysis.Missing,
			"merged_fields":     analysis.MergedFields,
			"extraction_called": analysis.ExtractionCalled,
		})
	})
	if err != nil {
		return err
	}

	if !applied {
		// an admin decided while extraction was running
		s.logger.Info("Profile left pending during AI review, discarding outcome", zap.Uint("profile_id", profile.ID))
		result.Outcome = OutcomeSkip
		result.Message = "资料状态已变更"
	}
	return nil
}

// BatchAIReview runs a manual AI review over the oldest pending profiles.
// A failure on one profile is recorded and does not stop the others.
func (s *ReviewService) BatchAIReview(ctx context.Context) (*BatchReviewResult, error) {
	profiles, err := s.repo.ListPendingProfiles(ctx, 0, batchReviewLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending profiles: %w", err)
	}

	details := make([]*AIReviewResult, len(profiles))
	var mu sync.Mutex
	summary := &BatchReviewResult{Total: len(profiles)}

	g := new(errgroup.Group)
	g.SetLimit(batchReviewConcurrency)
	for i := range profiles {
		i, p := i, profiles[i]
		g.Go(func() error {
			res, err := s.RunAIReview(ctx, p.ID, TriggerManual)
			if err != nil {
				outcome := OutcomeError
				if errors.Is(err, ErrStateConflict) || errors.Is(err, ErrNotFound) {
					outcome = OutcomeSkip
				}
				res = &AIReviewResult{ProfileID: p.ID, Name: p.Name, Outcome: outcome, Error: err.Error()}
			}

			mu.Lock()
			defer mu.Unlock()
			details[i] = res
			switch res.Outcome {
			case OutcomePass:
				summary.Passed++
			case OutcomeReject:
				summary.Rejected++
			case OutcomeError:
				summary.Errors++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Details = details
	s.logger.Info("Batch AI review finished",
		zap.Int("total", summary.Total),
		zap.Int("passed", summary.Passed),
		zap.Int("rejected", summary.Rejected),
		zap.Int("errors", summary.Errors),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// GetProfile returns a profile by ID for admins
func (s *ReviewService) GetProfile(ctx context.Context, profileID uint) (*models.Profile, error) {
	profile, err := s.repo.GetProfileByID(ctx, profileID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// MyProfile returns the holder's own profile
func (s *ReviewService) MyProfile(ctx context.Context, openid string) (*models.Profile, error) {
	return s.profileByOpenID(ctx, openid)
}

// ListProfiles pages through profiles newest first, optionally by status
func (s *ReviewService) ListProfiles(ctx context.Context, status models.ProfileStatus, page, limit int) ([]models.Profile, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Message: "未知状态"}
	}
	offset, limit := paginate(page, limit)
	profiles, total, err := s.repo.ListProfiles(ctx, status, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, total, nil
}

// ListPending pages through pending profiles oldest first
func (s *ReviewService) ListPending(ctx context.Context, page, limit int) ([]models.Profile, error) {
	offset, limit := paginate(page, limit)
	profiles, err := s.repo.ListPendingProfiles(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending profiles: %w", err)
	}
	return profiles, nil
}

// Stats returns the dashboard counters
func (s *ReviewService) Stats(ctx context.Context) (*DashboardStats, error) {
	counts, err := s.repo.CountProfilesByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}
	total, used, err := s.repo.CountInvitationCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count invitation codes: %w", err)
	}

	stats := &DashboardStats{StatusCounts: counts, TotalCodes: total, UsedCodes: used}
	for _, n := range counts {
		stats.TotalProfiles += n
	}
	return stats, nil
}

// AuditLogs pages through the audit trail, optionally for one profile
func (s *ReviewService) AuditLogs(ctx context.Context, profileID *uint, page, limit int) ([]models.AuditLog, int64, error) {
	resourceType := ""
	if profileID != nil {
		resourceType = "profile"
	}
	offset, limit := paginate(page, limit)
	logs, total, err := s.repo.ListAuditLogs(ctx, resourceType, profileID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

func (s *ReviewService) profileByOpenID(ctx context.Context, openid string) (*models.Profile, error) {
	profile, err := s.repo.GetProfileByOpenID(ctx, openid)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("profile: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// conflict explains a failed conditional update: the row is gone or its
// status no longer allows the action.
func (s *ReviewService) conflict(ctx context.Context, tx *repository.Repository, profileID uint, action string) error {
	profile, err := tx.GetProfileByID(ctx, profileID)
	if err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}
	return &StateConflictError{ProfileID: profileID, Current: string(profile.Status), Action: action}
}

func (s *ReviewService) audit(ctx context.Context, tx *repository.Repository, actor, action string, profileID uint, details map[string]interface{}) error {
	id := profileID
	if err := tx.CreateAuditLog(ctx, &models.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: "profile",
		ResourceID:   &id,
		Details:      details,
	}); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *ReviewService) scheduleAIReview(profileID uint) {
	if s.scheduler == nil {
		return
	}
	if !s.scheduler.Schedule(profileID) {
		s.logger.Warn("AI review queue full, profile left for manual review", zap.Uint("profile_id", profileID))
	}
}

// generatePost runs the post generator in the background; failures never
// affect the approval that triggered it.
func (s *ReviewService) generatePost(profileID uint) {
	if s.posts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
		defer cancel()

		profile, err := s.repo.GetProfileByID(ctx, profileID)
		if err != nil {
			s.logger.Warn("Post generation skipped, profile not loadable", zap.Uint("profile_id", profileID), zap.Error(err))
			return
		}
		if err := s.posts.Generate(ctx, profile); err != nil {
			s.logger.Warn("Post generation failed", zap.Uint("profile_id", profileID), zap.Error(err))
		}
	}()
}

func (s *ReviewService) isBypass(code string) bool {
	_, ok := s.bypass[code]
	return ok
}

func (s *ReviewService) isRejectTest(code string) bool {
	_, ok := s.rejectTest[code]
	return ok
}

func codeSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = NormalizeCode(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

func paginate(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return (page - 1) * limit, limit
}
