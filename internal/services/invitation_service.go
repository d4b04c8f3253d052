package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
	"rainbow-register/internal/utils"
)

// maxCodeAttempts bounds how many random draws Mint makes per code
const maxCodeAttempts = 10

// AdminReferrerLabel is shown as the referrer of profiles that used an admin code
const AdminReferrerLabel = "管理员"

// InvitationOptions configures code minting
type InvitationOptions struct {
	CodeLength int
	DefaultTTL time.Duration
	Quota      int
}

// InvitationService is the invitation-code ledger
type InvitationService struct {
	repo     *repository.Repository
	logger   *zap.Logger
	opts     InvitationOptions
	generate func(length int) (string, error)
	now      func() time.Time
}

func NewInvitationService(repo *repository.Repository, logger *zap.Logger, opts InvitationOptions) *InvitationService {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 6
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 7 * 24 * time.Hour
	}
	if opts.Quota < 0 {
		opts.Quota = 0
	}
	return &InvitationService{
		repo:     repo,
		logger:   logger,
		opts:     opts,
		generate: utils.GenerateCode,
		now:      time.Now,
	}
}

// MintRequest describes a batch of codes to create
type MintRequest struct {
	Count         int
	CreatedBy     uint
	CreatedByType models.CreatorType
	Notes         string
	// TTL of zero means the default window; negative means no expiry.
	TTL time.Duration
}

// Referral is the attribution resolved from a redeemed code
type Referral struct {
	InvitedBy *uint
	Label     string
}

// VerifyResult is returned when a holder presents a code
type VerifyResult struct {
	OpenID     string `json:"openid"`
	HasProfile bool   `json:"has_profile"`
	Code       string `json:"code"`
}

// CodeSummary lists a profile's own codes with usage counts
type CodeSummary struct {
	Codes     []models.InvitationCode `json:"codes"`
	Total     int                     `json:"total"`
	Used      int                     `json:"used"`
	Remaining int                     `json:"remaining"`
}

// Quota returns the number of codes an approved profile receives
func (s *InvitationService) Quota() int {
	return s.opts.Quota
}

// Mint creates req.Count fresh codes in one transaction
func (s *InvitationService) Mint(ctx context.Context, req MintRequest) ([]models.InvitationCode, error) {
	if req.Count < 1 || req.Count > 100 {
		return nil, &ValidationError{Field: "count", Message: "必须在 1-100 之间"}
	}

	var codes []models.InvitationCode
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		codes, err = s.MintWith(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// MintWith creates codes using an existing transaction
func (s *InvitationService) MintWith(ctx context.Context, tx *repository.Repository, req MintRequest) ([]models.InvitationCode, error) {
	if req.CreatedByType == "" {
		req.CreatedByType = models.CreatorAdmin
	}
	if req.CreatedByType == models.CreatorAdmin {
		req.CreatedBy = models.AdminCreatorID
	}

	var expireAt *time.Time
	switch {
	case req.TTL == 0:
		t := s.now().Add(s.opts.DefaultTTL)
		expireAt = &t
	case req.TTL > 0:
		t := s.now().Add(req.TTL)
		expireAt = &t
	}

	codes := make([]models.InvitationCode, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		inv, err := s.mintOne(ctx, tx, req, expireAt)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *inv)
	}

	if err := tx.CreateAuditLog(ctx, &models.AuditLog{
		Actor:        string(req.CreatedByType),
		Action:       models.AuditCodesMinted,
		ResourceType: "invitation",
		Details: map[string]interface{}{
			"count":      len(codes),
			"created_by": req.CreatedBy,
			"notes":      req.Notes,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to audit mint: %w", err)
	}

	s.logger.Info("Minted invitation codes",
		zap.Int("count", len(codes)),
		zap.String("created_by_type", string(req.CreatedByType)),
		zap.Uint("created_by", req.CreatedBy),
	)
	return codes, nil
}

// mintOne draws random codes until one is free in the ledger. A collision
// found by the existence check or by the unique index triggers a new draw.
func (s *InvitationService) mintOne(ctx context.Context, tx *repository.Repository, req MintRequest, expireAt *time.Time) (*models.InvitationCode, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.generate(s.opts.CodeLength)
		if err != nil {
			return nil, err
		}

		exists, err := tx.InvitationCodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if exists {
			s.logger.Debug("Invitation code collision", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}

		inv := &models.InvitationCode{
			Code:          code,
			CreatedBy:     req.CreatedBy,
			CreatedByType: req.CreatedByType,
			IsActive:      true,
			ExpireAt:      expireAt,
			Notes:         req.Notes,
		}
		// savepoint so a duplicate insert does not poison the outer transaction
		err = tx.Transaction(ctx, func(sp *repository.Repository) error {
			return sp.CreateInvitationCode(ctx, inv)
		})
		if err == nil {
			return inv, nil
		}
		if !repository.IsDuplicateKey(err) {
			return nil, fmt.Errorf("failed to create invitation code: %w", err)
		}
		s.logger.Debug("Invitation code insert collided", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return nil, ErrCodeSpaceExhausted
}

// MintQuota gives a just-approved profile its configured number of codes
func (s *InvitationService) MintQuota(ctx context.Context, tx *repository.Repository, profileID uint) ([]models.InvitationCode, error) {
	if s.opts.Quota == 0 {
		return nil, nil
	}
	return s.MintWith(ctx, tx, MintRequest{
		Count:         s.opts.Quota,
		CreatedBy:     profileID,
		CreatedByType: models.CreatorUser,
		Notes:         fmt.Sprintf("审核通过自动生成 profile#%d", profileID),
	})
}

// Validate checks that a code could be redeemed right now without consuming it
func (s *InvitationService) Validate(ctx context.Context, code string) (*models.InvitationCode, error) {
	code = NormalizeCode(code)
	inv, err := s.repo.GetInvitationCode(ctx, code)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, invitationError(code, InvitationNotFound, "")
		}
		return nil, fmt.Errorf("failed to load invitation code: %w", err)
	}
	if err := s.check(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Redeem consumes a code for openid. The flip of is_used is a single
// conditional update, so two concurrent redemptions cannot both succeed.
func (s *InvitationService) Redeem(ctx context.Context, code, openid string) (*models.InvitationCode, error) {
	return s.redeemWith(ctx, s.repo, code, openid)
}

func (s *InvitationService) redeemWith(ctx context.Context, repo *repository.Repository, code, openid string) (*models.InvitationCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, invitationError(code, InvitationNotFound, "")
	}

	ok, err := repo.RedeemInvitationCode(ctx, code, openid, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to redeem invitation code: %w", err)
	}

	inv, err := repo.GetInvitationCode(ctx, code)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, invitationError(code, InvitationNotFound, "")
		}
		return nil, fmt.Errorf("failed to load invitation code: %w", err)
	}

	if !ok {
		if err := s.check(inv); err != nil {
			return nil, err
		}
		// Row changed between the update and the read; report it as used.
		return nil, invitationError(code, InvitationUsed, "")
	}

	s.logger.Info("Invitation code redeemed", zap.String("code", code), zap.String("openid", openid))
	return inv, nil
}

// Verify handles a holder presenting a code: new holders consume it, holders
// who already registered are only told so.
func (s *InvitationService) Verify(ctx context.Context, code, openid string) (*VerifyResult, error) {
	inv, err := s.Validate(ctx, code)
	if err != nil {
		return nil, err
	}

	hasProfile, err := s.repo.ProfileExistsByOpenID(ctx, openid)
	if err != nil {
		return nil, fmt.Errorf("failed to check profile: %w", err)
	}

	if !hasProfile {
		if _, err := s.Redeem(ctx, inv.Code, openid); err != nil {
			return nil, err
		}
	}

	return &VerifyResult{OpenID: openid, HasProfile: hasProfile, Code: inv.Code}, nil
}

// ResolveReferral turns a redeemed code into referral attribution
func (s *InvitationService) ResolveReferral(ctx context.Context, inv *models.InvitationCode) (*Referral, error) {
	return s.resolveReferralWith(ctx, s.repo, inv)
}

func (s *InvitationService) resolveReferralWith(ctx context.Context, repo *repository.Repository, inv *models.InvitationCode) (*Referral, error) {
	if inv == nil || inv.CreatedByType != models.CreatorUser {
		return &Referral{Label: AdminReferrerLabel}, nil
	}

	inviter, err := repo.GetProfileByID(ctx, inv.CreatedBy)
	if err != nil {
		if repository.IsNotFound(err) {
			// inviter deleted their profile; keep the code's origin visible
			s.logger.Warn("Inviter profile missing", zap.Uint("created_by", inv.CreatedBy), zap.String("code", inv.Code))
			return &Referral{Label: fmt.Sprintf("已删除用户 #%d", inv.CreatedBy)}, nil
		}
		return nil, fmt.Errorf("failed to load inviter: %w", err)
	}

	id := inviter.ID
	return &Referral{
		InvitedBy: &id,
		Label:     fmt.Sprintf("%s（№%s）", inviter.Name, inviter.SerialNumber),
	}, nil
}

// Disable deactivates a code so it can no longer be redeemed
func (s *InvitationService) Disable(ctx context.Context, code, reason, actor string) error {
	code = NormalizeCode(code)
	if strings.TrimSpace(reason) == "" {
		return &ValidationError{Field: "reason", Message: "禁用原因不能为空"}
	}

	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.DisableInvitationCode(ctx, code, reason)
		if err != nil {
			return fmt.Errorf("failed to disable invitation code: %w", err)
		}
		if !ok {
			if _, err := tx.GetInvitationCode(ctx, code); repository.IsNotFound(err) {
				return fmt.Errorf("invitation code %s: %w", code, ErrNotFound)
			}
			return fmt.Errorf("invitation code %s already disabled: %w", code, ErrStateConflict)
		}
		return tx.CreateAuditLog(ctx, &models.AuditLog{
			Actor:        actor,
			Action:       models.AuditCodeDisabled,
			ResourceType: "invitation",
			Details:      map[string]interface{}{"code": code, "reason": reason},
		})
	})
}

// List returns codes for the admin listing
func (s *InvitationService) List(ctx context.Context, filter repository.InvitationFilter) ([]models.InvitationCode, int64, error) {
	codes, total, err := s.repo.ListInvitationCodes(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invitation codes: %w", err)
	}
	return codes, total, nil
}

// CodesForHolder returns the holder's own codes. Codes only exist once the
// profile is approved or published.
func (s *InvitationService) CodesForHolder(ctx context.Context, openid string) (*CodeSummary, error) {
	profile, err := s.repo.GetProfileByOpenID(ctx, openid)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("profile: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	summary := &CodeSummary{Codes: []models.InvitationCode{}}
	if !profile.Status.IsApprovedLike() {
		return summary, nil
	}

	codes, err := s.repo.CodesCreatedByProfile(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load codes: %w", err)
	}
	summary.Codes = codes
	summary.Total = len(codes)
	for _, c := range codes {
		if c.IsUsed {
			summary.Used++
		}
	}
	summary.Remaining = summary.Total - summary.Used
	return summary, nil
}

// check classifies why a code is not redeemable, in the order a holder
// would want to hear it: missing, used, expired, disabled.
func (s *InvitationService) check(inv *models.InvitationCode) error {
	if inv.IsUsed {
		return invitationError(inv.Code, InvitationUsed, "")
	}
	if inv.Expired(s.now()) {
		return invitationError(inv.Code, InvitationExpired, "")
	}
	if !inv.IsActive {
		return invitationError(inv.Code, InvitationDisabled, inv.DisableReason)
	}
	return nil
}

func invitationError(code string, reason InvitationReason, detail string) *InvitationError {
	var msg string
	switch reason {
	case InvitationNotFound:
		msg = "邀请码不存在"
	case InvitationUsed:
		msg = "邀请码已被使用"
	case InvitationExpired:
		msg = "邀请码已过期"
	case InvitationDisabled:
		if detail == "" {
			detail = "未知原因"
		}
		msg = "邀请码已被禁用: " + detail
	case InvitationMissing:
		msg = "请先验证邀请码"
	}
	return &InvitationError{Code: code, Reason: reason, Message: msg}
}

// NormalizeCode trims and upper-cases a user-typed code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SeedOutcome reports what EnsureCode did with a fixed code
type SeedOutcome string

const (
	SeedCreated   SeedOutcome = "created"
	SeedReset     SeedOutcome = "reset"
	SeedUnchanged SeedOutcome = "unchanged"
)

// EnsureCode makes a fixed admin code redeemable. A missing code is created
// without expiry; a used one is reset so the next holder can redeem it.
// Disabled codes stay disabled.
func (s *InvitationService) EnsureCode(ctx context.Context, code, notes string) (SeedOutcome, error) {
	code = NormalizeCode(code)
	if code == "" {
		return SeedUnchanged, &ValidationError{Field: "code", Message: "不能为空"}
	}

	exists, err := s.repo.InvitationCodeExists(ctx, code)
	if err != nil {
		return SeedUnchanged, fmt.Errorf("failed to check code %s: %w", code, err)
	}
	if exists {
		return s.resetSeed(ctx, code)
	}

	err = s.repo.CreateInvitationCode(ctx, &models.InvitationCode{
		Code:          code,
		CreatedBy:     models.AdminCreatorID,
		CreatedByType: models.CreatorAdmin,
		IsActive:      true,
		Notes:         notes,
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return s.resetSeed(ctx, code)
		}
		return SeedUnchanged, fmt.Errorf("failed to create code %s: %w", code, err)
	}
	s.logger.Info("Seeded invitation code", zap.String("code", code))
	return SeedCreated, nil
}

func (s *InvitationService) resetSeed(ctx context.Context, code string) (SeedOutcome, error) {
	reset, err := s.repo.ResetInvitationCode(ctx, code)
	if err != nil {
		return SeedUnchanged, fmt.Errorf("failed to reset code %s: %w", code, err)
	}
	if !reset {
		return SeedUnchanged, nil
	}
	s.logger.Info("Reset used invitation code", zap.String("code", code))
	return SeedReset, nil
}
