package models

import (
	"time"

	"gorm.io/datatypes"
)

// System actors recorded in reviewed_by and audit entries
const (
	ActorAIAuto         = "AI_AUTO_REVIEW"
	ActorAIManual       = "AI_MANUAL"
	ActorBypass         = "SYSTEM_BYPASS"
	ActorComplianceTest = "SYSTEM_COMPLIANCE_TEST"
	ActorHolder         = "holder"
)

// SystemSetting is a process-wide key/value switch
type SystemSetting struct {
	Key         string    `gorm:"primaryKey;size:100" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
	UpdatedBy   string    `gorm:"size:100" json:"updated_by,omitempty"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// AuditLog records review actions and setting changes
type AuditLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Actor        string            `gorm:"size:100;not null;index" json:"actor"`
	Action       string            `gorm:"size:100;not null" json:"action"`
	ResourceType string            `gorm:"size:50" json:"resource_type"`
	ResourceID   *uint             `gorm:"index" json:"resource_id"`
	Details      datatypes.JSONMap `json:"details"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit actions
const (
	AuditProfileSubmitted = "profile.submitted"
	AuditProfileUpdated   = "profile.updated"
	AuditProfileApproved  = "profile.approved"
	AuditProfileRejected  = "profile.rejected"
	AuditProfilePublished = "profile.published"
	AuditProfileArchived  = "profile.archived"
	AuditProfileDeleted   = "profile.deleted"
	AuditAIReview         = "profile.ai_review"
	AuditCodesMinted      = "invitation.minted"
	AuditCodeDisabled     = "invitation.disabled"
	AuditSettingChanged   = "setting.changed"
)
