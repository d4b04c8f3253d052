package models

import (
	"time"
)

// CreatorType identifies who minted an invitation code
type CreatorType string

const (
	CreatorAdmin CreatorType = "admin"
	CreatorUser  CreatorType = "user"
)

// AdminCreatorID is the created_by sentinel for administrator-minted codes
const AdminCreatorID uint = 0

// InvitationCode represents a single-use registration code
type InvitationCode struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Code          string      `gorm:"uniqueIndex;not null;size:20" json:"code"`
	CreatedBy     uint        `gorm:"not null;default:0;index" json:"created_by"`
	CreatedByType CreatorType `gorm:"size:10;not null;default:admin" json:"created_by_type"`
	IsUsed        bool        `gorm:"not null;default:false;index" json:"is_used"`
	UsedByOpenID  string      `gorm:"column:used_by_openid;size:100;index" json:"used_by_openid,omitempty"`
	UsedAt        *time.Time  `json:"used_at,omitempty"`
	IsActive      bool        `gorm:"not null;default:true" json:"is_active"`
	DisableReason string      `gorm:"size:255" json:"disable_reason,omitempty"`
	ExpireAt      *time.Time  `json:"expire_at,omitempty"`
	Notes         string      `gorm:"size:255" json:"notes,omitempty"`
	CreateTime    time.Time   `gorm:"autoCreateTime" json:"create_time"`
}

// TableName specifies the table name for InvitationCode model
func (InvitationCode) TableName() string {
	return "invitation_codes"
}

// Expired reports whether the code is past its expiry at now
func (c *InvitationCode) Expired(now time.Time) bool {
	return c.ExpireAt != nil && !c.ExpireAt.After(now)
}
