package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ProfileStatus is the review state of a profile
type ProfileStatus string

const (
	ProfileStatusPending   ProfileStatus = "pending"
	ProfileStatusApproved  ProfileStatus = "approved"
	ProfileStatusPublished ProfileStatus = "published"
	ProfileStatusRejected  ProfileStatus = "rejected"
	ProfileStatusArchived  ProfileStatus = "archived"
)

// Valid reports whether s is one of the five persisted states
func (s ProfileStatus) Valid() bool {
	switch s {
	case ProfileStatusPending, ProfileStatusApproved, ProfileStatusPublished,
		ProfileStatusRejected, ProfileStatusArchived:
		return true
	}
	return false
}

// IsApprovedLike reports whether s counts as approved for quota and network purposes
func (s ProfileStatus) IsApprovedLike() bool {
	return s == ProfileStatusApproved || s == ProfileStatusPublished
}

// Expectation describes what the holder looks for in a partner
type Expectation struct {
	Relationship string `json:"relationship,omitempty"`
	BodyType     string `json:"body_type,omitempty"`
	Appearance   string `json:"appearance,omitempty"`
	AgeRange     string `json:"age_range,omitempty"`
	Habits       string `json:"habits,omitempty"`
	Personality  string `json:"personality,omitempty"`
	Location     string `json:"location,omitempty"`
	Children     string `json:"children,omitempty"`
	Other        string `json:"other,omitempty"`
}

// ExpectationSlots lists the slot keys in display order
var ExpectationSlots = []string{
	"relationship", "body_type", "appearance", "age_range", "habits",
	"personality", "location", "children", "other",
}

// slot returns a pointer to the named slot, or nil for unknown keys
func (e *Expectation) slot(key string) *string {
	switch key {
	case "relationship":
		return &e.Relationship
	case "body_type":
		return &e.BodyType
	case "appearance":
		return &e.Appearance
	case "age_range":
		return &e.AgeRange
	case "habits":
		return &e.Habits
	case "personality":
		return &e.Personality
	case "location":
		return &e.Location
	case "children":
		return &e.Children
	case "other":
		return &e.Other
	}
	return nil
}

// Get returns the value of a slot, or "" for unknown keys
func (e Expectation) Get(key string) string {
	if p := e.slot(key); p != nil {
		return *p
	}
	return ""
}

// Set assigns a slot value. Unknown keys return an error.
func (e *Expectation) Set(key, value string) error {
	p := e.slot(key)
	if p == nil {
		return fmt.Errorf("unknown expectation slot %q", key)
	}
	*p = value
	return nil
}

// HasCore reports whether any of the slots that make the block count as answered is filled
func (e Expectation) HasCore() bool {
	for _, v := range []string{e.Relationship, e.AgeRange, e.Personality, e.Location} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Profile is an applicant's submitted registration
type Profile struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	OpenID       string `gorm:"column:openid;uniqueIndex;not null;size:100" json:"openid"`
	SerialNumber string `gorm:"uniqueIndex;not null;size:20" json:"serial_number"`

	Name          string `gorm:"size:50;not null" json:"name"`
	Gender        string `gorm:"size:10;not null" json:"gender"`
	Birthday      string `gorm:"size:20" json:"birthday"`
	Age           int    `json:"age"`
	Height        int    `json:"height"`
	Weight        int    `json:"weight"`
	BodyType      string `gorm:"size:50" json:"body_type"`
	Hometown      string `gorm:"size:100" json:"hometown"`
	WorkLocation  string `gorm:"size:100;index" json:"work_location"`
	Industry      string `gorm:"size:100" json:"industry"`
	Constellation string `gorm:"size:20" json:"constellation"`
	MBTI          string `gorm:"column:mbti;size:10" json:"mbti"`
	WechatID      string `gorm:"size:100" json:"wechat_id"`

	MaritalStatus   string `gorm:"size:50" json:"marital_status"`
	HealthCondition string `gorm:"size:100" json:"health_condition"`
	HousingStatus   string `gorm:"size:100" json:"housing_status"`
	DatingPurpose   string `gorm:"size:100" json:"dating_purpose"`
	WantChildren    string `gorm:"size:50" json:"want_children"`
	ComingOutStatus string `gorm:"size:50" json:"coming_out_status"`

	Lifestyle           string `gorm:"type:text" json:"lifestyle"`
	ActivityExpectation string `gorm:"type:text" json:"activity_expectation"`
	SpecialRequirements string `gorm:"type:text" json:"special_requirements"`

	Expectation datatypes.JSONType[Expectation] `json:"expectation"`
	Hobbies     datatypes.JSONSlice[string]     `json:"hobbies"`
	Photos      datatypes.JSONSlice[string]     `json:"photos"`

	Status             ProfileStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	RejectionReason    string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedBy         string        `gorm:"size:50" json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time    `json:"reviewed_at,omitempty"`
	ReviewNotes        string        `gorm:"type:text" json:"review_notes,omitempty"`
	InvitedBy          *uint         `gorm:"index" json:"invited_by,omitempty"`
	ReferredBy         string        `gorm:"size:100" json:"referred_by,omitempty"`
	InvitationCodeUsed string        `gorm:"size:20" json:"invitation_code_used"`
	InvitationQuota    int           `gorm:"default:0" json:"invitation_quota"`
	PostURL            string        `gorm:"size:500" json:"post_url,omitempty"`
	PublishedAt        *time.Time    `json:"published_at,omitempty"`

	CreateTime time.Time `gorm:"autoCreateTime;index" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
}

// TableName specifies the table name for Profile model
func (Profile) TableName() string {
	return "profiles"
}

// ExpectationData returns the decoded expectation block
func (p *Profile) ExpectationData() Expectation {
	return p.Expectation.Data()
}

// Sequence is a named monotonically increasing counter
type Sequence struct {
	Name  string `gorm:"primaryKey;size:50"`
	Value int64  `gorm:"not null;default:0"`
}

func (Sequence) TableName() string {
	return "sequences"
}

// ProfileSerialSequence names the counter behind profile serial numbers
const ProfileSerialSequence = "profile_serial"

// FormatSerial renders a serial counter value as a zero-padded serial number
func FormatSerial(n int64) string {
	return fmt.Sprintf("%03d", n)
}
