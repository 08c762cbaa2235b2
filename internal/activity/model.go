package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultThreshold is the weekly message count a member needs when a community has not
// configured its own.
const DefaultThreshold = 10

const maxIdentifierLength = 64

var (
	// ErrInvalidCommunityID indicates that a community identifier is empty or exceeds storage bounds.
	ErrInvalidCommunityID = errors.New("activity: invalid community id")
	// ErrInvalidMemberID indicates that a member identifier is empty or exceeds storage bounds.
	ErrInvalidMemberID = errors.New("activity: invalid member id")
)

// CommunityConfig holds the per-community role settings. Rows are created lazily with defaults and
// overwritten in full on every reconfiguration.
type CommunityConfig struct {
	CommunityID string    `gorm:"column:community_id;primaryKey;size:64;not null"`
	RoleID      *string   `gorm:"column:role_id;size:64"`
	Threshold   int       `gorm:"column:threshold;not null;default:10"`
	Timezone    string    `gorm:"column:timezone;size:64;not null"`
	WeekStart   string    `gorm:"column:week_start;size:16;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (CommunityConfig) TableName() string {
	return "community_configs"
}

// HasRole reports whether an active role has been configured.
func (c CommunityConfig) HasRole() bool {
	return c.RoleID != nil && strings.TrimSpace(*c.RoleID) != ""
}

// Role returns the configured role identifier or the empty string.
func (c CommunityConfig) Role() string {
	if c.RoleID == nil {
		return ""
	}
	return *c.RoleID
}

// WeeklyCount is the number of messages a member sent in a community during the week starting on
// WeekStart (ISO date).
type WeeklyCount struct {
	CommunityID  string `gorm:"column:community_id;primaryKey;size:64;not null;index:idx_weekly_counts_week,priority:1"`
	MemberID     string `gorm:"column:member_id;primaryKey;size:64;not null"`
	WeekStart    string `gorm:"column:week_start;primaryKey;size:10;not null;index:idx_weekly_counts_week,priority:2"`
	MessageCount int64  `gorm:"column:message_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (WeeklyCount) TableName() string {
	return "weekly_counts"
}

// MemberCount is one row of a week's tally.
type MemberCount struct {
	MemberID string `json:"member_id"`
	Count    int64  `json:"count"`
}

// Defaults describes the settings applied to a community the first time it is observed.
type Defaults struct {
	Threshold int
	Timezone  string
	WeekStart string
}

func (d Defaults) configFor(communityID string) CommunityConfig {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	weekStart := d.WeekStart
	if weekStart == "" {
		weekStart = "MONDAY"
	}
	timezone := strings.TrimSpace(d.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	return CommunityConfig{
		CommunityID: communityID,
		Threshold:   threshold,
		Timezone:    timezone,
		WeekStart:   weekStart,
	}
}

func validateIdentifier(value string, sentinel error) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return nil
}
