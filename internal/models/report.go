package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Report statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusWontFix    = "wont_fix"
	StatusDuplicate  = "duplicate"
)

// Report priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Fix statuses.
const (
	FixStatusPending     = "pending"
	FixStatusAccepted    = "accepted"
	FixStatusRejected    = "rejected"
	FixStatusImplemented = "implemented"
)

var (
	Statuses    = []string{StatusOpen, StatusInProgress, StatusResolved, StatusWontFix, StatusDuplicate}
	Priorities  = []string{PriorityLow, PriorityMedium, PriorityHigh}
	FixStatuses = []string{FixStatusPending, FixStatusAccepted, FixStatusRejected, FixStatusImplemented}
)

// Report is a user-submitted issue report. A report is canonical when
// CanonicalID is nil and then owns DuplicateCount; otherwise it is a duplicate
// pointing directly at its canonical root.
type Report struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AppID  string     `gorm:"size:50;not null;index:idx_reports_dedup,priority:1;index:idx_reports_listing,priority:1" json:"app_id"`
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`

	Description string  `gorm:"type:text;not null" json:"description"`
	Priority    string  `gorm:"size:10;not null;index" json:"priority"`
	Status      string  `gorm:"size:20;not null;index" json:"status"`
	ScreenName  *string `gorm:"size:255" json:"screen_name"`
	DeviceModel *string `gorm:"size:100" json:"device_model,omitempty"`
	OSVersion   *string `gorm:"size:50" json:"os_version,omitempty"`
	AppVersion  *string `gorm:"size:50" json:"app_version,omitempty"`

	// ImageURL mirrors ImageURLs[0] for clients that read a single attachment.
	ImageURL  *string                     `gorm:"type:text" json:"image_url"`
	ImageURLs datatypes.JSONSlice[string] `json:"image_urls"`

	FixStatus    *string        `gorm:"size:20" json:"fix_status"`
	SuggestedFix *string        `gorm:"type:text" json:"suggested_fix"`
	Analysis     datatypes.JSON `gorm:"type:jsonb" json:"analysis"`

	Fingerprint    string     `gorm:"size:64;not null;index:idx_reports_dedup,priority:2" json:"fingerprint"`
	CanonicalID    *uuid.UUID `gorm:"type:uuid;index" json:"canonical_id"`
	DuplicateCount int        `gorm:"not null" json:"duplicate_count"`

	CreatedAt time.Time `gorm:"not null;index:idx_reports_dedup,priority:3;index:idx_reports_listing,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (Report) TableName() string {
	return "reports"
}

// IsCanonical reports whether r is the root of its duplicate set.
func (r *Report) IsCanonical() bool {
	return r.CanonicalID == nil
}
