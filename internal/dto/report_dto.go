package dto

import (
	"encoding/json"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/google/uuid"
)

// SubmitReportRequest is accepted as JSON or as multipart form fields.
// Multipart submissions carry images as repeated "images" file parts.
type SubmitReportRequest struct {
	Description string `json:"description" form:"description"`
	Priority    string `json:"priority" form:"priority"`
	ScreenName  string `json:"screen_name" form:"screen_name"`
	DeviceModel string `json:"device_model" form:"device_model"`
	OSVersion   string `json:"os_version" form:"os_version"`
	AppVersion  string `json:"app_version" form:"app_version"`
}

type SubmitReportResponse struct {
	ID              uuid.UUID  `json:"id"`
	Status          string     `json:"status"`
	IsDuplicate     bool       `json:"is_duplicate"`
	CanonicalID     *uuid.UUID `json:"canonical_id"`
	AttachmentCount int        `json:"attachment_count"`
}

// UpdateReportRequest sets classification fields. Omitted fields are left as is.
type UpdateReportRequest struct {
	Status       *string         `json:"status"`
	FixStatus    *string         `json:"fix_status"`
	SuggestedFix *string         `json:"suggested_fix"`
	Analysis     json.RawMessage `json:"analysis"`
}

type ReportListResponse struct {
	Reports []models.Report `json:"reports"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

type DuplicatesResponse struct {
	CanonicalID uuid.UUID       `json:"canonical_id"`
	Count       int             `json:"count"`
	Duplicates  []models.Report `json:"duplicates"`
}

type ReportStatsResponse struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByPriority map[string]int64 `json:"by_priority"`
}
