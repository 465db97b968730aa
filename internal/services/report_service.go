package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/attachments"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dedup"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	MinDescriptionLength = 5
	maxParallelUploads   = 3
)

// SubmitInput is one incoming report.
type SubmitInput struct {
	AppID       string
	UserID      *uuid.UUID
	Description string
	Priority    string
	ScreenName  string
	DeviceModel string
	OSVersion   string
	AppVersion  string
	Images      []attachments.Image
}

// SubmitResult tells the caller whether the report was folded into an existing one.
type SubmitResult struct {
	Report          *models.Report
	IsDuplicate     bool
	CanonicalID     *uuid.UUID
	AttachmentCount int
}

// UpdateInput holds the classification fields an update may set. Nil fields are untouched.
type UpdateInput struct {
	Status       *string
	FixStatus    *string
	SuggestedFix *string
	Analysis     json.RawMessage
}

// AttachmentLimits bounds the images accepted with one submission.
type AttachmentLimits struct {
	MaxCount int
	MaxBytes int64
}

// ReportService owns report creation, canonical/duplicate linkage and updates.
type ReportService struct {
	store    store.ReportStore
	resolver *dedup.Resolver
	uploads  attachments.Store
	limits   AttachmentLimits
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*ReportService)

// WithClock overrides the time source used for created_at and the match window.
func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

// NewReportService wires the ledger. uploads may be nil, in which case images
// are ignored.
func NewReportService(reports store.ReportStore, resolver *dedup.Resolver, uploads attachments.Store, limits AttachmentLimits, logger *slog.Logger, opts ...Option) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxCount <= 0 {
		limits.MaxCount = 5
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 10 * 1024 * 1024
	}
	s := &ReportService{
		store:    reports,
		resolver: resolver,
		uploads:  uploads,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and stores a report. A report whose fingerprint matches a
// canonical report of the same app inside the window is stored as its
// duplicate and the canonical count is incremented in the store.
func (s *ReportService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	description := strings.TrimSpace(in.Description)
	if err := s.validateSubmit(in, description); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	fingerprint := dedup.Fingerprint(in.AppID, description, in.ScreenName)

	// Uploads run beside resolution; their outcome never changes the dedup decision.
	uploaded := make(chan []string, 1)
	go func() { uploaded <- s.uploadAll(ctx, in.AppID, in.Images) }()

	match, isDuplicate, err := s.resolver.FindCanonicalMatch(ctx, fingerprint, in.AppID, now)
	if err != nil {
		return nil, err
	}
	urls := <-uploaded

	report := &models.Report{
		ID:          uuid.New(),
		AppID:       in.AppID,
		UserID:      in.UserID,
		Description: description,
		Priority:    in.Priority,
		Status:      models.StatusOpen,
		ScreenName:  optional(in.ScreenName),
		DeviceModel: optional(in.DeviceModel),
		OSVersion:   optional(in.OSVersion),
		AppVersion:  optional(in.AppVersion),
		Fingerprint: fingerprint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(urls) > 0 {
		report.ImageURLs = datatypes.JSONSlice[string](urls)
		report.ImageURL = &urls[0]
	}
	if isDuplicate {
		canonicalID := match.ID
		report.Status = models.StatusDuplicate
		report.CanonicalID = &canonicalID
		report.DuplicateCount = 0
	} else {
		report.DuplicateCount = 1
	}

	if err := s.store.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	if isDuplicate {
		if err := s.store.IncrementDuplicateCount(ctx, match.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "duplicate count increment failed",
				"app_id", in.AppID, "report_id", report.ID.String(), "canonical_id", match.ID.String(), "error", err)
			return nil, fmt.Errorf("failed to increment duplicate count of %s: %w", match.ID, err)
		}
		s.logger.InfoContext(ctx, "report resolved as duplicate",
			"app_id", in.AppID, "report_id", report.ID.String(), "canonical_id", match.ID.String(), "fingerprint", fingerprint)
	} else {
		s.logger.InfoContext(ctx, "report created",
			"app_id", in.AppID, "report_id", report.ID.String(), "fingerprint", fingerprint)
	}

	return &SubmitResult{
		Report:          report,
		IsDuplicate:     isDuplicate,
		CanonicalID:     report.CanonicalID,
		AttachmentCount: len(urls),
	}, nil
}

// Update sets classification fields of a report. Fingerprint, canonical link
// and duplicate count are not reachable through this path.
func (s *ReportService) Update(ctx context.Context, appID string, id uuid.UUID, in UpdateInput) (*models.Report, error) {
	if err := requireApp(appID); err != nil {
		return nil, err
	}
	update := store.ReportUpdate{
		Status:       in.Status,
		FixStatus:    in.FixStatus,
		SuggestedFix: in.SuggestedFix,
	}
	if in.Analysis != nil {
		update.Analysis = datatypes.JSON(in.Analysis)
	}
	if update.IsEmpty() {
		return nil, invalid("body", "at least one of status, fix_status, suggested_fix or analysis is required")
	}
	if in.Status != nil {
		if *in.Status == models.StatusDuplicate {
			return nil, invalid("status", "status duplicate is only assigned by deduplication")
		}
		if err := oneOf("status", *in.Status, models.Statuses); err != nil {
			return nil, err
		}
	}
	if in.FixStatus != nil {
		if err := oneOf("fix_status", *in.FixStatus, models.FixStatuses); err != nil {
			return nil, err
		}
	}
	if in.Analysis != nil && !json.Valid(in.Analysis) {
		return nil, invalid("analysis", "analysis must be valid JSON")
	}

	report, err := s.store.Update(ctx, appID, id, update, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update report %s: %w", id, err)
	}
	return report, nil
}

func (s *ReportService) validateSubmit(in SubmitInput, description string) error {
	if err := requireApp(in.AppID); err != nil {
		return err
	}
	if utf8.RuneCountInString(description) < MinDescriptionLength {
		return invalid("description", fmt.Sprintf("description must be at least %d characters", MinDescriptionLength))
	}
	if err := oneOf("priority", in.Priority, models.Priorities); err != nil {
		return err
	}
	if s.uploads == nil {
		return nil
	}
	if len(in.Images) > s.limits.MaxCount {
		return invalid("images", fmt.Sprintf("at most %d images are allowed", s.limits.MaxCount))
	}
	for i, img := range in.Images {
		if len(img.Data) == 0 {
			return invalid("images", fmt.Sprintf("image %d is empty", i+1))
		}
		if int64(len(img.Data)) > s.limits.MaxBytes {
			return invalid("images", fmt.Sprintf("image %d exceeds %d bytes", i+1, s.limits.MaxBytes))
		}
		if !attachments.Supported(img.ContentType) {
			return invalid("images", fmt.Sprintf("image %d has unsupported type %q", i+1, img.ContentType))
		}
	}
	return nil
}

// uploadAll stores images in parallel and returns the URLs of the ones that
// succeeded, in submission order.
func (s *ReportService) uploadAll(ctx context.Context, appID string, images []attachments.Image) []string {
	if s.uploads == nil || len(images) == 0 {
		return nil
	}

	results := make([]string, len(images))
	var g errgroup.Group
	g.SetLimit(maxParallelUploads)
	for i, img := range images {
		g.Go(func() error {
			url, err := s.uploads.Put(ctx, appID, img)
			if err != nil {
				s.logger.WarnContext(ctx, "attachment upload failed", "app_id", appID, "index", i, "error", err)
				return nil
			}
			results[i] = url
			return nil
		})
	}
	_ = g.Wait()

	urls := make([]string, 0, len(results))
	for _, url := range results {
		if url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
