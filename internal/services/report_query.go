package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type ListInput struct {
	AppID    string
	Status   string
	Priority string
	Limit    int
	Offset   int
}

type ListResult struct {
	Reports []models.Report
	Limit   int
	Offset  int
	HasMore bool
}

// Stats counts distinct issues: duplicates are never included. Every known
// status and priority is present, with zero when absent.
type Stats struct {
	Total      int64
	ByStatus   map[string]int64
	ByPriority map[string]int64
}

// ReportQueryService serves read-only views over the report ledger.
type ReportQueryService struct {
	store store.ReportStore
}

func NewReportQueryService(reports store.ReportStore) *ReportQueryService {
	return &ReportQueryService{store: reports}
}

// List returns one page of canonical reports, newest first. HasMore is true
// when the page came back full.
func (s *ReportQueryService) List(ctx context.Context, in ListInput) (*ListResult, error) {
	if err := requireApp(in.AppID); err != nil {
		return nil, err
	}
	if in.Status != "" {
		if err := oneOf("status", in.Status, models.Statuses); err != nil {
			return nil, err
		}
	}
	if in.Priority != "" {
		if err := oneOf("priority", in.Priority, models.Priorities); err != nil {
			return nil, err
		}
	}

	limit, offset := in.Limit, in.Offset
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	reports, err := s.store.List(ctx, store.ListFilter{
		AppID:    in.AppID,
		Status:   in.Status,
		Priority: in.Priority,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	return &ListResult{
		Reports: reports,
		Limit:   limit,
		Offset:  offset,
		HasMore: len(reports) == limit,
	}, nil
}

func (s *ReportQueryService) Get(ctx context.Context, appID string, id uuid.UUID) (*models.Report, error) {
	if err := requireApp(appID); err != nil {
		return nil, err
	}
	report, err := s.store.GetByID(ctx, appID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return report, nil
}

// ListDuplicates returns the duplicates of canonicalID, newest first. The
// addressed report must exist; a duplicate has no duplicates of its own.
func (s *ReportQueryService) ListDuplicates(ctx context.Context, appID string, canonicalID uuid.UUID) ([]models.Report, error) {
	if _, err := s.Get(ctx, appID, canonicalID); err != nil {
		return nil, err
	}
	reports, err := s.store.ListDuplicates(ctx, appID, canonicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicates of %s: %w", canonicalID, err)
	}
	return reports, nil
}

func (s *ReportQueryService) Stats(ctx context.Context, appID string) (*Stats, error) {
	if err := requireApp(appID); err != nil {
		return nil, err
	}
	raw, err := s.store.Stats(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute report stats: %w", err)
	}

	stats := &Stats{
		Total:      raw.Total,
		ByStatus:   zeroCounts(models.Statuses),
		ByPriority: zeroCounts(models.Priorities),
	}
	// Canonical reports never carry status duplicate.
	delete(stats.ByStatus, models.StatusDuplicate)
	for _, b := range raw.ByStatus {
		stats.ByStatus[b.Key] = b.Count
	}
	for _, b := range raw.ByPriority {
		stats.ByPriority[b.Key] = b.Count
	}
	return stats, nil
}

func zeroCounts(keys []string) map[string]int64 {
	counts := make(map[string]int64, len(keys))
	for _, k := range keys {
		counts[k] = 0
	}
	return counts
}
