package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/google/uuid"
)

// MemoryReportStore is a goroutine-safe ReportStore kept in process memory.
// Every method holds the lock for its whole duration, which makes each call
// as atomic as the single statements of GormReportStore.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*models.Report
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: make(map[uuid.UUID]*models.Report)}
}

func (s *MemoryReportStore) FindOldestCanonical(ctx context.Context, appID, fingerprint string, since time.Time) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *models.Report
	for _, r := range s.reports {
		if r.AppID != appID || r.Fingerprint != fingerprint || !r.IsCanonical() || r.CreatedAt.Before(since) {
			continue
		}
		if oldest == nil || olderThan(r, oldest) {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, ErrNotFound
	}
	return cloneReport(oldest), nil
}

func (s *MemoryReportStore) Create(ctx context.Context, r *models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CanonicalID != nil {
		root, ok := s.reports[*r.CanonicalID]
		if !ok || root.AppID != r.AppID || !root.IsCanonical() {
			return ErrCanonicalNotRoot
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	s.reports[r.ID] = cloneReport(r)
	return nil
}

func (s *MemoryReportStore) GetByID(ctx context.Context, appID string, id uuid.UUID) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok || r.AppID != appID {
		return nil, ErrNotFound
	}
	return cloneReport(r), nil
}

func (s *MemoryReportStore) Update(ctx context.Context, appID string, id uuid.UUID, u ReportUpdate, now time.Time) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok || r.AppID != appID {
		return nil, ErrNotFound
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.FixStatus != nil {
		v := *u.FixStatus
		r.FixStatus = &v
	}
	if u.SuggestedFix != nil {
		v := *u.SuggestedFix
		r.SuggestedFix = &v
	}
	if u.Analysis != nil {
		r.Analysis = append(r.Analysis[:0:0], u.Analysis...)
	}
	r.UpdatedAt = now
	return cloneReport(r), nil
}

func (s *MemoryReportStore) IncrementDuplicateCount(ctx context.Context, id uuid.UUID, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok || !r.IsCanonical() {
		return ErrNotFound
	}
	r.DuplicateCount++
	r.UpdatedAt = now
	return nil
}

func (s *MemoryReportStore) List(ctx context.Context, f ListFilter) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := s.collect(func(r *models.Report) bool {
		return r.AppID == f.AppID && r.IsCanonical() &&
			(f.Status == "" || r.Status == f.Status) &&
			(f.Priority == "" || r.Priority == f.Priority)
	})
	s.mu.RUnlock()

	if f.Offset >= len(matched) {
		return []models.Report{}, nil
	}
	end := len(matched)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], nil
}

func (s *MemoryReportStore) ListDuplicates(ctx context.Context, appID string, canonicalID uuid.UUID) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(r *models.Report) bool {
		return r.AppID == appID && r.CanonicalID != nil && *r.CanonicalID == canonicalID
	}), nil
}

func (s *MemoryReportStore) Stats(ctx context.Context, appID string) (*ReportStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := map[string]int64{}
	byPriority := map[string]int64{}
	stats := &ReportStats{}
	for _, r := range s.reports {
		if r.AppID != appID || !r.IsCanonical() {
			continue
		}
		stats.Total++
		byStatus[r.Status]++
		byPriority[r.Priority]++
	}
	stats.ByStatus = sortedBuckets(byStatus)
	stats.ByPriority = sortedBuckets(byPriority)
	return stats, nil
}

// collect returns clones of matching reports, newest first. Caller holds the lock.
func (s *MemoryReportStore) collect(match func(*models.Report) bool) []models.Report {
	out := make([]models.Report, 0)
	for _, r := range s.reports {
		if match(r) {
			out = append(out, *cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return olderThan(&out[j], &out[i]) })
	return out
}

func olderThan(a, b *models.Report) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func sortedBuckets(counts map[string]int64) []Bucket {
	buckets := make([]Bucket, 0, len(counts))
	for k, v := range counts {
		buckets = append(buckets, Bucket{Key: k, Count: v})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
	return buckets
}

func cloneReport(r *models.Report) *models.Report {
	c := *r
	if r.ImageURLs != nil {
		c.ImageURLs = append(r.ImageURLs[:0:0], r.ImageURLs...)
	}
	if r.Analysis != nil {
		c.Analysis = append(r.Analysis[:0:0], r.Analysis...)
	}
	return &c
}
