package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReportStore implements ReportStore on a relational database through GORM.
type GormReportStore struct {
	db *gorm.DB
}

func NewGormReportStore(db *gorm.DB) *GormReportStore {
	return &GormReportStore{db: db}
}

type bucketRow struct {
	Key   string `gorm:"column:bucket_key"`
	Count int64  `gorm:"column:bucket_count"`
}

func (s *GormReportStore) canonical(ctx context.Context, appID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Report{}).
		Scopes(tenant.ForTenant(appID)).
		Where("canonical_id IS NULL")
}

func (s *GormReportStore) FindOldestCanonical(ctx context.Context, appID, fingerprint string, since time.Time) (*models.Report, error) {
	var report models.Report
	err := s.canonical(ctx, appID).
		Where("fingerprint = ? AND created_at >= ?", fingerprint, since).
		Order("created_at ASC, id ASC").
		Take(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find canonical report: %w", err)
	}
	return &report, nil
}

func (s *GormReportStore) Create(ctx context.Context, r *models.Report) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.CanonicalID != nil {
			// canonical_id never changes after insert, so a root stays a root.
			var roots int64
			if err := tx.Model(&models.Report{}).
				Scopes(tenant.ForTenant(r.AppID)).
				Where("id = ? AND canonical_id IS NULL", *r.CanonicalID).
				Count(&roots).Error; err != nil {
				return fmt.Errorf("failed to check canonical report: %w", err)
			}
			if roots == 0 {
				return ErrCanonicalNotRoot
			}
		}
		if err := tx.Create(r).Error; err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		return nil
	})
}

func (s *GormReportStore) GetByID(ctx context.Context, appID string, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	err := s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID)).Where("id = ?", id).Take(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

func (s *GormReportStore) Update(ctx context.Context, appID string, id uuid.UUID, u ReportUpdate, now time.Time) (*models.Report, error) {
	updates := map[string]interface{}{"updated_at": now}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.FixStatus != nil {
		updates["fix_status"] = *u.FixStatus
	}
	if u.SuggestedFix != nil {
		updates["suggested_fix"] = *u.SuggestedFix
	}
	if u.Analysis != nil {
		updates["analysis"] = u.Analysis
	}

	result := s.db.WithContext(ctx).
		Model(&models.Report{}).
		Scopes(tenant.ForTenant(appID)).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, appID, id)
}

func (s *GormReportStore) IncrementDuplicateCount(ctx context.Context, id uuid.UUID, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND canonical_id IS NULL", id).
		UpdateColumns(map[string]interface{}{
			"duplicate_count": gorm.Expr("duplicate_count + ?", 1),
			"updated_at":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment duplicate count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormReportStore) List(ctx context.Context, f ListFilter) ([]models.Report, error) {
	query := s.canonical(ctx, f.AppID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		query = query.Where("priority = ?", f.Priority)
	}

	var reports []models.Report
	if err := query.Order("created_at DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

func (s *GormReportStore) ListDuplicates(ctx context.Context, appID string, canonicalID uuid.UUID) ([]models.Report, error) {
	var reports []models.Report
	err := s.db.WithContext(ctx).
		Scopes(tenant.ForTenant(appID)).
		Where("canonical_id = ?", canonicalID).
		Order("created_at DESC, id DESC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicates: %w", err)
	}
	return reports, nil
}

func (s *GormReportStore) Stats(ctx context.Context, appID string) (*ReportStats, error) {
	stats := &ReportStats{}
	if err := s.canonical(ctx, appID).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	var err error
	if stats.ByStatus, err = s.groupCount(ctx, appID, "status"); err != nil {
		return nil, err
	}
	if stats.ByPriority, err = s.groupCount(ctx, appID, "priority"); err != nil {
		return nil, err
	}
	return stats, nil
}

// groupCount counts canonical reports per distinct value of column, which
// must be a trusted column name.
func (s *GormReportStore) groupCount(ctx context.Context, appID, column string) ([]Bucket, error) {
	var rows []bucketRow
	err := s.canonical(ctx, appID).
		Select(column + " AS bucket_key, COUNT(*) AS bucket_count").
		Group(column).
		Order(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group reports by %s: %w", column, err)
	}

	buckets := make([]Bucket, len(rows))
	for i, row := range rows {
		buckets[i] = Bucket{Key: row.Key, Count: row.Count}
	}
	return buckets, nil
}
