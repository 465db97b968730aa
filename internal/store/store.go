// Package store persists reports. The database is the only shared mutable
// state in the service, so every invariant that must hold across concurrent
// requests is enforced here with single-statement operations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	// ErrNotFound is returned when the addressed report does not exist in the app.
	ErrNotFound = errors.New("not found")

	// ErrCanonicalNotRoot is returned when a duplicate would point at a report
	// that is itself a duplicate, or at a report that does not exist.
	ErrCanonicalNotRoot = errors.New("canonical report is not a root")
)

// ReportUpdate carries the mutable classification fields. Nil means "leave as is".
type ReportUpdate struct {
	Status       *string
	FixStatus    *string
	SuggestedFix *string
	Analysis     datatypes.JSON
}

// IsEmpty reports whether no field is set.
func (u ReportUpdate) IsEmpty() bool {
	return u.Status == nil && u.FixStatus == nil && u.SuggestedFix == nil && u.Analysis == nil
}

// ListFilter selects a page of canonical reports for one app.
type ListFilter struct {
	AppID    string
	Status   string
	Priority string
	Limit    int
	Offset   int
}

// Bucket is one row of a grouped count.
type Bucket struct {
	Key   string
	Count int64
}

// ReportStats counts canonical reports of one app.
type ReportStats struct {
	Total      int64
	ByStatus   []Bucket
	ByPriority []Bucket
}

// ReportStore is the durable report ledger.
type ReportStore interface {
	// FindOldestCanonical returns the earliest-created canonical report of the
	// app with the given fingerprint and created_at >= since, or ErrNotFound.
	FindOldestCanonical(ctx context.Context, appID, fingerprint string, since time.Time) (*models.Report, error)

	// Create inserts r. When r.CanonicalID is set, the target must be a
	// canonical report of the same app, otherwise ErrCanonicalNotRoot.
	Create(ctx context.Context, r *models.Report) error

	GetByID(ctx context.Context, appID string, id uuid.UUID) (*models.Report, error)

	// Update applies the set fields of u and returns the fresh record.
	Update(ctx context.Context, appID string, id uuid.UUID, u ReportUpdate, now time.Time) (*models.Report, error)

	// IncrementDuplicateCount adds one to a canonical report's duplicate_count
	// in a single statement. ErrNotFound if no canonical report has that id.
	IncrementDuplicateCount(ctx context.Context, id uuid.UUID, now time.Time) error

	// List returns canonical reports only, newest first.
	List(ctx context.Context, f ListFilter) ([]models.Report, error)

	// ListDuplicates returns the reports pointing at canonicalID, newest first.
	ListDuplicates(ctx context.Context, appID string, canonicalID uuid.UUID) ([]models.Report, error)

	// Stats groups canonical reports by status and by priority.
	Stats(ctx context.Context, appID string) (*ReportStats, error)
}
