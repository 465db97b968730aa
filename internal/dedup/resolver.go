package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/store"
)

// DefaultWindow is how far back a new report may match an existing one.
const DefaultWindow = 7 * 24 * time.Hour

// CanonicalFinder is the single indexed lookup the resolver needs.
type CanonicalFinder interface {
	FindOldestCanonical(ctx context.Context, appID, fingerprint string, since time.Time) (*models.Report, error)
}

// Resolver finds the canonical report a new submission duplicates.
//
// Resolution is read-only and takes no lock: two concurrent first submissions
// of the same fingerprint can both miss and both become canonical. Every later
// submission resolves to the older of the two, so the split is bounded by the
// number of submissions that raced and stops growing once the first insert is
// visible.
type Resolver struct {
	finder CanonicalFinder
	window time.Duration
}

func NewResolver(finder CanonicalFinder, window time.Duration) *Resolver {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Resolver{finder: finder, window: window}
}

func (r *Resolver) Window() time.Duration {
	return r.window
}

// FindCanonicalMatch returns the oldest canonical report of appID with the
// given fingerprint created at or after now minus the window. ok is false when
// nothing matches.
func (r *Resolver) FindCanonicalMatch(ctx context.Context, fingerprint, appID string, now time.Time) (match *models.Report, ok bool, err error) {
	match, err = r.finder.FindOldestCanonical(ctx, appID, fingerprint, now.Add(-r.window))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve canonical report: %w", err)
	}
	return match, true, nil
}
