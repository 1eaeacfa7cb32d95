package db

import (
	"context"
	"errors"
	"time"

	"github.com/coreledger/bankads/internal/models"
)

// ErrCatalogTimeout is returned when a catalog query exceeds its deadline
// or the catalog circuit breaker is open.
var ErrCatalogTimeout = errors.New("catalog query timed out")

// ErrAdNotFound is returned when an ad id does not exist in the catalog.
var ErrAdNotFound = errors.New("ad not found")

// Catalog is the read/mutate port over the durable ad store.
type Catalog interface {
	// FindCandidates returns active ads targeting (segment, channel) whose
	// flight dates cover now, ordered by descending priority.
	FindCandidates(ctx context.Context, segment models.Segment, channel models.Channel, now time.Time) ([]models.Ad, error)
	// FindFallback returns the single highest-priority active ad matching
	// (segment, channel), used by the degraded serve path.
	FindFallback(ctx context.Context, segment models.Segment, channel models.Channel, now time.Time) (*models.Ad, error)
	// GetAd looks up one ad by id.
	GetAd(ctx context.Context, id string) (*models.Ad, error)
	// InsertAd persists a new ad and fills in generated fields.
	InsertAd(ctx context.Context, ad *models.Ad) error
	// IncrementImpressions and IncrementClicks are best-effort atomic
	// counter bumps.
	IncrementImpressions(ctx context.Context, id string) error
	IncrementClicks(ctx context.Context, id string) error
}
