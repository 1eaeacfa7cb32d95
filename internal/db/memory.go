package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreledger/bankads/internal/models"
)

// InMemoryCatalog is a Catalog backed by a map. It backs the test suite and
// local development without Postgres.
type InMemoryCatalog struct {
	mu  sync.RWMutex
	ads map[string]models.Ad

	// QueryCount tracks FindCandidates calls so tests can assert that a
	// cache hit short-circuits the pipeline.
	QueryCount int
}

// NewInMemoryCatalog returns an empty catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{ads: make(map[string]models.Ad)}
}

func (c *InMemoryCatalog) FindCandidates(_ context.Context, segment models.Segment, channel models.Channel, now time.Time) ([]models.Ad, error) {
	c.mu.Lock()
	c.QueryCount++
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Ad
	for _, ad := range c.ads {
		if ad.Matches(segment, channel, now) {
			out = append(out, ad)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *InMemoryCatalog) FindFallback(ctx context.Context, segment models.Segment, channel models.Channel, now time.Time) (*models.Ad, error) {
	ads, err := c.FindCandidates(ctx, segment, channel, now)
	if err != nil {
		return nil, err
	}
	if len(ads) == 0 {
		return nil, ErrAdNotFound
	}
	return &ads[0], nil
}

func (c *InMemoryCatalog) GetAd(_ context.Context, id string) (*models.Ad, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ad, ok := c.ads[id]
	if !ok {
		return nil, ErrAdNotFound
	}
	return &ad, nil
}

func (c *InMemoryCatalog) InsertAd(_ context.Context, ad *models.Ad) error {
	if ad.ID == "" {
		ad.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ad.CreatedAt = now
	ad.UpdatedAt = now

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ads[ad.ID] = *ad
	return nil
}

func (c *InMemoryCatalog) IncrementImpressions(_ context.Context, id string) error {
	return c.bump(id, func(ad *models.Ad) { ad.Impressions++ })
}

func (c *InMemoryCatalog) IncrementClicks(_ context.Context, id string) error {
	return c.bump(id, func(ad *models.Ad) { ad.Clicks++ })
}

func (c *InMemoryCatalog) bump(id string, fn func(*models.Ad)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ad, ok := c.ads[id]
	if !ok {
		return ErrAdNotFound
	}
	fn(&ad)
	ad.UpdatedAt = time.Now().UTC()
	c.ads[id] = ad
	return nil
}

// Queries returns how many candidate queries have been issued.
func (c *InMemoryCatalog) Queries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.QueryCount
}
