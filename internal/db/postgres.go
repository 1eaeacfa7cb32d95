package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/models"
)

// schemaSQL sets up the ads table if it doesn't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS ads (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    image_url        TEXT NOT NULL,
    video_url        TEXT,
    cta              TEXT,
    segments         TEXT[] NOT NULL,
    channels         TEXT[] NOT NULL DEFAULT '{ATM}',
    locations        TEXT[],
    time_slots       TEXT[],
    start_date       TIMESTAMPTZ NOT NULL,
    end_date         TIMESTAMPTZ NOT NULL,
    status           TEXT NOT NULL DEFAULT 'active',
    priority         DOUBLE PRECISION NOT NULL DEFAULT 1,
    impressions      BIGINT NOT NULL DEFAULT 0,
    clicks           BIGINT NOT NULL DEFAULT 0,
    advertiser_name  TEXT,
    advertiser_email TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ads_serving ON ads (status, start_date, end_date);`

const adColumns = `id, title, image_url, video_url, cta, segments, channels, locations,
	time_slots, start_date, end_date, status, priority, impressions, clicks,
	advertiser_name, advertiser_email, created_at, updated_at`

// PostgresCatalog implements Catalog on top of Postgres. Queries run under
// a soft deadline and behind a circuit breaker so a slow catalog degrades
// to the serve fallback path instead of stalling every request.
type PostgresCatalog struct {
	DB           *sql.DB
	queryTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker
}

// InitPostgres connects, applies the schema, and wires the circuit breaker.
func InitPostgres(dsn string, maxOpen, maxIdle int, connMaxLifetime, queryTimeout time.Duration) (*PostgresCatalog, error) {
	database, err := otelsql.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	database.SetMaxOpenConns(maxOpen)
	database.SetMaxIdleConns(maxIdle)
	database.SetConnMaxLifetime(connMaxLifetime)

	if err := database.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := database.ExecContext(context.Background(), schemaSQL); err != nil {
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	zap.L().Info("Connected to Postgres")
	return &PostgresCatalog{
		DB:           database,
		queryTimeout: queryTimeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ad-catalog",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A missing ad is a healthy answer, not a catalog failure.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrAdNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				zap.L().Warn("catalog breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}, nil
}

// execute runs fn under the query deadline and the breaker, normalising
// deadline and open-breaker failures to ErrCatalogTimeout.
func (p *PostgresCatalog) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	out, err := p.breaker.Execute(func() (any, error) {
		qctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
		return fn(qctx)
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.DeadlineExceeded):
		return nil, ErrCatalogTimeout
	default:
		return nil, err
	}
}

// FindCandidates returns active ads matching (segment, channel) whose flight
// dates cover now, ordered by descending priority.
func (p *PostgresCatalog) FindCandidates(ctx context.Context, segment models.Segment, channel models.Channel, now time.Time) ([]models.Ad, error) {
	out, err := p.execute(ctx, func(qctx context.Context) (any, error) {
		rows, err := p.DB.QueryContext(qctx, `SELECT `+adColumns+` FROM ads
			WHERE status = 'active'
			  AND $1 = ANY(segments)
			  AND $2 = ANY(channels)
			  AND start_date <= $3 AND end_date >= $3
			ORDER BY priority DESC`, string(segment), string(channel), now)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		return scanAds(rows)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.Ad), nil
}

// FindFallback returns the single highest-priority active ad matching
// (segment, channel) for the degraded serve path.
func (p *PostgresCatalog) FindFallback(ctx context.Context, segment models.Segment, channel models.Channel, now time.Time) (*models.Ad, error) {
	out, err := p.execute(ctx, func(qctx context.Context) (any, error) {
		rows, err := p.DB.QueryContext(qctx, `SELECT `+adColumns+` FROM ads
			WHERE status = 'active'
			  AND $1 = ANY(segments)
			  AND $2 = ANY(channels)
			  AND start_date <= $3 AND end_date >= $3
			ORDER BY priority DESC
			LIMIT 1`, string(segment), string(channel), now)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		ads, err := scanAds(rows)
		if err != nil {
			return nil, err
		}
		if len(ads) == 0 {
			return nil, ErrAdNotFound
		}
		return &ads[0], nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Ad), nil
}

// GetAd looks up one ad by id.
func (p *PostgresCatalog) GetAd(ctx context.Context, id string) (*models.Ad, error) {
	out, err := p.execute(ctx, func(qctx context.Context) (any, error) {
		rows, err := p.DB.QueryContext(qctx, `SELECT `+adColumns+` FROM ads WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		ads, err := scanAds(rows)
		if err != nil {
			return nil, err
		}
		if len(ads) == 0 {
			return nil, ErrAdNotFound
		}
		return &ads[0], nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Ad), nil
}

// InsertAd persists a new ad, generating its id and timestamps.
func (p *PostgresCatalog) InsertAd(ctx context.Context, ad *models.Ad) error {
	if ad.ID == "" {
		ad.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ad.CreatedAt = now
	ad.UpdatedAt = now

	var advName, advEmail sql.NullString
	if ad.Advertiser != nil {
		advName = sql.NullString{String: ad.Advertiser.Name, Valid: true}
		advEmail = sql.NullString{String: ad.Advertiser.ContactEmail, Valid: ad.Advertiser.ContactEmail != ""}
	}

	_, err := p.execute(ctx, func(qctx context.Context) (any, error) {
		return p.DB.ExecContext(qctx, `INSERT INTO ads (`+adColumns+`)
			VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			ad.ID, ad.Title, ad.ImageURL, ad.VideoURL, ad.CTA,
			pq.Array(segmentStrings(ad.Segments)), pq.Array(channelStrings(ad.Channels)),
			pq.Array(ad.Locations), pq.Array(slotStrings(ad.TimeSlots)),
			ad.StartDate, ad.EndDate, string(ad.Status), ad.Priority,
			ad.Impressions, ad.Clicks, advName, advEmail, ad.CreatedAt, ad.UpdatedAt)
	})
	return err
}

// IncrementImpressions bumps the impression counter for an ad.
func (p *PostgresCatalog) IncrementImpressions(ctx context.Context, id string) error {
	return p.increment(ctx, id, "impressions")
}

// IncrementClicks bumps the click counter for an ad.
func (p *PostgresCatalog) IncrementClicks(ctx context.Context, id string) error {
	return p.increment(ctx, id, "clicks")
}

func (p *PostgresCatalog) increment(ctx context.Context, id, column string) error {
	// column is one of two compile-time constants, never user input
	_, err := p.execute(ctx, func(qctx context.Context) (any, error) {
		res, err := p.DB.ExecContext(qctx,
			`UPDATE ads SET `+column+` = `+column+` + 1, updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, ErrAdNotFound
		}
		return nil, nil
	})
	return err
}

// Close shuts down the connection pool.
func (p *PostgresCatalog) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func scanAds(rows *sql.Rows) ([]models.Ad, error) {
	var ads []models.Ad
	for rows.Next() {
		var (
			ad                 models.Ad
			videoURL, cta      sql.NullString
			segments, channels pq.StringArray
			locations, slots   pq.StringArray
			advName, advEmail  sql.NullString
		)
		if err := rows.Scan(&ad.ID, &ad.Title, &ad.ImageURL, &videoURL, &cta,
			&segments, &channels, &locations, &slots,
			&ad.StartDate, &ad.EndDate, (*string)(&ad.Status), &ad.Priority,
			&ad.Impressions, &ad.Clicks, &advName, &advEmail,
			&ad.CreatedAt, &ad.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		ad.VideoURL = videoURL.String
		ad.CTA = cta.String
		for _, s := range segments {
			ad.Segments = append(ad.Segments, models.Segment(s))
		}
		for _, c := range channels {
			ad.Channels = append(ad.Channels, models.Channel(c))
		}
		ad.Locations = []string(locations)
		for _, s := range slots {
			ad.TimeSlots = append(ad.TimeSlots, models.TimeSlot(s))
		}
		if advName.Valid {
			ad.Advertiser = &models.Advertiser{Name: advName.String, ContactEmail: advEmail.String}
		}
		ads = append(ads, ad)
	}
	return ads, rows.Err()
}

func segmentStrings(in []models.Segment) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func channelStrings(in []models.Channel) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func slotStrings(in []models.TimeSlot) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
