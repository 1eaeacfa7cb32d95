// Package analytics streams serving events into ClickHouse. Recording is
// best-effort: an unavailable sink is logged and never fails the request
// that produced the event.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/models"
)

// Event is one serving-funnel record.
type Event struct {
	Type       string // ad_served, no_ad, impression, click
	AdID       string
	CustomerID string
	Segment    models.Segment
	Channel    models.Channel
}

// Sink accepts events.
type Sink interface {
	RecordEvent(ctx context.Context, e Event)
}

// ClickHouseSink writes events to a ClickHouse table.
type ClickHouseSink struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// InitClickHouse connects and ensures the events table exists.
func InitClickHouse(dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	chdb, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	chdb.SetMaxOpenConns(25)
	if err := chdb.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	create := `CREATE TABLE IF NOT EXISTS ad_events (
       timestamp   DateTime,
       event_type  String,
       ad_id       String,
       customer_id String,
       segment     String,
       channel     String
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := chdb.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	logger.Info("Connected to ClickHouse")
	return &ClickHouseSink{DB: chdb, Logger: logger}, nil
}

// RecordEvent inserts one event row, logging failures.
func (s *ClickHouseSink) RecordEvent(ctx context.Context, e Event) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO ad_events (timestamp, event_type, ad_id, customer_id, segment, channel)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), e.Type, e.AdID, e.CustomerID, string(e.Segment), string(e.Channel))
	if err != nil {
		s.Logger.Warn("analytics record failed",
			zap.String("event_type", e.Type), zap.String("ad_id", e.AdID), zap.Error(err))
	}
}

// Close shuts down the connection pool.
func (s *ClickHouseSink) Close() {
	if s != nil && s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.Logger.Error("clickhouse close", zap.Error(err))
		}
	}
}
