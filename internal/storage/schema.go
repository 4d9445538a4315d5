package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS providers (
    id TEXT PRIMARY KEY,
    commission_rate_bp BIGINT NOT NULL DEFAULT 3000,
    available BOOLEAN NOT NULL DEFAULT FALSE,
    completed_count BIGINT NOT NULL DEFAULT 0,
    payout_total_cents BIGINT NOT NULL DEFAULT 0,
    rating_avg DOUBLE PRECISION NOT NULL DEFAULT 0,
    review_count BIGINT NOT NULL DEFAULT 0,
    level TEXT NOT NULL DEFAULT 'beginner'
);

CREATE TABLE IF NOT EXISTS requesters (
    id TEXT PRIMARY KEY,
    completed_count BIGINT NOT NULL DEFAULT 0,
    spend_total_cents BIGINT NOT NULL DEFAULT 0,
    loyalty_points BIGINT NOT NULL DEFAULT 0,
    tier TEXT NOT NULL DEFAULT 'bronze'
);

CREATE TABLE IF NOT EXISTS service_requests (
    id TEXT PRIMARY KEY,
    reference TEXT NOT NULL,
    requester_id TEXT NOT NULL REFERENCES requesters(id),
    provider_id TEXT REFERENCES providers(id),
    site_lat DOUBLE PRECISION NOT NULL,
    site_lon DOUBLE PRECISION NOT NULL,
    service_kind TEXT NOT NULL,
    urgent BOOLEAN NOT NULL DEFAULT FALSE,
    price_cents BIGINT NOT NULL,
    urgency_fee_cents BIGINT NOT NULL DEFAULT 0,
    commission_cents BIGINT NOT NULL DEFAULT 0,
    payout_cents BIGINT NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    payment_status TEXT NOT NULL DEFAULT '',
    payment_amount_cents BIGINT NOT NULL DEFAULT 0,
    paid_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    assigned_at TIMESTAMPTZ,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS earning_records (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL UNIQUE REFERENCES service_requests(id),
    provider_id TEXT NOT NULL REFERENCES providers(id),
    payout_cents BIGINT NOT NULL,
    commission_rate_bp BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON service_requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_requester ON service_requests(requester_id);
CREATE INDEX IF NOT EXISTS idx_requests_provider ON service_requests(provider_id);
CREATE INDEX IF NOT EXISTS idx_earnings_provider_created ON earning_records(provider_id, created_at);
`

// InitSchema bootstraps the tables. Safe to run on every start.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
