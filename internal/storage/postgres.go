package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/settlement"
)

// PostgresStore is the durable implementation backed by a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Pool() *pgxpool.Pool { return p.pool }

func (p *PostgresStore) Close() { p.pool.Close() }

const requestColumns = `id, reference, requester_id, COALESCE(provider_id, ''), site_lat, site_lon,
	service_kind, urgent, price_cents, urgency_fee_cents, commission_cents, payout_cents,
	status, payment_status, payment_amount_cents, paid_at,
	created_at, assigned_at, started_at, completed_at, cancelled_at`

func scanRequest(row pgx.Row) (*models.ServiceRequest, error) {
	var r models.ServiceRequest
	err := row.Scan(
		&r.ID, &r.Reference, &r.RequesterID, &r.ProviderID, &r.Site.Lat, &r.Site.Lon,
		&r.ServiceKind, &r.Urgent, &r.PriceCents, &r.UrgencyFeeCents, &r.CommissionCents, &r.PayoutCents,
		&r.Status, &r.PaymentStatus, &r.PaymentAmountCents, &r.PaidAt,
		&r.CreatedAt, &r.AssignedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) CreateRequest(ctx context.Context, req *models.ServiceRequest) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO service_requests
			(id, reference, requester_id, site_lat, site_lon, service_kind, urgent,
			 price_cents, urgency_fee_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		req.ID, req.Reference, req.RequesterID, req.Site.Lat, req.Site.Lon, req.ServiceKind, req.Urgent,
		req.PriceCents, req.UrgencyFeeCents, req.Status, req.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

// ClaimRequest is the exclusivity point: one conditional UPDATE, no
// read-then-write. Exactly one concurrent caller sees a row come back.
func (p *PostgresStore) ClaimRequest(ctx context.Context, id, providerID string, at time.Time) (*models.ServiceRequest, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE service_requests
		SET provider_id = $1, status = $2, assigned_at = $3
		WHERE id = $4 AND status = $5
		RETURNING `+requestColumns,
		providerID, models.StatusAccepted, at, id, models.StatusPending,
	)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	return req, err
}

func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.ServiceRequest, error) {
	var stampCol string
	switch to {
	case models.StatusInProgress:
		stampCol = "started_at"
	case models.StatusCompleted:
		stampCol = "completed_at"
	case models.StatusCancelled:
		stampCol = "cancelled_at"
	case models.StatusEnRoute:
		stampCol = ""
	default:
		return nil, fmt.Errorf("unexpected target status %q", to)
	}

	sql := `UPDATE service_requests SET status = $1`
	if stampCol != "" {
		sql += `, ` + stampCol + ` = $4`
	}
	sql += ` WHERE id = $2 AND status = $3 RETURNING ` + requestColumns

	args := []any{to, id, from}
	if stampCol != "" {
		args = append(args, at)
	}
	req, err := scanRequest(p.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	return req, err
}

func (p *PostgresStore) SetPaymentStatus(ctx context.Context, id, status string, amountCents int64, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE service_requests
		SET payment_status = $1, payment_amount_cents = $2, paid_at = $3
		WHERE id = $4`,
		status, amountCents, at, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	var pr models.Provider
	err := p.pool.QueryRow(ctx, `
		SELECT id, commission_rate_bp, available, completed_count, payout_total_cents,
		       rating_avg, review_count, level
		FROM providers WHERE id = $1`, id,
	).Scan(&pr.ID, &pr.CommissionRateBp, &pr.Available, &pr.CompletedCount,
		&pr.PayoutTotalCents, &pr.RatingAvg, &pr.ReviewCount, &pr.Level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &pr, err
}

func (p *PostgresStore) GetRequester(ctx context.Context, id string) (*models.Requester, error) {
	var rq models.Requester
	err := p.pool.QueryRow(ctx, `
		SELECT id, completed_count, spend_total_cents, loyalty_points, tier
		FROM requesters WHERE id = $1`, id,
	).Scan(&rq.ID, &rq.CompletedCount, &rq.SpendTotalCents, &rq.LoyaltyPoints, &rq.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &rq, err
}

func (p *PostgresStore) UpsertProvider(ctx context.Context, pr *models.Provider) error {
	level := pr.Level
	if level == "" {
		level = settlement.LevelBeginner
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO providers (id, commission_rate_bp, available, rating_avg, review_count, level)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET commission_rate_bp = EXCLUDED.commission_rate_bp,
		    available = EXCLUDED.available,
		    rating_avg = EXCLUDED.rating_avg,
		    review_count = EXCLUDED.review_count`,
		pr.ID, pr.CommissionRateBp, pr.Available, pr.RatingAvg, pr.ReviewCount, level,
	)
	return err
}

func (p *PostgresStore) UpsertRequester(ctx context.Context, rq *models.Requester) error {
	tier := rq.Tier
	if tier == "" {
		tier = settlement.TierBronze
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO requesters (id, tier) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		rq.ID, tier,
	)
	return err
}

func (p *PostgresStore) EarningsSummary(ctx context.Context, providerID string, from, to time.Time) (*models.EarningsSummary, error) {
	var sum models.EarningsSummary
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(payout_cents), 0)
		FROM earning_records
		WHERE provider_id = $1 AND created_at BETWEEN $2 AND $3`,
		providerID, from, to,
	).Scan(&sum.Count, &sum.TotalPayoutCents)
	if err != nil {
		return nil, err
	}
	if sum.Count > 0 {
		sum.AvgPayoutCents = sum.TotalPayoutCents / sum.Count
	}
	return &sum, nil
}

// InSettlementTx scopes the settlement writes to one database transaction.
// Different requests settle independently; row locks on the two party rows
// are the only shared contention.
func (p *PostgresStore) InSettlementTx(ctx context.Context, fn func(settlement.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SetRequestAmounts(ctx context.Context, requestID string, commissionCents, payoutCents int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE service_requests SET commission_cents = $1, payout_cents = $2 WHERE id = $3`,
		commissionCents, payoutCents, requestID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertEarning(ctx context.Context, rec models.EarningRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO earning_records (id, request_id, provider_id, payout_cents, commission_rate_bp, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.RequestID, rec.ProviderID, rec.PayoutCents, rec.CommissionRateBp, rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgTx) AddProviderCompletion(ctx context.Context, providerID string, payoutCents int64) (models.ProviderAggregates, error) {
	var agg models.ProviderAggregates
	err := t.tx.QueryRow(ctx, `
		UPDATE providers
		SET completed_count = completed_count + 1,
		    payout_total_cents = payout_total_cents + $1
		WHERE id = $2
		RETURNING completed_count, payout_total_cents, rating_avg, review_count, level`,
		payoutCents, providerID,
	).Scan(&agg.CompletedCount, &agg.PayoutTotalCents, &agg.RatingAvg, &agg.ReviewCount, &agg.Level)
	if errors.Is(err, pgx.ErrNoRows) {
		return agg, ErrNotFound
	}
	return agg, err
}

func (t *pgTx) AddRequesterCompletion(ctx context.Context, requesterID string, spendCents, loyaltyPoints int64) (models.RequesterAggregates, error) {
	var agg models.RequesterAggregates
	err := t.tx.QueryRow(ctx, `
		UPDATE requesters
		SET completed_count = completed_count + 1,
		    spend_total_cents = spend_total_cents + $1,
		    loyalty_points = loyalty_points + $2
		WHERE id = $3
		RETURNING completed_count, spend_total_cents, loyalty_points, tier`,
		spendCents, loyaltyPoints, requesterID,
	).Scan(&agg.CompletedCount, &agg.SpendTotalCents, &agg.LoyaltyPoints, &agg.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return agg, ErrNotFound
	}
	return agg, err
}

func (t *pgTx) SetProviderLevel(ctx context.Context, providerID, level string) error {
	_, err := t.tx.Exec(ctx, `UPDATE providers SET level = $1 WHERE id = $2`, level, providerID)
	return err
}

func (t *pgTx) SetRequesterTier(ctx context.Context, requesterID, tier string) error {
	_, err := t.tx.Exec(ctx, `UPDATE requesters SET tier = $1 WHERE id = $2`, tier, requesterID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
