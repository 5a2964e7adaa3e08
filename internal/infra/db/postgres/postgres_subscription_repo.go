package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, pay_link_id, subscriber_address, status, trial_ends_at, current_period_start, current_period_end, next_payment_due, cycle_count, created_at, updated_at, cancelled_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, pay_link_id, subscriber_address, status, trial_ends_at, current_period_start, current_period_end, next_payment_due, cycle_count, created_at, updated_at, cancelled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status=$4, trial_ends_at=$5, current_period_start=$6, current_period_end=$7, next_payment_due=$8, cycle_count=$9, updated_at=$11, cancelled_at=$12;`
	if _, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.PayLinkID, s.SubscriberAddress, s.Status, s.TrialEndsAt,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextPaymentDue, s.CycleCount,
		s.CreatedAt, s.UpdatedAt, s.CancelledAt,
	); err != nil {
		if uniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindCurrentByLinkAndSubscriber(ctx context.Context, tx repository.Tx, payLinkID, subscriber string) (*model.Subscription, error) {
	q := `
SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE pay_link_id=$1 AND LOWER(subscriber_address)=LOWER($2) AND status NOT IN ('cancelled','expired')
ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, payLinkID, subscriber)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindLatestByLinkAndSubscriber(ctx context.Context, tx repository.Tx, payLinkID, subscriber string) (*model.Subscription, error) {
	q := `
SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE pay_link_id=$1 AND LOWER(subscriber_address)=LOWER($2)
ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, payLinkID, subscriber)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status='active' AND next_payment_due <= $1 ORDER BY next_payment_due ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, asOf, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus, at time.Time) (bool, error) {
	const q = `UPDATE subscriptions SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, from, to, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(
		&s.ID, &s.PayLinkID, &s.SubscriberAddress, &s.Status, &s.TrialEndsAt,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.NextPaymentDue, &s.CycleCount,
		&s.CreatedAt, &s.UpdatedAt, &s.CancelledAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	return s, nil
}
