package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ReferralRepository = (*referralRepo)(nil)

type referralRepo struct{ pool *pgxpool.Pool }

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

const referralColumns = `id, code, referrer_address, pay_link_id, total_referrals, confirmed_referrals, total_earned, pending_amount, paid_amount, status, created_at, updated_at`

func (r *referralRepo) Save(ctx context.Context, tx repository.Tx, ref *model.Referral) error {
	const q = `
INSERT INTO referrals (
  id, code, referrer_address, pay_link_id, total_referrals, confirmed_referrals, total_earned, pending_amount, paid_amount, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  total_referrals=$5, confirmed_referrals=$6, total_earned=$7, pending_amount=$8, paid_amount=$9, status=$10, updated_at=$12;`
	if _, err := execSQL(ctx, r.pool, tx, q,
		ref.ID, ref.Code, ref.ReferrerAddress, ref.PayLinkID,
		ref.TotalReferrals, ref.ConfirmedReferrals, ref.TotalEarned, ref.PendingAmount, ref.PaidAmount,
		ref.Status, ref.CreatedAt, ref.UpdatedAt,
	); err != nil {
		if uniqueViolation(err) {
			if violatedConstraint(err) == "referrals_code_key" {
				return domain.ErrCodeTaken
			}
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *referralRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanReferral(row)
}

func (r *referralRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals WHERE LOWER(code)=LOWER($1)`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanReferral(row)
}

func (r *referralRepo) FindByLinkAndReferrer(ctx context.Context, tx repository.Tx, payLinkID, referrer string) (*model.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals WHERE pay_link_id=$1 AND LOWER(referrer_address)=LOWER($2);`
	row, err := pickRow(ctx, r.pool, tx, q, payLinkID, referrer)
	if err != nil {
		return nil, err
	}
	return scanReferral(row)
}

func (r *referralRepo) ListByLink(ctx context.Context, tx repository.Tx, payLinkID string) ([]*model.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals WHERE pay_link_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, payLinkID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

const commissionColumns = `id, referral_id, payment_id, referrer_address, referred_address, commission_amount, commission_percent, status, created_at, confirmed_at, paid_at`

func (r *referralRepo) SaveCommission(ctx context.Context, tx repository.Tx, c *model.ReferralCommission) error {
	const q = `
INSERT INTO referral_commissions (
  id, referral_id, payment_id, referrer_address, referred_address, commission_amount, commission_percent, status, created_at, confirmed_at, paid_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status=$8, confirmed_at=$10, paid_at=$11;`
	if _, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.ReferralID, c.PaymentID, c.ReferrerAddress, c.ReferredAddress,
		c.CommissionAmount, c.CommissionPercent, c.Status, c.CreatedAt, c.ConfirmedAt, c.PaidAt,
	); err != nil {
		if uniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *referralRepo) FindCommissionByID(ctx context.Context, tx repository.Tx, id string) (*model.ReferralCommission, error) {
	q := `SELECT ` + commissionColumns + ` FROM referral_commissions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCommission(row)
}

func (r *referralRepo) FindCommissionByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.ReferralCommission, error) {
	q := `SELECT ` + commissionColumns + ` FROM referral_commissions WHERE payment_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return nil, err
	}
	return scanCommission(row)
}

func (r *referralRepo) ListCommissionsByReferral(ctx context.Context, tx repository.Tx, referralID string) ([]*model.ReferralCommission, error) {
	q := `SELECT ` + commissionColumns + ` FROM referral_commissions WHERE referral_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, referralID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.ReferralCommission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanReferral(row pgx.Row) (*model.Referral, error) {
	ref := &model.Referral{}
	if err := row.Scan(
		&ref.ID, &ref.Code, &ref.ReferrerAddress, &ref.PayLinkID,
		&ref.TotalReferrals, &ref.ConfirmedReferrals, &ref.TotalEarned, &ref.PendingAmount, &ref.PaidAmount,
		&ref.Status, &ref.CreatedAt, &ref.UpdatedAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	return ref, nil
}

func scanCommission(row pgx.Row) (*model.ReferralCommission, error) {
	c := &model.ReferralCommission{}
	if err := row.Scan(
		&c.ID, &c.ReferralID, &c.PaymentID, &c.ReferrerAddress, &c.ReferredAddress,
		&c.CommissionAmount, &c.CommissionPercent, &c.Status, &c.CreatedAt, &c.ConfirmedAt, &c.PaidAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	return c, nil
}
