package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.PayLinkRepository = (*payLinkRepo)(nil)

type payLinkRepo struct{ pool *pgxpool.Pool }

func NewPayLinkRepo(pool *pgxpool.Pool) *payLinkRepo {
	return &payLinkRepo{pool: pool}
}

const payLinkColumns = `id, target_url, description, preview, recipient_address, price, payment_options, status, used_count, max_uses, expires_at, multi_use, subscription, installment, referral, created_at, updated_at`

func (r *payLinkRepo) Save(ctx context.Context, tx repository.Tx, l *model.PayLink) error {
	const q = `
INSERT INTO pay_links (
  id, target_url, description, preview, recipient_address, price, payment_options, status, used_count, max_uses, expires_at, multi_use, subscription, installment, referral, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  target_url=$2, description=$3, preview=$4, recipient_address=$5, price=$6, payment_options=$7, status=$8, used_count=$9, max_uses=$10, expires_at=$11, multi_use=$12, subscription=$13, installment=$14, referral=$15, updated_at=$17;`

	price, err := json.Marshal(l.Price)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	options, err := json.Marshal(l.PaymentOptions)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	sub, err := marshalNullable(l.Subscription)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	inst, err := marshalNullable(l.Installment)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	ref, err := marshalNullable(l.Referral)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	if _, err := execSQL(ctx, r.pool, tx, q,
		l.ID, l.TargetURL, l.Description, l.Preview, l.RecipientAddress, price, options,
		l.Status, l.UsedCount, l.MaxUses, l.ExpiresAt, l.MultiUse, sub, inst, ref,
		l.CreatedAt, l.UpdatedAt,
	); err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *payLinkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PayLink, error) {
	q := `SELECT ` + payLinkColumns + ` FROM pay_links WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayLink(row)
}

func (r *payLinkRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.PayLink, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + payLinkColumns + ` FROM pay_links ORDER BY created_at DESC OFFSET $1 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, offset, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.PayLink
	for rows.Next() {
		l, err := scanPayLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *payLinkRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) (int, error) {
	const q = `UPDATE pay_links SET used_count = used_count + 1, updated_at = NOW() WHERE id=$1 RETURNING used_count;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapScanErr(err)
	}
	return n, nil
}

func (r *payLinkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.LinkStatus) error {
	const q = `UPDATE pay_links SET status=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPayLink(row pgx.Row) (*model.PayLink, error) {
	l := &model.PayLink{}
	var price, options, sub, inst, ref []byte
	if err := row.Scan(
		&l.ID, &l.TargetURL, &l.Description, &l.Preview, &l.RecipientAddress, &price, &options,
		&l.Status, &l.UsedCount, &l.MaxUses, &l.ExpiresAt, &l.MultiUse, &sub, &inst, &ref,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	if err := json.Unmarshal(price, &l.Price); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &l.PaymentOptions); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(sub) > 0 {
		l.Subscription = &model.SubscriptionConfig{}
		if err := json.Unmarshal(sub, l.Subscription); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(inst) > 0 {
		l.Installment = &model.InstallmentConfig{}
		if err := json.Unmarshal(inst, l.Installment); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(ref) > 0 {
		l.Referral = &model.ReferralConfig{}
		if err := json.Unmarshal(ref, l.Referral); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return l, nil
}

// marshalNullable keeps NULL columns NULL: a nil pointer marshals to nil
// bytes, not to the JSON literal null.
func marshalNullable(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case *model.SubscriptionConfig:
		if t == nil {
			return nil, nil
		}
	case *model.InstallmentConfig:
		if t == nil {
			return nil, nil
		}
	case *model.ReferralConfig:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
