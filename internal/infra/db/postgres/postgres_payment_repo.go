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
var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, pay_link_id, chain_id, tx_hash, from_address, amount, token_symbol, confirmed, created_at, confirmed_at`

func (r *paymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (id, pay_link_id, chain_id, tx_hash, from_address, amount, token_symbol, confirmed, created_at, confirmed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (tx_hash) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.PayLinkID, p.ChainID, p.TxHash, p.FromAddress, p.Amount, p.TokenSymbol,
		p.Confirmed, p.CreatedAt, p.ConfirmedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *paymentRepo) FindByTxHash(ctx context.Context, tx repository.Tx, txHash string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_hash=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, txHash)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindConfirmedByLink(ctx context.Context, tx repository.Tx, payLinkID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE pay_link_id=$1 AND confirmed ORDER BY confirmed_at ASC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, payLinkID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindConfirmedByLinkAndPayer(ctx context.Context, tx repository.Tx, payLinkID, payerAddress string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE pay_link_id=$1 AND LOWER(from_address)=LOWER($2) AND confirmed ORDER BY confirmed_at ASC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, payLinkID, payerAddress)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) MarkConfirmed(ctx context.Context, tx repository.Tx, id string, amount, fromAddress string, at time.Time) (bool, error) {
	const q = `
UPDATE payments SET confirmed=TRUE, amount=$2, from_address=$3, confirmed_at=$4
WHERE id=$1 AND confirmed=FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, amount, fromAddress, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE confirmed=FALSE AND created_at <= $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(
		&p.ID, &p.PayLinkID, &p.ChainID, &p.TxHash, &p.FromAddress, &p.Amount, &p.TokenSymbol,
		&p.Confirmed, &p.CreatedAt, &p.ConfirmedAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}
