package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.InstallmentRepository = (*installmentRepo)(nil)

type installmentRepo struct{ pool *pgxpool.Pool }

func NewInstallmentRepo(pool *pgxpool.Pool) *installmentRepo {
	return &installmentRepo{pool: pool}
}

const planColumns = `id, pay_link_id, buyer_address, status, total_amount, paid_amount, total_installments, completed_installments, installment_amounts, interval_days, grace_period_days, next_due_date, next_installment_number, created_at, updated_at, activated_at, completed_at, suspended_at, suspend_reason, cancelled_at`

func (r *installmentRepo) SavePlan(ctx context.Context, tx repository.Tx, p *model.InstallmentPlan) error {
	const q = `
INSERT INTO installment_plans (
  id, pay_link_id, buyer_address, status, total_amount, paid_amount, total_installments, completed_installments, installment_amounts, interval_days, grace_period_days, next_due_date, next_installment_number, created_at, updated_at, activated_at, completed_at, suspended_at, suspend_reason, cancelled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  status=$4, paid_amount=$6, completed_installments=$8, next_due_date=$12, next_installment_number=$13, updated_at=$15, activated_at=$16, completed_at=$17, suspended_at=$18, suspend_reason=$19, cancelled_at=$20;`

	amounts, err := json.Marshal(p.InstallmentAmounts)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	if _, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.PayLinkID, p.BuyerAddress, p.Status, p.TotalAmount, p.PaidAmount,
		p.TotalInstallments, p.CompletedInstallments, amounts, p.IntervalDays, p.GracePeriodDays,
		p.NextDueDate, p.NextInstallmentNumber, p.CreatedAt, p.UpdatedAt,
		p.ActivatedAt, p.CompletedAt, p.SuspendedAt, p.SuspendReason, p.CancelledAt,
	); err != nil {
		if uniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *installmentRepo) FindPlanByID(ctx context.Context, tx repository.Tx, id string) (*model.InstallmentPlan, error) {
	q := `SELECT ` + planColumns + ` FROM installment_plans WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *installmentRepo) FindCurrentPlanByLinkAndBuyer(ctx context.Context, tx repository.Tx, payLinkID, buyer string) (*model.InstallmentPlan, error) {
	q := `
SELECT ` + planColumns + ` FROM installment_plans
WHERE pay_link_id=$1 AND LOWER(buyer_address)=LOWER($2) AND status <> 'cancelled'
ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, payLinkID, buyer)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *installmentRepo) ListOverduePlans(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.InstallmentPlan, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
SELECT ` + planColumns + ` FROM installment_plans
WHERE status='active' AND next_due_date + make_interval(days => grace_period_days) <= $1
ORDER BY next_due_date ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, asOf, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.InstallmentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
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

func (r *installmentRepo) SuspendIfActive(ctx context.Context, tx repository.Tx, id, reason string, at time.Time) (bool, error) {
	const q = `
UPDATE installment_plans SET status='suspended', suspend_reason=$2, suspended_at=$3, updated_at=$3
WHERE id=$1 AND status='active';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, reason, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

const installmentPaymentColumns = `id, plan_id, payment_id, installment_number, amount, expected_amount, status, due_date, created_at, confirmed_at`

func (r *installmentRepo) SavePayment(ctx context.Context, tx repository.Tx, p *model.InstallmentPayment) error {
	const q = `
INSERT INTO installment_payments (id, plan_id, payment_id, installment_number, amount, expected_amount, status, due_date, created_at, confirmed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  payment_id=$3, amount=$5, status=$7, confirmed_at=$10;`
	if _, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.PlanID, p.PaymentID, p.InstallmentNumber, p.Amount, p.ExpectedAmount,
		p.Status, p.DueDate, p.CreatedAt, p.ConfirmedAt,
	); err != nil {
		if uniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *installmentRepo) FindPaymentByPlanAndNumber(ctx context.Context, tx repository.Tx, planID string, number int) (*model.InstallmentPayment, error) {
	q := `SELECT ` + installmentPaymentColumns + ` FROM installment_payments WHERE plan_id=$1 AND installment_number=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, planID, number)
	if err != nil {
		return nil, err
	}
	return scanInstallmentPayment(row)
}

func (r *installmentRepo) ListPaymentsByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.InstallmentPayment, error) {
	q := `SELECT ` + installmentPaymentColumns + ` FROM installment_payments WHERE plan_id=$1 ORDER BY installment_number ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, planID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.InstallmentPayment
	for rows.Next() {
		p, err := scanInstallmentPayment(rows)
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

func scanPlan(row pgx.Row) (*model.InstallmentPlan, error) {
	p := &model.InstallmentPlan{}
	var amounts []byte
	if err := row.Scan(
		&p.ID, &p.PayLinkID, &p.BuyerAddress, &p.Status, &p.TotalAmount, &p.PaidAmount,
		&p.TotalInstallments, &p.CompletedInstallments, &amounts, &p.IntervalDays, &p.GracePeriodDays,
		&p.NextDueDate, &p.NextInstallmentNumber, &p.CreatedAt, &p.UpdatedAt,
		&p.ActivatedAt, &p.CompletedAt, &p.SuspendedAt, &p.SuspendReason, &p.CancelledAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	if len(amounts) > 0 {
		if err := json.Unmarshal(amounts, &p.InstallmentAmounts); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return p, nil
}

func scanInstallmentPayment(row pgx.Row) (*model.InstallmentPayment, error) {
	p := &model.InstallmentPayment{}
	if err := row.Scan(
		&p.ID, &p.PlanID, &p.PaymentID, &p.InstallmentNumber, &p.Amount, &p.ExpectedAmount,
		&p.Status, &p.DueDate, &p.CreatedAt, &p.ConfirmedAt,
	); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}
