package repository

import (
	"context"
	"time"

	"crypto-paylink/internal/domain/model"
)

// InstallmentRepository persists payment plans and their per-share rows.
type InstallmentRepository interface {
	SavePlan(ctx context.Context, tx Tx, p *model.InstallmentPlan) error
	FindPlanByID(ctx context.Context, tx Tx, id string) (*model.InstallmentPlan, error)
	// FindCurrentPlanByLinkAndBuyer returns the buyer's current plan for a
	// link, any status except cancelled, or domain.ErrNotFound. Completed
	// plans stay current so a buyer who paid in full keeps access instead
	// of being quoted a fresh plan.
	FindCurrentPlanByLinkAndBuyer(ctx context.Context, tx Tx, payLinkID, buyer string) (*model.InstallmentPlan, error)
	// ListOverduePlans returns active plans whose due date plus grace has
	// passed as of asOf.
	ListOverduePlans(ctx context.Context, tx Tx, asOf time.Time, limit int) ([]*model.InstallmentPlan, error)
	// SuspendIfActive flips an active plan to suspended and reports whether
	// the row moved.
	SuspendIfActive(ctx context.Context, tx Tx, id, reason string, at time.Time) (bool, error)

	SavePayment(ctx context.Context, tx Tx, p *model.InstallmentPayment) error
	// FindPaymentByPlanAndNumber returns the installment row for a 1-based
	// share number, or domain.ErrNotFound.
	FindPaymentByPlanAndNumber(ctx context.Context, tx Tx, planID string, number int) (*model.InstallmentPayment, error)
	ListPaymentsByPlan(ctx context.Context, tx Tx, planID string) ([]*model.InstallmentPayment, error)
}
