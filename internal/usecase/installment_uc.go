package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/adapter"
	"crypto-paylink/internal/domain/ports/repository"
	"crypto-paylink/internal/infra/logging"
)

// Compile-time check
var _ InstallmentUseCase = (*installmentUC)(nil)

// InstallmentUseCase owns installment plans and their per-share rows.
type InstallmentUseCase interface {
	CreatePlan(ctx context.Context, linkID, buyer string) (*model.InstallmentPlan, error)
	GetPlan(ctx context.Context, id string) (*model.InstallmentPlan, error)
	// PlanForBuyer returns the buyer's current plan on a link, any status
	// except cancelled.
	PlanForBuyer(ctx context.Context, linkID, buyer string) (*model.InstallmentPlan, error)
	// RecordPending opens the pending row for the plan's next share. An
	// already-pending row is returned as is.
	RecordPending(ctx context.Context, tx repository.Tx, planID string) (*model.InstallmentPayment, error)
	// ApplyConfirmation settles the next share with a confirmed payment
	// inside the caller's transaction, creating the plan on first payment.
	ApplyConfirmation(ctx context.Context, tx repository.Tx, link *model.PayLink, buyer string, payment *model.Payment, now time.Time) (*model.InstallmentPlan, error)
	Suspend(ctx context.Context, id, reason string) (*model.InstallmentPlan, error)
	CancelPlan(ctx context.Context, id string) (*model.InstallmentPlan, error)
	// SweepOverdue suspends active plans whose next share slipped past its
	// grace window. Returns how many plans were suspended.
	SweepOverdue(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type installmentUC struct {
	links repository.PayLinkRepository
	plans repository.InstallmentRepository
	tm    repository.TransactionManager
	hooks adapter.WebhookSink
	log   *zerolog.Logger
}

func NewInstallmentUseCase(
	links repository.PayLinkRepository,
	plans repository.InstallmentRepository,
	tm repository.TransactionManager,
	hooks adapter.WebhookSink,
	logger *zerolog.Logger,
) *installmentUC {
	return &installmentUC{links: links, plans: plans, tm: tm, hooks: hooks, log: logger}
}

func (u *installmentUC) CreatePlan(ctx context.Context, linkID, buyer string) (*model.InstallmentPlan, error) {
	defer logging.TraceDuration(u.log, "InstallmentUC.CreatePlan")()

	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if err != nil {
		return nil, err
	}
	if link.Installment == nil {
		return nil, fmt.Errorf("%w: link %s is not installment-mode", domain.ErrInvalidArgument, linkID)
	}

	var plan *model.InstallmentPlan
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err = u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.plans.FindCurrentPlanByLinkAndBuyer(ctx, tx, linkID, buyer); err == nil {
			return fmt.Errorf("%w: installment plan already exists", domain.ErrAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		p, err := model.NewInstallmentPlan(model.NewID(), linkID, buyer, link.Price.Amount, *link.Installment, time.Now())
		if err != nil {
			return err
		}
		if err := u.plans.SavePlan(ctx, tx, p); err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("link_id", linkID).Str("plan_id", plan.ID).Int("installments", plan.TotalInstallments).Msg("installment plan created")
	return plan, nil
}

func (u *installmentUC) GetPlan(ctx context.Context, id string) (*model.InstallmentPlan, error) {
	defer logging.TraceDuration(u.log, "InstallmentUC.GetPlan")()
	return u.plans.FindPlanByID(ctx, repository.NoTX, id)
}

func (u *installmentUC) PlanForBuyer(ctx context.Context, linkID, buyer string) (*model.InstallmentPlan, error) {
	defer logging.TraceDuration(u.log, "InstallmentUC.PlanForBuyer")()
	return u.plans.FindCurrentPlanByLinkAndBuyer(ctx, repository.NoTX, linkID, buyer)
}

func (u *installmentUC) RecordPending(ctx context.Context, tx repository.Tx, planID string) (*model.InstallmentPayment, error) {
	plan, err := u.plans.FindPlanByID(ctx, tx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Terminal() {
		return nil, fmt.Errorf("%w: plan is %s", domain.ErrInvalidTransition, plan.Status)
	}

	number := plan.NextInstallmentNumber
	if existing, err := u.plans.FindPaymentByPlanAndNumber(ctx, tx, plan.ID, number); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	expected, err := plan.ExpectedAmountFor(number)
	if err != nil {
		return nil, err
	}
	row, err := model.NewInstallmentPayment(model.NewID(), plan.ID, number, expected, plan.NextDueDate, time.Now())
	if err != nil {
		return nil, err
	}
	if err := u.plans.SavePayment(ctx, tx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (u *installmentUC) ApplyConfirmation(ctx context.Context, tx repository.Tx, link *model.PayLink, buyer string, payment *model.Payment, now time.Time) (*model.InstallmentPlan, error) {
	if link.Installment == nil {
		return nil, fmt.Errorf("%w: link %s is not installment-mode", domain.ErrInvalidArgument, link.ID)
	}

	plan, err := u.plans.FindCurrentPlanByLinkAndBuyer(ctx, tx, link.ID, buyer)
	if errors.Is(err, domain.ErrNotFound) {
		plan, err = model.NewInstallmentPlan(model.NewID(), link.ID, buyer, link.Price.Amount, *link.Installment, now)
	}
	if err != nil {
		return nil, err
	}
	if plan.Terminal() {
		// An extra payment against a settled plan must not fail the
		// confirmation; the payment stays recorded and the plan stays put.
		u.log.Warn().Str("plan_id", plan.ID).Str("payment_id", payment.ID).Str("status", string(plan.Status)).Msg("payment against settled plan ignored")
		return plan, nil
	}

	number := plan.NextInstallmentNumber
	row, err := u.plans.FindPaymentByPlanAndNumber(ctx, tx, plan.ID, number)
	if errors.Is(err, domain.ErrNotFound) {
		expected, eerr := plan.ExpectedAmountFor(number)
		if eerr != nil {
			return nil, eerr
		}
		row, err = model.NewInstallmentPayment(model.NewID(), plan.ID, number, expected, plan.NextDueDate, now)
	}
	if err != nil {
		return nil, err
	}

	if err := row.Confirm(payment.ID, payment.Amount, now); err != nil {
		return nil, err
	}
	if err := plan.ApplyConfirmation(payment.Amount, now); err != nil {
		return nil, err
	}
	if err := u.plans.SavePlan(ctx, tx, plan); err != nil {
		return nil, err
	}
	if err := u.plans.SavePayment(ctx, tx, row); err != nil {
		return nil, err
	}
	return plan, nil
}

func (u *installmentUC) Suspend(ctx context.Context, id, reason string) (*model.InstallmentPlan, error) {
	return u.transition(ctx, "InstallmentUC.Suspend", id, func(p *model.InstallmentPlan, now time.Time) error {
		return p.Suspend(reason, now)
	})
}

func (u *installmentUC) CancelPlan(ctx context.Context, id string) (*model.InstallmentPlan, error) {
	return u.transition(ctx, "InstallmentUC.CancelPlan", id, func(p *model.InstallmentPlan, now time.Time) error {
		return p.Cancel(now)
	})
}

func (u *installmentUC) transition(ctx context.Context, op, id string, fn func(*model.InstallmentPlan, time.Time) error) (*model.InstallmentPlan, error) {
	defer logging.TraceDuration(u.log, op)()

	var plan *model.InstallmentPlan
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.plans.FindPlanByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(p, time.Now()); err != nil {
			return err
		}
		if err := u.plans.SavePlan(ctx, tx, p); err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (u *installmentUC) SweepOverdue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	defer logging.TraceDuration(u.log, "InstallmentUC.SweepOverdue")()

	overdue, err := u.plans.ListOverduePlans(ctx, repository.NoTX, now, batchSize)
	if err != nil {
		return 0, err
	}

	suspended := 0
	for _, p := range overdue {
		ok, err := u.plans.SuspendIfActive(ctx, repository.NoTX, p.ID, "payment overdue", now)
		if err != nil {
			u.log.Error().Err(err).Str("plan_id", p.ID).Msg("sweep: suspend failed")
			continue
		}
		if !ok {
			// A concurrent payment reactivated or completed the plan.
			continue
		}
		suspended++
		u.hooks.QueueEvent(adapter.EventInstallmentSuspended, map[string]any{
			"planId":      p.ID,
			"payLinkId":   p.PayLinkID,
			"installment": p.NextInstallmentNumber,
			"dueDate":     p.NextDueDate.Format(time.RFC3339),
		})
	}
	return suspended, nil
}
