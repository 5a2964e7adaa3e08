package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crypto-paylink/internal/domain"
)

type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanActive    PlanStatus = "active"
	PlanSuspended PlanStatus = "suspended"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

type InstallmentPaymentStatus string

const (
	InstallmentPaymentPending   InstallmentPaymentStatus = "pending"
	InstallmentPaymentConfirmed InstallmentPaymentStatus = "confirmed"
	InstallmentPaymentFailed    InstallmentPaymentStatus = "failed"
)

// InstallmentPlan splits a link's price into a down payment plus equal
// follow-up payments on a fixed day interval.
type InstallmentPlan struct {
	ID                    string
	PayLinkID             string
	BuyerAddress          string
	Status                PlanStatus
	TotalAmount           string
	PaidAmount            string
	TotalInstallments     int
	CompletedInstallments int
	InstallmentAmounts    []string // index 0 is the down payment
	IntervalDays          int
	GracePeriodDays       int
	NextDueDate           time.Time
	NextInstallmentNumber int // 1-based
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ActivatedAt           *time.Time
	CompletedAt           *time.Time
	SuspendedAt           *time.Time
	SuspendReason         string
	CancelledAt           *time.Time
}

// InstallmentPayment is one attempt at one installment slot.
type InstallmentPayment struct {
	ID                string
	PlanID            string
	PaymentID         string // on-chain Payment that settled this slot
	InstallmentNumber int    // 1-based
	Amount            string // actual received, set on confirmation
	ExpectedAmount    string
	Status            InstallmentPaymentStatus
	DueDate           time.Time
	CreatedAt         time.Time
	ConfirmedAt       *time.Time
}

// InstallmentSchedule computes the quoted amounts: the down payment is
// total*downPercent/100, the remaining (n-1) shares split the rest evenly.
// Each share is rounded independently, so the quoted sum may drift from
// the total by a few units of the smallest denomination. The drift stays;
// completion is counted in confirmed installments, not summed amounts.
func InstallmentSchedule(total string, n int, downPercent float64) ([]string, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 installments", domain.ErrInvalidArgument)
	}
	if downPercent <= 0 || downPercent >= 100 {
		return nil, fmt.Errorf("%w: down payment percent", domain.ErrInvalidArgument)
	}
	t, err := ParsePositiveAmount(total)
	if err != nil {
		return nil, err
	}
	down := t.Mul(decimal.NewFromFloat(downPercent)).Div(decimal.NewFromInt(100)).Round(AmountScale)
	rest := t.Sub(down).Div(decimal.NewFromInt(int64(n - 1))).Round(AmountScale)

	out := make([]string, n)
	out[0] = FormatScheduleAmount(down)
	for i := 1; i < n; i++ {
		out[i] = FormatScheduleAmount(rest)
	}
	return out, nil
}

// NewInstallmentPlan builds a pending plan with its full schedule. The
// k-th installment (0-based) falls due k*intervalDays after creation, so
// the down payment is due immediately.
func NewInstallmentPlan(id, payLinkID, buyer, total string, cfg InstallmentConfig, now time.Time) (*InstallmentPlan, error) {
	if id == "" || payLinkID == "" || buyer == "" {
		return nil, domain.ErrInvalidArgument
	}
	if cfg.IntervalDays < 1 || cfg.GracePeriodDays < 0 {
		return nil, fmt.Errorf("%w: installment schedule", domain.ErrInvalidArgument)
	}
	amounts, err := InstallmentSchedule(total, cfg.TotalInstallments, cfg.DownPaymentPercent)
	if err != nil {
		return nil, err
	}
	return &InstallmentPlan{
		ID:                    id,
		PayLinkID:             payLinkID,
		BuyerAddress:          buyer,
		Status:                PlanPending,
		TotalAmount:           total,
		PaidAmount:            "0",
		TotalInstallments:     cfg.TotalInstallments,
		InstallmentAmounts:    amounts,
		IntervalDays:          cfg.IntervalDays,
		GracePeriodDays:       cfg.GracePeriodDays,
		NextDueDate:           now,
		NextInstallmentNumber: 1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// Terminal reports whether the plan can no longer move.
func (p *InstallmentPlan) Terminal() bool {
	return p.Status == PlanCompleted || p.Status == PlanCancelled
}

// ExpectedAmountFor returns the quoted amount of a 1-based installment.
func (p *InstallmentPlan) ExpectedAmountFor(number int) (string, error) {
	if number < 1 || number > len(p.InstallmentAmounts) {
		return "", fmt.Errorf("%w: installment number %d", domain.ErrInvalidArgument, number)
	}
	return p.InstallmentAmounts[number-1], nil
}

// ApplyConfirmation settles the next installment with the actual received
// amount. The first confirmation activates a pending plan; confirming the
// last one completes it; anything in between advances the schedule. A
// suspended plan that receives a payment reactivates.
func (p *InstallmentPlan) ApplyConfirmation(actual string, now time.Time) error {
	if p.Terminal() {
		return fmt.Errorf("%w: plan is %s", domain.ErrInvalidTransition, p.Status)
	}
	paid, err := AddAmounts(p.PaidAmount, actual)
	if err != nil {
		return err
	}
	p.PaidAmount = paid
	p.CompletedInstallments++

	if p.Status == PlanPending {
		p.Status = PlanActive
		p.ActivatedAt = &now
	}
	if p.CompletedInstallments >= p.TotalInstallments {
		p.Status = PlanCompleted
		p.CompletedAt = &now
	} else {
		p.NextInstallmentNumber++
		p.NextDueDate = p.NextDueDate.AddDate(0, 0, p.IntervalDays)
		if p.Status == PlanSuspended {
			p.Status = PlanActive
			p.SuspendReason = ""
			p.SuspendedAt = nil
		}
	}
	p.UpdatedAt = now
	return nil
}

// Suspend freezes an active plan, keeping the reason for the audit trail.
func (p *InstallmentPlan) Suspend(reason string, now time.Time) error {
	if p.Status != PlanActive {
		return fmt.Errorf("%w: suspend requires active, have %s", domain.ErrInvalidTransition, p.Status)
	}
	p.Status = PlanSuspended
	p.SuspendReason = reason
	p.SuspendedAt = &now
	p.UpdatedAt = now
	return nil
}

// Cancel ends the plan from any state except completed or cancelled.
func (p *InstallmentPlan) Cancel(now time.Time) error {
	if p.Terminal() {
		return fmt.Errorf("%w: plan is %s", domain.ErrInvalidTransition, p.Status)
	}
	p.Status = PlanCancelled
	p.CancelledAt = &now
	p.UpdatedAt = now
	return nil
}

// Overdue reports whether the next installment slipped past its grace.
func (p *InstallmentPlan) Overdue(now time.Time) bool {
	return now.After(p.NextDueDate.AddDate(0, 0, p.GracePeriodDays))
}

// HasAccess grants the buyer entry while paying on schedule or after
// paying in full.
func (p *InstallmentPlan) HasAccess() bool {
	return p.Status == PlanActive || p.Status == PlanCompleted
}

// NewInstallmentPayment opens a pending attempt for one installment slot.
func NewInstallmentPayment(id, planID string, number int, expected string, dueDate, now time.Time) (*InstallmentPayment, error) {
	if id == "" || planID == "" || number < 1 {
		return nil, domain.ErrInvalidArgument
	}
	return &InstallmentPayment{
		ID:                id,
		PlanID:            planID,
		InstallmentNumber: number,
		ExpectedAmount:    expected,
		Status:            InstallmentPaymentPending,
		DueDate:           dueDate,
		CreatedAt:         now,
	}, nil
}

// Confirm settles the attempt with the on-chain payment that covered it.
func (ip *InstallmentPayment) Confirm(paymentID, actual string, now time.Time) error {
	if ip.Status != InstallmentPaymentPending {
		return fmt.Errorf("%w: installment payment is %s", domain.ErrInvalidTransition, ip.Status)
	}
	if _, err := ParsePositiveAmount(actual); err != nil {
		return err
	}
	ip.PaymentID = paymentID
	ip.Amount = actual
	ip.Status = InstallmentPaymentConfirmed
	ip.ConfirmedAt = &now
	return nil
}

// MarkFailed closes the attempt without settling it.
func (ip *InstallmentPayment) MarkFailed() error {
	if ip.Status != InstallmentPaymentPending {
		return fmt.Errorf("%w: installment payment is %s", domain.ErrInvalidTransition, ip.Status)
	}
	ip.Status = InstallmentPaymentFailed
	return nil
}
