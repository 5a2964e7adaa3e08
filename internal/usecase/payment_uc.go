package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/adapter"
	"crypto-paylink/internal/domain/ports/repository"
	"crypto-paylink/internal/infra/logging"
	red "crypto-paylink/internal/infra/redis"
	"crypto-paylink/internal/protocol"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// Confirmation result statuses on the wire.
const (
	ConfirmStatusConfirmed = "confirmed"
	ConfirmStatusPending   = "pending"
	ConfirmStatusFailed    = "failed"
)

// confirmLockTTL bounds how long one confirmation may hold the
// per-(link, txHash) lock.
const confirmLockTTL = 30 * time.Second

// ConfirmInput is what a payer submits after sending the transaction.
type ConfirmInput struct {
	TxHash       string
	ChainID      string
	ReferralCode string
	Nonce        string
	Payer        string
}

// ConfirmResult is the outcome of one confirmation attempt. Refusal is
// set when the link itself refuses (missing, disabled, expired, spent
// nonce); RequiredAmount/ActualAmount ride along on underpaid outcomes;
// Amount/TokenSymbol carry what a confirmed payment actually moved.
type ConfirmResult struct {
	Status         string
	TxHash         string
	RedirectURL    string
	Amount         string
	TokenSymbol    string
	ReasonCode     protocol.ReasonCode
	RequiredAmount string
	ActualAmount   string
	Refusal        *protocol.Forbidden
}

// PaymentStatus answers the polling endpoint.
type PaymentStatus struct {
	Paid        bool
	Status      string
	RedirectURL string
}

// PaymentUseCase verifies submitted transactions and applies confirmed
// ones to the link's billing machinery. Confirming the same transaction
// twice returns the first outcome without touching the chain again.
type PaymentUseCase interface {
	Confirm(ctx context.Context, linkID string, in ConfirmInput) (*ConfirmResult, error)
	Status(ctx context.Context, linkID, txHash string) (*PaymentStatus, error)
}

type paymentUC struct {
	links        repository.PayLinkRepository
	payments     repository.PaymentRepository
	subs         SubscriptionUseCase
	installments InstallmentUseCase
	referrals    ReferralUseCase
	verifiers    adapter.VerifierRegistry
	nonces       repository.NonceStore
	locker       red.Locker
	tm           repository.TransactionManager
	hooks        adapter.WebhookSink
	log          *zerolog.Logger
}

func NewPaymentUseCase(
	links repository.PayLinkRepository,
	payments repository.PaymentRepository,
	subs SubscriptionUseCase,
	installments InstallmentUseCase,
	referrals ReferralUseCase,
	verifiers adapter.VerifierRegistry,
	nonces repository.NonceStore,
	locker red.Locker,
	tm repository.TransactionManager,
	hooks adapter.WebhookSink,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		links:        links,
		payments:     payments,
		subs:         subs,
		installments: installments,
		referrals:    referrals,
		verifiers:    verifiers,
		nonces:       nonces,
		locker:       locker,
		tm:           tm,
		hooks:        hooks,
		log:          logger,
	}
}

func (u *paymentUC) Confirm(ctx context.Context, linkID string, in ConfirmInput) (*ConfirmResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Confirm")()

	if in.TxHash == "" {
		return nil, fmt.Errorf("%w: tx hash required", domain.ErrInvalidArgument)
	}

	if res, done, err := u.shortCircuit(ctx, linkID, in.TxHash); err != nil {
		return nil, err
	} else if done {
		return res, nil
	}

	lockKey := red.ConfirmLockKey(linkID, in.TxHash)
	token, err := u.locker.TryLock(ctx, lockKey, confirmLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			// Another confirmation of the same tx is in flight; report
			// pending and let the client poll.
			return &ConfirmResult{Status: ConfirmStatusPending, TxHash: in.TxHash}, nil
		}
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey, token) }()

	// Re-check under the lock: the race loser lands here.
	if res, done, err := u.shortCircuit(ctx, linkID, in.TxHash); err != nil {
		return nil, err
	} else if done {
		return res, nil
	}

	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if errors.Is(err, domain.ErrNotFound) {
		return refusalResult(in.TxHash, linkID, protocol.ReasonLinkNotFound, ""), nil
	}
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if link.Status == model.LinkStatusDisabled {
		return refusalResult(in.TxHash, linkID, protocol.ReasonLinkDisabled, ""), nil
	}
	if link.Expired(now) {
		return refusalResult(in.TxHash, linkID, protocol.ReasonLinkExpired, ""), nil
	}

	if in.Nonce != "" {
		if err := u.nonces.Consume(ctx, linkID, in.Nonce); err != nil {
			if errors.Is(err, domain.ErrNonceSpent) {
				return refusalResult(in.TxHash, linkID, protocol.ReasonAccessDenied, "challenge nonce expired or already used"), nil
			}
			return nil, err
		}
	}

	option, ok := link.OptionForChain(in.ChainID)
	if !ok {
		return refusalResult(in.TxHash, linkID, protocol.ReasonChainNotSupported, ""), nil
	}
	verifier, err := u.verifiers.Lookup(option.ChainID)
	if err != nil {
		if errors.Is(err, domain.ErrChainNotSupported) {
			return refusalResult(in.TxHash, linkID, protocol.ReasonChainNotSupported, ""), nil
		}
		return nil, err
	}

	plan, required, err := u.requiredAmount(ctx, link, option, in.Payer)
	if err != nil {
		return nil, err
	}

	verdict, err := verifier.Verify(ctx, in.TxHash, link.RecipientAddress, required)
	if err != nil {
		return nil, fmt.Errorf("verify %s on %s: %w", in.TxHash, option.ChainID, err)
	}

	// Installment shares depend on who paid, and the sender is only known
	// after verification. Re-resolve the plan for the actual sender and
	// redo the amount comparison locally; no second chain call is needed
	// because the verdict already carries the received amount.
	if link.Installment != nil && (verdict.Status == adapter.VerificationConfirmed || verdict.Status == adapter.VerificationUnderpaid) {
		if from := verdict.FromAddress; from != "" && !strings.EqualFold(from, in.Payer) {
			plan, required, err = u.requiredAmount(ctx, link, option, from)
			if err != nil {
				return nil, err
			}
		}
		cmp, err := model.CompareAmounts(verdict.Amount, required)
		if err != nil {
			return nil, err
		}
		if cmp < 0 {
			verdict.Status = adapter.VerificationUnderpaid
		} else {
			verdict.Status = adapter.VerificationConfirmed
		}
	}

	switch verdict.Status {
	case adapter.VerificationNotFound:
		return &ConfirmResult{Status: ConfirmStatusPending, TxHash: in.TxHash}, nil

	case adapter.VerificationPending:
		u.recordPending(ctx, link, option, in.TxHash, plan)
		return &ConfirmResult{Status: ConfirmStatusPending, TxHash: in.TxHash}, nil

	case adapter.VerificationFailed:
		u.log.Info().Str("link_id", linkID).Str("tx_hash", in.TxHash).Msg("confirmation failed on chain")
		return &ConfirmResult{Status: ConfirmStatusFailed, TxHash: in.TxHash}, nil

	case adapter.VerificationUnderpaid:
		u.hooks.QueueEvent(adapter.EventPaymentUnderpaid, map[string]any{
			"payLinkId":      linkID,
			"txHash":         in.TxHash,
			"requiredAmount": required,
			"actualAmount":   verdict.Amount,
		})
		return &ConfirmResult{
			Status:         ConfirmStatusFailed,
			TxHash:         in.TxHash,
			ReasonCode:     protocol.ReasonPaymentUnderpaid,
			RequiredAmount: required,
			ActualAmount:   verdict.Amount,
		}, nil

	case adapter.VerificationConfirmed:
		return u.applyConfirmed(ctx, link, option, in, verdict, now)

	default:
		return nil, fmt.Errorf("%w: verdict %q", domain.ErrOperationFailed, verdict.Status)
	}
}

// shortCircuit resolves confirmations of a transaction the system already
// settled, without consulting the verifier.
func (u *paymentUC) shortCircuit(ctx context.Context, linkID, txHash string) (*ConfirmResult, bool, error) {
	p, err := u.payments.FindByTxHash(ctx, repository.NoTX, txHash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !p.Confirmed {
		// A pending record exists; verification still has to run.
		return nil, false, nil
	}
	if p.PayLinkID != linkID {
		return refusalResult(txHash, linkID, protocol.ReasonAccessDenied, "transaction already settled a different link"), true, nil
	}
	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if err != nil {
		return nil, false, err
	}
	return &ConfirmResult{
		Status:      ConfirmStatusConfirmed,
		TxHash:      txHash,
		RedirectURL: link.TargetURL,
		Amount:      p.Amount,
		TokenSymbol: p.TokenSymbol,
	}, true, nil
}

// requiredAmount resolves how much this payer owes right now. Plain links
// owe the option amount; installment links owe the next share of the
// payer's plan, or the down payment when no plan exists yet.
func (u *paymentUC) requiredAmount(ctx context.Context, link *model.PayLink, option model.PaymentOption, payer string) (*model.InstallmentPlan, string, error) {
	if link.Installment == nil {
		return nil, option.Amount, nil
	}
	if payer != "" {
		plan, err := u.installments.PlanForBuyer(ctx, link.ID, payer)
		if err == nil {
			due, derr := plan.ExpectedAmountFor(plan.NextInstallmentNumber)
			return plan, due, derr
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, "", err
		}
	}
	amounts, err := model.InstallmentSchedule(link.Price.Amount, link.Installment.TotalInstallments, link.Installment.DownPaymentPercent)
	if err != nil {
		return nil, "", err
	}
	return nil, amounts[0], nil
}

// recordPending keeps a trace of a live-but-unconfirmed transaction so
// reconciliation can pick it up later. Best effort.
func (u *paymentUC) recordPending(ctx context.Context, link *model.PayLink, option model.PaymentOption, txHash string, plan *model.InstallmentPlan) {
	p, err := model.NewPayment(model.NewID(), link.ID, option.ChainID, txHash, option.TokenSymbol)
	if err != nil {
		return
	}
	if err := u.payments.Insert(ctx, repository.NoTX, p); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		u.log.Warn().Err(err).Str("tx_hash", txHash).Msg("pending payment record failed")
		return
	}
	if plan != nil {
		if _, err := u.installments.RecordPending(ctx, repository.NoTX, plan.ID); err != nil {
			u.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("pending installment record failed")
		}
	}
}

type queuedEvent struct {
	name    string
	payload map[string]any
}

// applyConfirmed persists the confirmed payment and drives the link's
// billing machinery in one transaction. Webhook events fire only after
// the transaction commits.
func (u *paymentUC) applyConfirmed(ctx context.Context, link *model.PayLink, option model.PaymentOption, in ConfirmInput, verdict adapter.Verification, now time.Time) (*ConfirmResult, error) {
	var (
		payment *model.Payment
		settled bool // confirmed previously, nothing to fan out
		events  []queuedEvent
	)

	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		events = events[:0]

		existing, err := u.payments.FindByTxHash(ctx, tx, in.TxHash)
		switch {
		case err == nil:
			if existing.Confirmed {
				payment, settled = existing, true
				return nil
			}
			if existing.PayLinkID != link.ID {
				payment, settled = existing, true
				return nil
			}
			if err := existing.MarkConfirmed(verdict.Amount, verdict.FromAddress, now); err != nil {
				return err
			}
			won, err := u.payments.MarkConfirmed(ctx, tx, existing.ID, verdict.Amount, verdict.FromAddress, now)
			if err != nil {
				return err
			}
			if !won {
				payment, settled = existing, true
				return nil
			}
			payment = existing

		case errors.Is(err, domain.ErrNotFound):
			p, err := model.NewPayment(model.NewID(), link.ID, option.ChainID, in.TxHash, option.TokenSymbol)
			if err != nil {
				return err
			}
			if err := p.MarkConfirmed(verdict.Amount, verdict.FromAddress, now); err != nil {
				return err
			}
			if err := u.payments.Insert(ctx, tx, p); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					// Lost the insert race; the winner's record stands.
					won, ferr := u.payments.FindByTxHash(ctx, tx, in.TxHash)
					if ferr != nil {
						return ferr
					}
					payment, settled = won, true
					return nil
				}
				return err
			}
			payment = p

		default:
			return err
		}

		// Fan out to whichever billing mode the link runs.
		if link.Subscription != nil {
			sub, err := u.subs.ApplyPayment(ctx, tx, link, payment.FromAddress, now)
			if err != nil {
				return err
			}
			events = append(events, queuedEvent{adapter.EventSubscriptionRenewed, map[string]any{
				"subscriptionId": sub.ID,
				"payLinkId":      link.ID,
				"cycleCount":     sub.CycleCount,
				"periodEnd":      sub.CurrentPeriodEnd.Format(time.RFC3339),
			}})
			if sub.Status == model.SubscriptionExpired {
				events = append(events, queuedEvent{adapter.EventSubscriptionExpired, map[string]any{
					"subscriptionId": sub.ID,
					"payLinkId":      link.ID,
				}})
			}
		}
		if link.Installment != nil {
			plan, err := u.installments.ApplyConfirmation(ctx, tx, link, payment.FromAddress, payment, now)
			if err != nil {
				return err
			}
			events = append(events, queuedEvent{adapter.EventInstallmentConfirmed, map[string]any{
				"planId":                plan.ID,
				"payLinkId":             link.ID,
				"completedInstallments": plan.CompletedInstallments,
				"paidAmount":            plan.PaidAmount,
			}})
			if plan.Status == model.PlanCompleted {
				events = append(events, queuedEvent{adapter.EventInstallmentCompleted, map[string]any{
					"planId":    plan.ID,
					"payLinkId": link.ID,
				}})
			}
		}
		if in.ReferralCode != "" {
			c, err := u.referrals.RecordCommission(ctx, tx, link, payment, in.ReferralCode)
			if err != nil {
				return err
			}
			if c != nil {
				events = append(events, queuedEvent{adapter.EventCommissionRecorded, map[string]any{
					"commissionId": c.ID,
					"referralId":   c.ReferralID,
					"paymentId":    payment.ID,
					"amount":       c.CommissionAmount,
				}})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled {
		if payment.PayLinkID != link.ID {
			return refusalResult(in.TxHash, link.ID, protocol.ReasonAccessDenied, "transaction already settled a different link"), nil
		}
		return &ConfirmResult{Status: ConfirmStatusConfirmed, TxHash: in.TxHash, RedirectURL: link.TargetURL, Amount: payment.Amount, TokenSymbol: payment.TokenSymbol}, nil
	}

	for _, ev := range events {
		u.hooks.QueueEvent(ev.name, ev.payload)
	}
	u.hooks.QueueEvent(adapter.EventPaymentConfirmed, map[string]any{
		"payLinkId": link.ID,
		"paymentId": payment.ID,
		"txHash":    payment.TxHash,
		"chainId":   payment.ChainID,
		"amount":    payment.Amount,
		"from":      payment.FromAddress,
	})
	u.log.Info().
		Str("link_id", link.ID).
		Str("tx_hash", payment.TxHash).
		Str("amount", payment.Amount).
		Msg("payment confirmed")

	return &ConfirmResult{Status: ConfirmStatusConfirmed, TxHash: in.TxHash, RedirectURL: link.TargetURL, Amount: payment.Amount, TokenSymbol: payment.TokenSymbol}, nil
}

func (u *paymentUC) Status(ctx context.Context, linkID, txHash string) (*PaymentStatus, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Status")()

	p, err := u.payments.FindByTxHash(ctx, repository.NoTX, txHash)
	if errors.Is(err, domain.ErrNotFound) {
		return &PaymentStatus{Status: "not_found"}, nil
	}
	if err != nil {
		return nil, err
	}
	if p.PayLinkID != linkID {
		return &PaymentStatus{Status: "not_found"}, nil
	}
	if !p.Confirmed {
		return &PaymentStatus{Status: ConfirmStatusPending}, nil
	}
	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if err != nil {
		return nil, err
	}
	return &PaymentStatus{Paid: true, Status: ConfirmStatusConfirmed, RedirectURL: link.TargetURL}, nil
}

func refusalResult(txHash, linkID string, code protocol.ReasonCode, message string) *ConfirmResult {
	fb := protocol.NewForbidden(linkID, code, message)
	return &ConfirmResult{Status: ConfirmStatusFailed, TxHash: txHash, ReasonCode: code, Refusal: &fb}
}
