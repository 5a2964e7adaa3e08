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
var _ ReferralUseCase = (*referralUC)(nil)

// maxCodeAttempts bounds generated-code collision retries.
const maxCodeAttempts = 10

// ReferralUseCase owns referral codes and the commission ledger.
type ReferralUseCase interface {
	// CreateReferral registers a referrer on a link. An empty code asks
	// for a generated one; a supplied code must match the accepted pattern
	// and be free (case-insensitively).
	CreateReferral(ctx context.Context, linkID, referrer, code string) (*model.Referral, error)
	GetByCode(ctx context.Context, code string) (*model.Referral, error)
	// Stats returns the referral on a link together with its commissions.
	Stats(ctx context.Context, linkID, code string) (*model.Referral, []*model.ReferralCommission, error)
	// RecordCommission books the commission for a payment that carried a
	// referral code, inside the caller's transaction. Business rejections
	// (unknown code, wrong link, disabled program, self-referral) skip
	// silently: debug log, nil commission, nil error.
	RecordCommission(ctx context.Context, tx repository.Tx, link *model.PayLink, payment *model.Payment, code string) (*model.ReferralCommission, error)
	ConfirmCommission(ctx context.Context, id string) (*model.ReferralCommission, error)
	MarkCommissionPaid(ctx context.Context, id string) (*model.ReferralCommission, error)
	ExpireCommission(ctx context.Context, id string) (*model.ReferralCommission, error)
}

type referralUC struct {
	links     repository.PayLinkRepository
	referrals repository.ReferralRepository
	tm        repository.TransactionManager
	hooks     adapter.WebhookSink
	log       *zerolog.Logger
}

func NewReferralUseCase(
	links repository.PayLinkRepository,
	referrals repository.ReferralRepository,
	tm repository.TransactionManager,
	hooks adapter.WebhookSink,
	logger *zerolog.Logger,
) *referralUC {
	return &referralUC{links: links, referrals: referrals, tm: tm, hooks: hooks, log: logger}
}

func (u *referralUC) CreateReferral(ctx context.Context, linkID, referrer, code string) (*model.Referral, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.CreateReferral")()

	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if err != nil {
		return nil, err
	}
	if link.Referral == nil || !link.Referral.Enabled {
		return nil, fmt.Errorf("%w: referral program disabled on link %s", domain.ErrInvalidArgument, linkID)
	}
	if _, err := u.referrals.FindByLinkAndReferrer(ctx, repository.NoTX, linkID, referrer); err == nil {
		return nil, fmt.Errorf("%w: referrer already registered", domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if code != "" {
		if !model.ValidReferralCode(code) {
			return nil, fmt.Errorf("%w: referral code %q", domain.ErrInvalidArgument, code)
		}
		r, err := model.NewReferral(model.NewID(), linkID, referrer, model.NormalizeReferralCode(code))
		if err != nil {
			return nil, err
		}
		if err := u.referrals.Save(ctx, repository.NoTX, r); err != nil {
			return nil, err
		}
		return r, nil
	}

	// Generated code: the unique index arbitrates collisions, retrying
	// with a fresh code each round.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		generated, err := generateReferralCode()
		if err != nil {
			return nil, err
		}
		r, err := model.NewReferral(model.NewID(), linkID, referrer, generated)
		if err != nil {
			return nil, err
		}
		err = u.referrals.Save(ctx, repository.NoTX, r)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no free code after %d attempts", domain.ErrCodeTaken, maxCodeAttempts)
}

func (u *referralUC) GetByCode(ctx context.Context, code string) (*model.Referral, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.GetByCode")()
	return u.referrals.FindByCode(ctx, repository.NoTX, model.NormalizeReferralCode(code))
}

func (u *referralUC) Stats(ctx context.Context, linkID, code string) (*model.Referral, []*model.ReferralCommission, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.Stats")()

	ref, err := u.referrals.FindByCode(ctx, repository.NoTX, model.NormalizeReferralCode(code))
	if err != nil {
		return nil, nil, err
	}
	if ref.PayLinkID != linkID {
		return nil, nil, domain.ErrNotFound
	}
	commissions, err := u.referrals.ListCommissionsByReferral(ctx, repository.NoTX, ref.ID)
	if err != nil {
		return nil, nil, err
	}
	return ref, commissions, nil
}

func (u *referralUC) RecordCommission(ctx context.Context, tx repository.Tx, link *model.PayLink, payment *model.Payment, code string) (*model.ReferralCommission, error) {
	skip := func(why string) (*model.ReferralCommission, error) {
		u.log.Debug().
			Str("link_id", link.ID).
			Str("payment_id", payment.ID).
			Str("code", code).
			Str("reason", why).
			Msg("referral commission skipped")
		return nil, nil
	}

	if link.Referral == nil || !link.Referral.Enabled {
		return skip("program disabled")
	}
	ref, err := u.referrals.FindByCode(ctx, tx, model.NormalizeReferralCode(code))
	if errors.Is(err, domain.ErrNotFound) {
		return skip("unknown code")
	}
	if err != nil {
		return nil, err
	}
	if ref.PayLinkID != link.ID {
		return skip("code belongs to another link")
	}
	if ref.Status != model.ReferralActive {
		return skip("referral disabled")
	}
	if ref.IsSelfReferral(payment.FromAddress) {
		return skip("self-referral")
	}
	if existing, err := u.referrals.FindCommissionByPayment(ctx, tx, payment.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	c, err := model.NewCommission(model.NewID(), ref, payment.ID, payment.FromAddress, payment.Amount, link.Referral.CommissionPercent)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	ref.RecordReferral(now)
	if payment.Confirmed {
		if err := c.Confirm(now); err != nil {
			return nil, err
		}
		if err := ref.ApplyEarned(c.CommissionAmount, now); err != nil {
			return nil, err
		}
	}
	if err := u.referrals.SaveCommission(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := u.referrals.Save(ctx, tx, ref); err != nil {
		return nil, err
	}
	return c, nil
}

func (u *referralUC) ConfirmCommission(ctx context.Context, id string) (*model.ReferralCommission, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.ConfirmCommission")()

	var commission *model.ReferralCommission
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.referrals.FindCommissionByID(ctx, tx, id)
		if err != nil {
			return err
		}
		ref, err := u.referrals.FindByID(ctx, tx, c.ReferralID)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := c.Confirm(now); err != nil {
			return err
		}
		if err := ref.ApplyEarned(c.CommissionAmount, now); err != nil {
			return err
		}
		if err := u.referrals.SaveCommission(ctx, tx, c); err != nil {
			return err
		}
		if err := u.referrals.Save(ctx, tx, ref); err != nil {
			return err
		}
		commission = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commission, nil
}

func (u *referralUC) MarkCommissionPaid(ctx context.Context, id string) (*model.ReferralCommission, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.MarkCommissionPaid")()

	var commission *model.ReferralCommission
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.referrals.FindCommissionByID(ctx, tx, id)
		if err != nil {
			return err
		}
		ref, err := u.referrals.FindByID(ctx, tx, c.ReferralID)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := c.MarkPaid(now); err != nil {
			return err
		}
		if err := ref.SettlePayout(c.CommissionAmount, now); err != nil {
			return err
		}
		if err := u.referrals.SaveCommission(ctx, tx, c); err != nil {
			return err
		}
		if err := u.referrals.Save(ctx, tx, ref); err != nil {
			return err
		}
		commission = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.hooks.QueueEvent(adapter.EventCommissionPaid, map[string]any{
		"commissionId": commission.ID,
		"referralId":   commission.ReferralID,
		"amount":       commission.CommissionAmount,
	})
	return commission, nil
}

func (u *referralUC) ExpireCommission(ctx context.Context, id string) (*model.ReferralCommission, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.ExpireCommission")()

	var commission *model.ReferralCommission
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.referrals.FindCommissionByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := c.Expire(); err != nil {
			return err
		}
		if err := u.referrals.SaveCommission(ctx, tx, c); err != nil {
			return err
		}
		commission = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commission, nil
}
