package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
	"crypto-paylink/internal/infra/logging"
)

// Compile-time check
var _ PayLinkUseCase = (*payLinkUC)(nil)

// CreatePayLinkInput carries everything an owner can configure on a link.
type CreatePayLinkInput struct {
	TargetURL        string
	Description      string
	Preview          string
	RecipientAddress string
	Price            model.PaymentOption
	PaymentOptions   []model.PaymentOption
	MaxUses          int
	ExpiresAt        *time.Time
	MultiUse         bool
	Subscription     *model.SubscriptionConfig
	Installment      *model.InstallmentConfig
	Referral         *model.ReferralConfig
}

type PayLinkUseCase interface {
	Create(ctx context.Context, in CreatePayLinkInput) (*model.PayLink, error)
	Get(ctx context.Context, id string) (*model.PayLink, error)
	List(ctx context.Context, offset, limit int) ([]*model.PayLink, error)
	// Disable is idempotent: disabling a disabled link returns it unchanged.
	Disable(ctx context.Context, id string) (*model.PayLink, error)
}

type payLinkUC struct {
	links repository.PayLinkRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewPayLinkUseCase(links repository.PayLinkRepository, tm repository.TransactionManager, logger *zerolog.Logger) *payLinkUC {
	return &payLinkUC{links: links, tm: tm, log: logger}
}

func (u *payLinkUC) Create(ctx context.Context, in CreatePayLinkInput) (*model.PayLink, error) {
	defer logging.TraceDuration(u.log, "PayLinkUC.Create")()

	link, err := model.NewPayLink(model.NewID(), in.TargetURL, in.RecipientAddress, in.Price)
	if err != nil {
		return nil, err
	}
	link.Description = in.Description
	link.Preview = in.Preview
	link.PaymentOptions = in.PaymentOptions
	link.MaxUses = in.MaxUses
	link.ExpiresAt = in.ExpiresAt
	link.MultiUse = in.MultiUse
	link.Subscription = in.Subscription
	link.Installment = in.Installment
	link.Referral = in.Referral
	if err := link.Validate(); err != nil {
		return nil, err
	}

	if err := u.links.Save(ctx, repository.NoTX, link); err != nil {
		return nil, err
	}
	u.log.Info().Str("link_id", link.ID).Str("chain", link.Price.ChainID).Msg("pay link created")
	return link, nil
}

func (u *payLinkUC) Get(ctx context.Context, id string) (*model.PayLink, error) {
	defer logging.TraceDuration(u.log, "PayLinkUC.Get")()
	return u.links.FindByID(ctx, repository.NoTX, id)
}

func (u *payLinkUC) List(ctx context.Context, offset, limit int) ([]*model.PayLink, error) {
	defer logging.TraceDuration(u.log, "PayLinkUC.List")()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return u.links.List(ctx, repository.NoTX, offset, limit)
}

func (u *payLinkUC) Disable(ctx context.Context, id string) (*model.PayLink, error) {
	defer logging.TraceDuration(u.log, "PayLinkUC.Disable")()

	var link *model.PayLink
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		l, err := u.links.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if l.Status == model.LinkStatusDisabled {
			link = l
			return nil
		}
		if err := u.links.UpdateStatus(ctx, tx, id, model.LinkStatusDisabled); err != nil {
			return fmt.Errorf("disable link %s: %w", id, err)
		}
		l.Status = model.LinkStatusDisabled
		link = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("link_id", id).Msg("pay link disabled")
	return link, nil
}
