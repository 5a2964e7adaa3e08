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
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase owns every subscription state transition. Nothing
// else in the system writes subscription rows.
type SubscriptionUseCase interface {
	// Subscribe opens a subscription for a payer on a subscription-mode
	// link. A non-terminal subscription for the same pair already existing
	// is an ErrAlreadyExists.
	Subscribe(ctx context.Context, linkID, subscriber string) (*model.Subscription, error)
	Get(ctx context.Context, id string) (*model.Subscription, error)
	// ApplyPayment consumes one confirmed payment inside the caller's
	// transaction, creating the subscription on first payment.
	ApplyPayment(ctx context.Context, tx repository.Tx, link *model.PayLink, subscriber string, now time.Time) (*model.Subscription, error)
	Cancel(ctx context.Context, id string) (*model.Subscription, error)
	Pause(ctx context.Context, id string) (*model.Subscription, error)
	Resume(ctx context.Context, id string) (*model.Subscription, error)
	// SweepDue walks active subscriptions whose payment is due: past the
	// grace window they move to past_due, inside it a reminder event is
	// emitted. Returns how many rows transitioned.
	SweepDue(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type subscriptionUC struct {
	links repository.PayLinkRepository
	subs  repository.SubscriptionRepository
	tm    repository.TransactionManager
	hooks adapter.WebhookSink
	log   *zerolog.Logger
}

func NewSubscriptionUseCase(
	links repository.PayLinkRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	hooks adapter.WebhookSink,
	logger *zerolog.Logger,
) *subscriptionUC {
	return &subscriptionUC{links: links, subs: subs, tm: tm, hooks: hooks, log: logger}
}

func (u *subscriptionUC) Subscribe(ctx context.Context, linkID, subscriber string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Subscribe")()

	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if err != nil {
		return nil, err
	}
	if link.Subscription == nil {
		return nil, fmt.Errorf("%w: link %s is not subscription-mode", domain.ErrInvalidArgument, linkID)
	}

	var sub *model.Subscription
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err = u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.subs.FindCurrentByLinkAndSubscriber(ctx, tx, linkID, subscriber); err == nil {
			return fmt.Errorf("%w: subscription already exists", domain.ErrAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		s, err := model.NewSubscription(model.NewID(), linkID, subscriber, *link.Subscription, time.Now())
		if err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("link_id", linkID).Str("subscription_id", sub.ID).Msg("subscription created")
	return sub, nil
}

func (u *subscriptionUC) Get(ctx context.Context, id string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Get")()
	return u.subs.FindByID(ctx, repository.NoTX, id)
}

func (u *subscriptionUC) ApplyPayment(ctx context.Context, tx repository.Tx, link *model.PayLink, subscriber string, now time.Time) (*model.Subscription, error) {
	if link.Subscription == nil {
		return nil, fmt.Errorf("%w: link %s is not subscription-mode", domain.ErrInvalidArgument, link.ID)
	}

	sub, err := u.subs.FindCurrentByLinkAndSubscriber(ctx, tx, link.ID, subscriber)
	if errors.Is(err, domain.ErrNotFound) {
		sub, err = model.NewSubscription(model.NewID(), link.ID, subscriber, *link.Subscription, now)
	}
	if err != nil {
		return nil, err
	}

	if err := sub.ProcessPayment(*link.Subscription, now); err != nil {
		return nil, err
	}
	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := u.transition(ctx, "SubscriptionUC.Cancel", id, func(s *model.Subscription, now time.Time) error {
		return s.Cancel(now)
	})
	if err != nil {
		return nil, err
	}
	u.hooks.QueueEvent(adapter.EventSubscriptionCancelled, map[string]any{
		"subscriptionId": sub.ID,
		"payLinkId":      sub.PayLinkID,
	})
	return sub, nil
}

func (u *subscriptionUC) Pause(ctx context.Context, id string) (*model.Subscription, error) {
	return u.transition(ctx, "SubscriptionUC.Pause", id, func(s *model.Subscription, now time.Time) error {
		return s.Pause(now)
	})
}

func (u *subscriptionUC) Resume(ctx context.Context, id string) (*model.Subscription, error) {
	return u.transition(ctx, "SubscriptionUC.Resume", id, func(s *model.Subscription, now time.Time) error {
		return s.Resume(now)
	})
}

// transition loads the row under FOR UPDATE, applies the model move and
// saves it, so two concurrent admin calls cannot interleave.
func (u *subscriptionUC) transition(ctx context.Context, op, id string, fn func(*model.Subscription, time.Time) error) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, op)()

	var sub *model.Subscription
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.subs.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(s, time.Now()); err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (u *subscriptionUC) SweepDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.SweepDue")()

	due, err := u.subs.ListDue(ctx, repository.NoTX, now, batchSize)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for _, s := range due {
		link, err := u.links.FindByID(ctx, repository.NoTX, s.PayLinkID)
		if err != nil || link.Subscription == nil {
			u.log.Warn().Err(err).Str("subscription_id", s.ID).Msg("sweep: link lookup failed, skipping")
			continue
		}
		acc := s.AccessState(now, link.Subscription.GracePeriodHours)
		if !acc.RequiresPayment {
			continue
		}
		if acc.HasAccess {
			// Still inside grace: remind, leave state alone.
			u.hooks.QueueEvent(adapter.EventSubscriptionDue, map[string]any{
				"subscriptionId": s.ID,
				"payLinkId":      s.PayLinkID,
				"nextPaymentDue": s.NextPaymentDue.Format(time.RFC3339),
			})
			continue
		}
		ok, err := u.subs.UpdateStatusIf(ctx, repository.NoTX, s.ID, model.SubscriptionActive, model.SubscriptionPastDue, now)
		if err != nil {
			u.log.Error().Err(err).Str("subscription_id", s.ID).Msg("sweep: past_due transition failed")
			continue
		}
		if !ok {
			// A concurrent renewal moved the row first.
			continue
		}
		transitioned++
		u.hooks.QueueEvent(adapter.EventSubscriptionPastDue, map[string]any{
			"subscriptionId": s.ID,
			"payLinkId":      s.PayLinkID,
			"graceEndedAt":   acc.GracePeriodEndsAt.Format(time.RFC3339),
		})
	}
	return transitioned, nil
}
