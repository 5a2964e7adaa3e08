package repository

import (
	"context"
	"time"

	"crypto-paylink/internal/domain/model"
)

// SubscriptionRepository is the port for subscriber entitlements.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindCurrentByLinkAndSubscriber returns the non-terminal subscription
	// for (link, subscriber), or domain.ErrNotFound.
	FindCurrentByLinkAndSubscriber(ctx context.Context, tx Tx, payLinkID, subscriber string) (*model.Subscription, error)
	// FindLatestByLinkAndSubscriber returns the newest subscription for
	// (link, subscriber) regardless of status, or domain.ErrNotFound.
	// Access checks need it: a cancelled or expired subscription refuses
	// with its own reason instead of falling back to a payment challenge.
	FindLatestByLinkAndSubscriber(ctx context.Context, tx Tx, payLinkID, subscriber string) (*model.Subscription, error)
	// ListDue returns active subscriptions whose next payment is due at or
	// before asOf, oldest first.
	ListDue(ctx context.Context, tx Tx, asOf time.Time, limit int) ([]*model.Subscription, error)
	// UpdateStatusIf transitions id from one status to another and reports
	// whether the row actually moved. Sweeps use it so that a record
	// already changed by a concurrent confirm is left alone.
	UpdateStatusIf(ctx context.Context, tx Tx, id string, from, to model.SubscriptionStatus, at time.Time) (bool, error)
}
