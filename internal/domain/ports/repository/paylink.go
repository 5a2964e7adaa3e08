package repository

import (
	"context"

	"crypto-paylink/internal/domain/model"
)

// PayLinkRepository is the port for pay links. The links table is the
// single source of truth for usage counters; callers never maintain a
// separate count.
type PayLinkRepository interface {
	Save(ctx context.Context, tx Tx, l *model.PayLink) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PayLink, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.PayLink, error)
	// IncrementUsage bumps used_count atomically and returns the new value.
	IncrementUsage(ctx context.Context, tx Tx, id string) (int, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.LinkStatus) error
}
