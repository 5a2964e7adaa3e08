package repository

import (
	"context"

	"crypto-paylink/internal/domain/model"
)

// ReferralRepository persists referral codes and their commission ledger.
type ReferralRepository interface {
	// Save inserts or updates a referral. A code collision on insert maps
	// to domain.ErrCodeTaken so callers can retry with a fresh code.
	Save(ctx context.Context, tx Tx, r *model.Referral) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Referral, error)
	// FindByCode matches case-insensitively on the stored code.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Referral, error)
	FindByLinkAndReferrer(ctx context.Context, tx Tx, payLinkID, referrer string) (*model.Referral, error)
	ListByLink(ctx context.Context, tx Tx, payLinkID string) ([]*model.Referral, error)

	SaveCommission(ctx context.Context, tx Tx, c *model.ReferralCommission) error
	FindCommissionByID(ctx context.Context, tx Tx, id string) (*model.ReferralCommission, error)
	// FindCommissionByPayment returns the commission recorded against an
	// on-chain payment, or domain.ErrNotFound. One payment yields at most
	// one commission.
	FindCommissionByPayment(ctx context.Context, tx Tx, paymentID string) (*model.ReferralCommission, error)
	ListCommissionsByReferral(ctx context.Context, tx Tx, referralID string) ([]*model.ReferralCommission, error)
}
