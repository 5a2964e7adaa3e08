package model

import (
	"time"

	"crypto-paylink/internal/domain"
)

// Payment records one on-chain transaction seen for a link. TxHash is
// globally unique: the same transaction can never redeem two links. A
// confirmed payment is immutable.
type Payment struct {
	ID          string
	PayLinkID   string
	ChainID     string
	TxHash      string
	FromAddress string // sender recovered by the verifier
	Amount      string // actual received amount, display units
	TokenSymbol string
	Confirmed   bool
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// NewPayment builds an unconfirmed payment record for a transaction that
// was seen on chain but is not yet final.
func NewPayment(id, payLinkID, chainID, txHash, tokenSymbol string) (*Payment, error) {
	if id == "" || payLinkID == "" || chainID == "" || txHash == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Payment{
		ID:          id,
		PayLinkID:   payLinkID,
		ChainID:     chainID,
		TxHash:      txHash,
		TokenSymbol: tokenSymbol,
		CreatedAt:   time.Now(),
	}, nil
}

// MarkConfirmed freezes the verified outcome onto the record.
func (p *Payment) MarkConfirmed(amount, from string, at time.Time) error {
	if p.Confirmed {
		return domain.ErrInvalidTransition
	}
	if _, err := ParsePositiveAmount(amount); err != nil {
		return err
	}
	p.Amount = amount
	p.FromAddress = from
	p.Confirmed = true
	p.ConfirmedAt = &at
	return nil
}
