package repository

import (
	"context"
	"time"

	"crypto-paylink/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

// PaymentRepository is the port for on-chain payment records.
//
// Insert must enforce the global tx_hash uniqueness and report a duplicate
// as domain.ErrAlreadyExists; that is the insert-if-absent half of the
// confirmation idempotency contract. MarkConfirmed is the compare-and-set
// half: it only flips rows that are still unconfirmed.
type PaymentRepository interface {
	Insert(ctx context.Context, tx Tx, p *model.Payment) error
	FindByTxHash(ctx context.Context, tx Tx, txHash string) (*model.Payment, error)
	FindConfirmedByLink(ctx context.Context, tx Tx, payLinkID string) (*model.Payment, error)
	FindConfirmedByLinkAndPayer(ctx context.Context, tx Tx, payLinkID, payerAddress string) (*model.Payment, error)
	// MarkConfirmed reports false when the row was already confirmed.
	MarkConfirmed(ctx context.Context, tx Tx, id string, amount, fromAddress string, at time.Time) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Payment, error)
}
