package repository

import (
	"context"
	"time"
)

// NonceStore hands out single-use challenge nonces for payment quotes.
type NonceStore interface {
	// Issue registers a nonce for a link with an expiry window.
	Issue(ctx context.Context, payLinkID, nonce string, ttl time.Duration) error
	// Consume atomically spends a nonce. A nonce that was never issued,
	// expired, or was already spent returns domain.ErrNonceSpent.
	Consume(ctx context.Context, payLinkID, nonce string) error
}
