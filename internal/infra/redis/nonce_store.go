package redis

import (
	"context"
	"fmt"
	"time"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.NonceStore = (*NonceStore)(nil)

// NonceStore keeps quote nonces in Redis so a challenge can be spent
// exactly once across replicas. Expiry is handled by the key TTL.
type NonceStore struct {
	cli *redis.Client
	ttl time.Duration
}

func NewNonceStore(c *Client, ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &NonceStore{cli: c.cli, ttl: ttl}
}

func (s *NonceStore) nonceKey(payLinkID, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", payLinkID, nonce)
}

func (s *NonceStore) Issue(ctx context.Context, payLinkID, nonce string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	ok, err := s.cli.SetNX(ctx, s.nonceKey(payLinkID, nonce), "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: nonce already issued", domain.ErrAlreadyExists)
	}
	return nil
}

func (s *NonceStore) Consume(ctx context.Context, payLinkID, nonce string) error {
	n, err := s.cli.Del(ctx, s.nonceKey(payLinkID, nonce)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNonceSpent
	}
	return nil
}
