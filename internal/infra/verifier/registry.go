package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/ports/adapter"
	"crypto-paylink/internal/infra/metrics"
)

// Registry holds one verifier per configured chain, keyed case-insensitively
// by chain id. The family tag in the configuration picks the implementation;
// nothing is inferred from the id itself.
type Registry struct {
	byID map[string]adapter.ChainVerifier
	def  adapter.ChainVerifier
}

// Compile-time check
var _ adapter.VerifierRegistry = (*Registry)(nil)

// NewRegistry builds and instruments a verifier for every configured chain.
// The first chain in the list becomes the default.
func NewRegistry(chains []config.ChainConfig, log *zerolog.Logger) (*Registry, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("%w: no chains configured", domain.ErrInvalidArgument)
	}
	r := &Registry{byID: make(map[string]adapter.ChainVerifier, len(chains))}
	for _, cfg := range chains {
		var cv adapter.ChainVerifier
		switch cfg.Family {
		case config.ChainFamilyEVM:
			ev, err := NewEVMVerifier(cfg, log)
			if err != nil {
				return nil, err
			}
			cv = ev
		case config.ChainFamilySolana:
			cv = NewSolanaVerifier(cfg, log)
		default:
			return nil, fmt.Errorf("%w: chain %s has unknown family %q", domain.ErrInvalidArgument, cfg.ID, cfg.Family)
		}
		key := strings.ToLower(cfg.ID)
		if _, dup := r.byID[key]; dup {
			return nil, fmt.Errorf("%w: duplicate chain id %s", domain.ErrInvalidArgument, cfg.ID)
		}
		cv = instrumented{next: cv}
		r.byID[key] = cv
		if r.def == nil {
			r.def = cv
		}
	}
	return r, nil
}

func (r *Registry) Lookup(chainID string) (adapter.ChainVerifier, error) {
	cv, ok := r.byID[strings.ToLower(strings.TrimSpace(chainID))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrChainNotSupported, chainID)
	}
	return cv, nil
}

func (r *Registry) Default() adapter.ChainVerifier { return r.def }

// instrumented decorates a verifier with verdict and latency metrics.
type instrumented struct {
	next adapter.ChainVerifier
}

func (i instrumented) ChainID() string { return i.next.ChainID() }

func (i instrumented) Verify(ctx context.Context, txRef, recipient, requiredAmount string) (adapter.Verification, error) {
	start := time.Now()
	v, err := i.next.Verify(ctx, txRef, recipient, requiredAmount)
	status := string(v.Status)
	if err != nil {
		status = "error"
	}
	metrics.ObserveVerification(i.next.ChainID(), status, time.Since(start).Seconds())
	return v, err
}
