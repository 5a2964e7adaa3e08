package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/adapter"
)

// solanaRPC is the slice of the Solana JSON-RPC API the verifier polls.
// *rpc.Client satisfies it.
type solanaRPC interface {
	GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaVerifier polls Solana JSON-RPC and derives the received amount from
// the recipient's balance delta instead of decoding instructions, so plain
// system transfers and program-routed payments are treated alike. The
// reported sender is the fee payer (account index 0), which is the common
// case but not a cryptographic guarantee.
type SolanaVerifier struct {
	chainID        string
	rpc            solanaRPC
	confirmations  uint64
	timeout        time.Duration
	nativeDecimals int32
	log            *zerolog.Logger
}

// Compile-time check
var _ adapter.ChainVerifier = (*SolanaVerifier)(nil)

func NewSolanaVerifier(cfg config.ChainConfig, log *zerolog.Logger) *SolanaVerifier {
	return newSolanaVerifier(cfg, rpc.New(cfg.RPCURL), log)
}

func newSolanaVerifier(cfg config.ChainConfig, cli solanaRPC, log *zerolog.Logger) *SolanaVerifier {
	return &SolanaVerifier{
		chainID:        cfg.ID,
		rpc:            cli,
		confirmations:  cfg.Confirmations,
		timeout:        cfg.RPCTimeout,
		nativeDecimals: int32(cfg.NativeDecimals),
		log:            log,
	}
}

func (v *SolanaVerifier) ChainID() string { return v.chainID }

func (v *SolanaVerifier) Verify(ctx context.Context, txRef, recipient, requiredAmount string) (adapter.Verification, error) {
	required, err := model.ParsePositiveAmount(requiredAmount)
	if err != nil {
		return adapter.Verification{}, err
	}
	want, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return adapter.Verification{}, fmt.Errorf("%w: recipient %q is not a base58 public key", domain.ErrInvalidArgument, recipient)
	}
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		// A reference that is not a signature will never land on chain.
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	maxVersion := uint64(0)
	out, err := v.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || out == nil || out.Meta == nil {
		if err != nil {
			v.log.Debug().Err(err).Str("chain_id", v.chainID).Str("tx_hash", txRef).
				Msg("transaction lookup failed, degrading to not_found")
		}
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	if out.Meta.Err != nil {
		return adapter.Verification{Status: adapter.VerificationFailed}, nil
	}

	statuses, err := v.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		v.log.Debug().Err(err).Str("chain_id", v.chainID).Str("tx_hash", txRef).
			Msg("signature status lookup failed, degrading to not_found")
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return adapter.Verification{Status: adapter.VerificationPending}, nil
	}
	if !v.settled(statuses.Value[0]) {
		return adapter.Verification{Status: adapter.VerificationPending}, nil
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	keys := tx.Message.AccountKeys
	idx := -1
	for i, key := range keys {
		if key.Equals(want) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(out.Meta.PreBalances) || idx >= len(out.Meta.PostBalances) {
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	pre, post := out.Meta.PreBalances[idx], out.Meta.PostBalances[idx]
	if post <= pre {
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}

	actual := decimal.New(int64(post-pre), -v.nativeDecimals)
	sender := keys[0].String()
	status := adapter.VerificationConfirmed
	if actual.Cmp(required) < 0 {
		status = adapter.VerificationUnderpaid
	}
	return adapter.Verification{Status: status, Amount: actual.String(), FromAddress: sender}, nil
}

// settled reports whether the cluster considers the signature final enough:
// either finalized outright or carrying at least the configured number of
// confirmations.
func (v *SolanaVerifier) settled(st *rpc.SignatureStatusesResult) bool {
	if st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return true
	}
	return st.Confirmations != nil && *st.Confirmations >= v.confirmations
}
