package adapter

import "context"

// VerificationStatus is the verdict a chain verifier reaches for one
// transaction reference.
type VerificationStatus string

const (
	VerificationNotFound  VerificationStatus = "not_found"
	VerificationPending   VerificationStatus = "pending"
	VerificationFailed    VerificationStatus = "failed"
	VerificationUnderpaid VerificationStatus = "underpaid"
	VerificationConfirmed VerificationStatus = "confirmed"
)

// Verification is the outcome of checking a transaction against the
// expected recipient and amount. Amount and FromAddress are populated for
// underpaid and confirmed verdicts; other statuses leave them empty.
type Verification struct {
	Status      VerificationStatus
	Amount      string
	FromAddress string
}

// ChainVerifier checks a single chain's transactions. Expected on-chain
// conditions (missing tx, too few confirmations, reverted execution, short
// payment) come back as verdicts, not errors; the error return is reserved
// for malformed input. RPC transport failures degrade to a not_found
// verdict so callers re-poll instead of surfacing a fault to the payer.
type ChainVerifier interface {
	ChainID() string
	Verify(ctx context.Context, txRef, recipient, requiredAmount string) (Verification, error)
}

// VerifierRegistry resolves the verifier for a configured chain.
type VerifierRegistry interface {
	// Lookup returns domain.ErrChainNotSupported for unknown chain ids.
	Lookup(chainID string) (ChainVerifier, error)
	// Default returns the verifier for the link's primary chain when a
	// confirm request does not name one.
	Default() ChainVerifier
}
