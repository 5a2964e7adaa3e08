package verifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/ports/adapter"
)

// MockVerifier is a deterministic, settable verifier for tests. Both chain
// families behave identically once the RPC endpoint is out of the picture,
// so one mock serves both: set Result (or VerifyFunc for per-call control)
// and assert on the recorded calls.
type MockVerifier struct {
	Chain      string
	Result     adapter.Verification
	Err        error
	VerifyFunc func(ctx context.Context, txRef, recipient, requiredAmount string) (adapter.Verification, error)

	mu    sync.Mutex
	calls []MockVerifyCall
}

// MockVerifyCall records the arguments of one Verify invocation.
type MockVerifyCall struct {
	TxRef          string
	Recipient      string
	RequiredAmount string
}

// Compile-time check
var _ adapter.ChainVerifier = (*MockVerifier)(nil)

// NewMockVerifier defaults to confirming every reference at exactly the
// required amount.
func NewMockVerifier(chainID string) *MockVerifier {
	return &MockVerifier{Chain: chainID}
}

func (m *MockVerifier) ChainID() string { return m.Chain }

func (m *MockVerifier) Verify(ctx context.Context, txRef, recipient, requiredAmount string) (adapter.Verification, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockVerifyCall{TxRef: txRef, Recipient: recipient, RequiredAmount: requiredAmount})
	m.mu.Unlock()

	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, txRef, recipient, requiredAmount)
	}
	if m.Err != nil {
		return adapter.Verification{}, m.Err
	}
	if m.Result.Status == "" {
		return adapter.Verification{Status: adapter.VerificationConfirmed, Amount: requiredAmount}, nil
	}
	return m.Result, nil
}

// Calls reports how many times Verify ran.
func (m *MockVerifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent recorded invocation.
func (m *MockVerifier) LastCall() (MockVerifyCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockVerifyCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// MockRegistry resolves mock verifiers by chain id.
type MockRegistry struct {
	Verifiers map[string]adapter.ChainVerifier
	Fallback  adapter.ChainVerifier
}

// Compile-time check
var _ adapter.VerifierRegistry = (*MockRegistry)(nil)

// NewMockRegistry wires the given mocks into a registry; the first one
// becomes the default.
func NewMockRegistry(mocks ...*MockVerifier) *MockRegistry {
	r := &MockRegistry{Verifiers: make(map[string]adapter.ChainVerifier, len(mocks))}
	for _, m := range mocks {
		r.Verifiers[strings.ToLower(m.Chain)] = m
		if r.Fallback == nil {
			r.Fallback = m
		}
	}
	return r
}

func (r *MockRegistry) Lookup(chainID string) (adapter.ChainVerifier, error) {
	cv, ok := r.Verifiers[strings.ToLower(strings.TrimSpace(chainID))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrChainNotSupported, chainID)
	}
	return cv, nil
}

func (r *MockRegistry) Default() adapter.ChainVerifier { return r.Fallback }
