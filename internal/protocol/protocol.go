// Package protocol defines the wire bodies of the payment negotiation:
// the 402 challenge a gated link answers with, the 403 refusal, and the
// confirmation result. Field names are part of the public contract and
// must not change shape between releases.
package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	PaymentRequiredVersion = "402-paylink-v1"
	ForbiddenVersion       = "403-paylink-v1"
)

// ReasonCode identifies why access was refused.
type ReasonCode string

const (
	ReasonLinkNotFound          ReasonCode = "LINK_NOT_FOUND"
	ReasonLinkDisabled          ReasonCode = "LINK_DISABLED"
	ReasonLinkExpired           ReasonCode = "LINK_EXPIRED"
	ReasonUsageLimitReached     ReasonCode = "LINK_USAGE_LIMIT_REACHED"
	ReasonPaymentUnderpaid      ReasonCode = "PAYMENT_UNDERPAID"
	ReasonChainNotSupported     ReasonCode = "PAYMENT_CHAIN_NOT_SUPPORTED"
	ReasonSubscriptionCancelled ReasonCode = "SUBSCRIPTION_CANCELLED"
	ReasonSubscriptionPastDue   ReasonCode = "SUBSCRIPTION_PAST_DUE"
	ReasonSubscriptionPaused    ReasonCode = "SUBSCRIPTION_PAUSED"
	ReasonSubscriptionExpired   ReasonCode = "SUBSCRIPTION_EXPIRED"
	ReasonMaxCyclesReached      ReasonCode = "SUBSCRIPTION_MAX_CYCLES_REACHED"
	ReasonAccessDenied          ReasonCode = "ACCESS_DENIED"
	ReasonInternalError         ReasonCode = "INTERNAL_ERROR"
)

// Resource describes what the payer is buying, without leaking the target.
type Resource struct {
	Description string `json:"description"`
	Preview     string `json:"preview,omitempty"`
}

// PaymentTerms is one way to settle the link: a chain, a token, an amount
// in display units, and the recipient address.
type PaymentTerms struct {
	ChainID        string `json:"chainId"`
	TokenSymbol    string `json:"tokenSymbol"`
	Amount         string `json:"amount"`
	Recipient      string `json:"recipient"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// Callbacks tells the payer where to poll and where to confirm.
type Callbacks struct {
	Status  string `json:"status"`
	Confirm string `json:"confirm"`
}

// SubscriptionInfo rides along on renewal challenges.
type SubscriptionInfo struct {
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status"`
	NextPaymentDue string `json:"nextPaymentDue,omitempty"`
	PastDue        bool   `json:"pastDue"`
}

// PaymentRequired is the HTTP 402 body.
type PaymentRequired struct {
	Protocol       string            `json:"protocol"`
	PayLinkID      string            `json:"payLinkId"`
	Resource       Resource          `json:"resource"`
	Payment        PaymentTerms      `json:"payment"`
	PaymentOptions []PaymentTerms    `json:"paymentOptions,omitempty"`
	Callbacks      Callbacks         `json:"callbacks"`
	Nonce          string            `json:"nonce"`
	Signature      string            `json:"signature,omitempty"`
	Subscription   *SubscriptionInfo `json:"subscription,omitempty"`
}

// Forbidden is the HTTP 403 body. It also serves 404 with LINK_NOT_FOUND.
type Forbidden struct {
	Protocol      string         `json:"protocol"`
	PayLinkID     string         `json:"payLinkId,omitempty"`
	ReasonCode    ReasonCode     `json:"reasonCode"`
	ReasonMessage string         `json:"reasonMessage"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewForbidden fills the version and a default message for the code.
func NewForbidden(payLinkID string, code ReasonCode, message string) Forbidden {
	if message == "" {
		message = defaultReasonMessage(code)
	}
	return Forbidden{
		Protocol:      ForbiddenVersion,
		PayLinkID:     payLinkID,
		ReasonCode:    code,
		ReasonMessage: message,
	}
}

func defaultReasonMessage(code ReasonCode) string {
	switch code {
	case ReasonLinkNotFound:
		return "payment link not found"
	case ReasonLinkDisabled:
		return "payment link is disabled"
	case ReasonLinkExpired:
		return "payment link has expired"
	case ReasonUsageLimitReached:
		return "payment link usage limit reached"
	case ReasonPaymentUnderpaid:
		return "payment amount is below the required amount"
	case ReasonChainNotSupported:
		return "requested chain is not supported for this link"
	case ReasonSubscriptionCancelled:
		return "subscription is cancelled"
	case ReasonSubscriptionPastDue:
		return "subscription payment is past due"
	case ReasonSubscriptionPaused:
		return "subscription is paused"
	case ReasonSubscriptionExpired:
		return "subscription has expired"
	case ReasonMaxCyclesReached:
		return "subscription reached its maximum billing cycles"
	case ReasonAccessDenied:
		return "access denied"
	default:
		return "internal error"
	}
}

// signPayload fixes the canonical field order for signing. Only the
// challenge identity is covered: link, terms, nonce.
type signPayload struct {
	LinkID  string       `json:"linkId"`
	Payment PaymentTerms `json:"payment"`
	Nonce   string       `json:"nonce"`
}

// Signer authenticates 402 challenges with HMAC-SHA256. A nil Signer
// (no secret configured) leaves challenges unsigned.
type Signer struct {
	secret []byte
}

// NewSigner returns nil when the secret is empty.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret)}
}

// Sign returns the lowercase hex HMAC over the canonical JSON of the
// challenge identity.
func (s *Signer) Sign(linkID string, payment PaymentTerms, nonce string) (string, error) {
	body, err := json.Marshal(signPayload{LinkID: linkID, Payment: payment, Nonce: nonce})
	if err != nil {
		return "", fmt.Errorf("marshal sign payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks a signature produced by Sign in constant time.
func (s *Signer) VerifySignature(linkID string, payment PaymentTerms, nonce, signature string) (bool, error) {
	want, err := s.Sign(linkID, payment, nonce)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(signature)), nil
}
