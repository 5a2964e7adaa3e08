package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"crypto-paylink/internal/domain"
)

type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusDisabled LinkStatus = "disabled"
	LinkStatusExpired  LinkStatus = "expired"
)

// PaymentOption is one accepted way to pay a link: an amount of a token on
// a chain. The link's Price is the default option; PaymentOptions lists
// the alternates.
type PaymentOption struct {
	ChainID     string
	TokenSymbol string
	Amount      string
}

// SubscriptionConfig enables recurring billing on a link.
type SubscriptionConfig struct {
	Interval         BillingInterval
	IntervalCount    int
	GracePeriodHours int
	TrialDays        int
	MaxCycles        int // 0 = unlimited
}

// InstallmentConfig enables split payments on a link.
type InstallmentConfig struct {
	TotalInstallments  int
	DownPaymentPercent float64
	IntervalDays       int
	GracePeriodDays    int
}

// ReferralConfig enables the referral program on a link.
type ReferralConfig struct {
	Enabled           bool
	CommissionPercent float64
}

// PayLink gates one protected resource behind an on-chain payment.
type PayLink struct {
	ID               string
	TargetURL        string // where a paid viewer is redirected
	Description      string
	Preview          string // shown to unpaid viewers
	RecipientAddress string // where funds must arrive
	Price            PaymentOption
	PaymentOptions   []PaymentOption
	Status           LinkStatus
	UsedCount        int
	MaxUses          int // 0 = unlimited
	ExpiresAt        *time.Time
	MultiUse         bool // every payer redeems independently
	Subscription     *SubscriptionConfig
	Installment      *InstallmentConfig
	Referral         *ReferralConfig
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPayLink validates and builds a link. Subscription and installment
// modes are mutually exclusive, and neither combines with multi-use.
func NewPayLink(id, targetURL, recipient string, price PaymentOption) (*PayLink, error) {
	if id == "" || recipient == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return nil, fmt.Errorf("%w: target url", domain.ErrInvalidArgument)
	}
	if err := validateOption(price); err != nil {
		return nil, err
	}
	now := time.Now()
	return &PayLink{
		ID:               id,
		TargetURL:        targetURL,
		RecipientAddress: recipient,
		Price:            price,
		Status:           LinkStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func validateOption(o PaymentOption) error {
	if o.ChainID == "" || o.TokenSymbol == "" {
		return fmt.Errorf("%w: payment option needs chain and token", domain.ErrInvalidArgument)
	}
	if _, err := ParsePositiveAmount(o.Amount); err != nil {
		return err
	}
	return nil
}

// Validate checks cross-field invariants after optional modes are attached.
func (l *PayLink) Validate() error {
	if l.Subscription != nil && l.Installment != nil {
		return fmt.Errorf("%w: subscription and installment modes are exclusive", domain.ErrInvalidArgument)
	}
	if l.MultiUse && (l.Subscription != nil || l.Installment != nil) {
		return fmt.Errorf("%w: multi-use does not combine with subscription or installment", domain.ErrInvalidArgument)
	}
	if l.MaxUses < 0 {
		return fmt.Errorf("%w: max uses", domain.ErrInvalidArgument)
	}
	seen := map[string]bool{l.Price.ChainID: true}
	for _, o := range l.PaymentOptions {
		if err := validateOption(o); err != nil {
			return err
		}
		if seen[o.ChainID] {
			return fmt.Errorf("%w: duplicate payment option for chain %s", domain.ErrInvalidArgument, o.ChainID)
		}
		seen[o.ChainID] = true
	}
	if s := l.Subscription; s != nil {
		if !s.Interval.Valid() || s.IntervalCount < 1 {
			return fmt.Errorf("%w: subscription interval", domain.ErrInvalidArgument)
		}
		if s.GracePeriodHours < 0 || s.TrialDays < 0 || s.MaxCycles < 0 {
			return fmt.Errorf("%w: subscription config", domain.ErrInvalidArgument)
		}
	}
	if i := l.Installment; i != nil {
		if i.TotalInstallments < 2 {
			return fmt.Errorf("%w: installments need at least 2 parts", domain.ErrInvalidArgument)
		}
		if i.DownPaymentPercent <= 0 || i.DownPaymentPercent >= 100 {
			return fmt.Errorf("%w: down payment percent", domain.ErrInvalidArgument)
		}
		if i.IntervalDays < 1 || i.GracePeriodDays < 0 {
			return fmt.Errorf("%w: installment schedule", domain.ErrInvalidArgument)
		}
	}
	if r := l.Referral; r != nil {
		if r.CommissionPercent <= 0 || r.CommissionPercent > 100 {
			return fmt.Errorf("%w: commission percent", domain.ErrInvalidArgument)
		}
	}
	return nil
}

// Expired reports whether the link is past its deadline or was stored as
// expired. The disabled check always runs before this one.
func (l *PayLink) Expired(now time.Time) bool {
	if l.Status == LinkStatusExpired {
		return true
	}
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// UsageExhausted reports whether a bounded link has been fully redeemed.
func (l *PayLink) UsageExhausted() bool {
	return l.MaxUses > 0 && l.UsedCount >= l.MaxUses
}

// OptionForChain resolves the payment option for a chain; the default
// price wins when the chain matches it. Chain IDs compare case-insensitive.
func (l *PayLink) OptionForChain(chainID string) (PaymentOption, bool) {
	if chainID == "" || strings.EqualFold(chainID, l.Price.ChainID) {
		return l.Price, true
	}
	for _, o := range l.PaymentOptions {
		if strings.EqualFold(o.ChainID, chainID) {
			return o, true
		}
	}
	return PaymentOption{}, false
}
