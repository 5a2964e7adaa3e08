package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"crypto-paylink/internal/domain"
)

type ReferralStatus string

const (
	ReferralActive   ReferralStatus = "active"
	ReferralDisabled ReferralStatus = "disabled"
)

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionConfirmed CommissionStatus = "confirmed"
	CommissionPaid      CommissionStatus = "paid"
	CommissionExpired   CommissionStatus = "expired"
)

// Referral code alphabet avoids lookalike characters (0/O, 1/I/l).
const ReferralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratedCodeLength is the length of machine-generated codes.
const GeneratedCodeLength = 8

var referralCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,16}$`)

// ValidReferralCode reports whether a caller-supplied code is acceptable.
func ValidReferralCode(code string) bool {
	return referralCodePattern.MatchString(code)
}

// NormalizeReferralCode maps a code to its canonical stored form. Codes
// are unique case-insensitively, so everything compares uppercased.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Referral is one referrer's code on one link, with running aggregates.
// PendingAmount mirrors the sum of confirmed-but-unpaid commissions;
// MarkCommissionPaid moves value from PendingAmount to PaidAmount so the
// combined total is conserved.
type Referral struct {
	ID                 string
	Code               string // canonical uppercase
	ReferrerAddress    string
	PayLinkID          string
	TotalReferrals     int
	ConfirmedReferrals int
	TotalEarned        string
	PendingAmount      string
	PaidAmount         string
	Status             ReferralStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewReferral builds an active referral with zeroed aggregates. The code
// must already be validated and normalized.
func NewReferral(id, payLinkID, referrer, code string) (*Referral, error) {
	if id == "" || payLinkID == "" || referrer == "" || code == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Referral{
		ID:              id,
		Code:            code,
		ReferrerAddress: referrer,
		PayLinkID:       payLinkID,
		TotalEarned:     "0",
		PendingAmount:   "0",
		PaidAmount:      "0",
		Status:          ReferralActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsSelfReferral rejects referrers earning on their own payments.
// Addresses compare case-insensitively across chains.
func (r *Referral) IsSelfReferral(payerAddress string) bool {
	return payerAddress != "" && strings.EqualFold(r.ReferrerAddress, payerAddress)
}

// RecordReferral counts one referred payment, confirmed or not.
func (r *Referral) RecordReferral(now time.Time) {
	r.TotalReferrals++
	r.UpdatedAt = now
}

// ApplyEarned folds a newly confirmed commission amount into aggregates.
func (r *Referral) ApplyEarned(amount string, now time.Time) error {
	earned, err := AddAmounts(r.TotalEarned, amount)
	if err != nil {
		return err
	}
	pending, err := AddAmounts(r.PendingAmount, amount)
	if err != nil {
		return err
	}
	r.TotalEarned = earned
	r.PendingAmount = pending
	r.ConfirmedReferrals++
	r.UpdatedAt = now
	return nil
}

// SettlePayout moves a paid-out commission amount from pending to paid.
// TotalEarned is untouched, so pending+paid stays conserved.
func (r *Referral) SettlePayout(amount string, now time.Time) error {
	pending, err := SubAmounts(r.PendingAmount, amount)
	if err != nil {
		return err
	}
	paid, err := AddAmounts(r.PaidAmount, amount)
	if err != nil {
		return err
	}
	r.PendingAmount = pending
	r.PaidAmount = paid
	r.UpdatedAt = now
	return nil
}

// ReferralCommission is the ledger entry for one referred payment. The
// percent is snapshotted so later link edits cannot rewrite history.
type ReferralCommission struct {
	ID                string
	ReferralID        string
	PaymentID         string
	ReferrerAddress   string
	ReferredAddress   string
	CommissionAmount  string
	CommissionPercent float64
	Status            CommissionStatus
	CreatedAt         time.Time
	ConfirmedAt       *time.Time
	PaidAt            *time.Time
}

// NewCommission computes and records the commission for a payment.
func NewCommission(id string, r *Referral, paymentID, referredAddress, paymentAmount string, percent float64) (*ReferralCommission, error) {
	if id == "" || r == nil || paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	amount, err := PercentOf(paymentAmount, percent)
	if err != nil {
		return nil, err
	}
	return &ReferralCommission{
		ID:                id,
		ReferralID:        r.ID,
		PaymentID:         paymentID,
		ReferrerAddress:   r.ReferrerAddress,
		ReferredAddress:   referredAddress,
		CommissionAmount:  amount,
		CommissionPercent: percent,
		Status:            CommissionPending,
		CreatedAt:         time.Now(),
	}, nil
}

// Confirm moves a pending commission forward once its payment confirmed.
func (c *ReferralCommission) Confirm(now time.Time) error {
	if c.Status != CommissionPending {
		return fmt.Errorf("%w: confirm requires pending, have %s", domain.ErrInvalidTransition, c.Status)
	}
	c.Status = CommissionConfirmed
	c.ConfirmedAt = &now
	return nil
}

// MarkPaid settles a confirmed commission to the referrer.
func (c *ReferralCommission) MarkPaid(now time.Time) error {
	if c.Status != CommissionConfirmed {
		return fmt.Errorf("%w: payout requires confirmed, have %s", domain.ErrInvalidTransition, c.Status)
	}
	c.Status = CommissionPaid
	c.PaidAt = &now
	return nil
}

// Expire abandons a pending commission whose payment never confirmed.
func (c *ReferralCommission) Expire() error {
	if c.Status != CommissionPending {
		return fmt.Errorf("%w: expire requires pending, have %s", domain.ErrInvalidTransition, c.Status)
	}
	c.Status = CommissionExpired
	return nil
}
