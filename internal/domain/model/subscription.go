package model

import (
	"fmt"
	"time"

	"crypto-paylink/internal/domain"
)

type BillingInterval string

const (
	BillingDaily   BillingInterval = "daily"
	BillingWeekly  BillingInterval = "weekly"
	BillingMonthly BillingInterval = "monthly"
	BillingYearly  BillingInterval = "yearly"
)

func (b BillingInterval) Valid() bool {
	switch b {
	case BillingDaily, BillingWeekly, BillingMonthly, BillingYearly:
		return true
	}
	return false
}

// NextBillingDate advances a date by count intervals using calendar units.
// time.AddDate keeps Go's native overflow normalization: Jan 31 + 1 month
// rolls into early March rather than clamping to Feb's last day. Billing
// schedules rely on that behavior staying put.
func NextBillingDate(from time.Time, interval BillingInterval, count int) time.Time {
	if count < 1 {
		count = 1
	}
	switch interval {
	case BillingDaily:
		return from.AddDate(0, 0, count)
	case BillingWeekly:
		return from.AddDate(0, 0, 7*count)
	case BillingYearly:
		return from.AddDate(count, 0, 0)
	default: // monthly
		return from.AddDate(0, count, 0)
	}
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription is one subscriber's recurring entitlement to a link.
type Subscription struct {
	ID                 string
	PayLinkID          string
	SubscriberAddress  string
	Status             SubscriptionStatus
	TrialEndsAt        *time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	NextPaymentDue     time.Time
	CycleCount         int // paid cycles; only ever increases
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CancelledAt        *time.Time
}

// NewSubscription starts a subscription lifecycle at now. The first period
// opens immediately; payment is due at once unless a trial pushes the due
// date out.
func NewSubscription(id, payLinkID, subscriber string, cfg SubscriptionConfig, now time.Time) (*Subscription, error) {
	if id == "" || payLinkID == "" || subscriber == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !cfg.Interval.Valid() || cfg.IntervalCount < 1 {
		return nil, fmt.Errorf("%w: billing interval", domain.ErrInvalidArgument)
	}
	s := &Subscription{
		ID:                 id,
		PayLinkID:          payLinkID,
		SubscriberAddress:  subscriber,
		Status:             SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   NextBillingDate(now, cfg.Interval, cfg.IntervalCount),
		NextPaymentDue:     now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if cfg.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, cfg.TrialDays)
		s.TrialEndsAt = &trialEnd
		s.NextPaymentDue = trialEnd
	}
	return s, nil
}

// Terminal reports whether no further transitions are possible.
func (s *Subscription) Terminal() bool {
	return s.Status == SubscriptionCancelled || s.Status == SubscriptionExpired
}

// ProcessPayment applies one confirmed payment. The first paid cycle buys
// the period opened at creation time; renewals roll the window forward
// anchored at CurrentPeriodEnd, never at "now", so paying early or late
// inside the grace window does not shift the billing calendar. A past_due
// subscription recovers to active. Reaching MaxCycles expires it.
func (s *Subscription) ProcessPayment(cfg SubscriptionConfig, now time.Time) error {
	if s.Terminal() {
		return fmt.Errorf("%w: subscription is %s", domain.ErrInvalidTransition, s.Status)
	}
	if s.CycleCount == 0 {
		s.NextPaymentDue = s.CurrentPeriodEnd
	} else {
		s.CurrentPeriodStart = s.CurrentPeriodEnd
		s.CurrentPeriodEnd = NextBillingDate(s.CurrentPeriodStart, cfg.Interval, cfg.IntervalCount)
		s.NextPaymentDue = s.CurrentPeriodEnd
	}
	s.CycleCount++
	s.Status = SubscriptionActive
	if cfg.MaxCycles > 0 && s.CycleCount >= cfg.MaxCycles {
		s.Status = SubscriptionExpired
	}
	s.UpdatedAt = now
	return nil
}

// Cancel ends the subscription permanently.
func (s *Subscription) Cancel(now time.Time) error {
	if s.Terminal() {
		return fmt.Errorf("%w: subscription is %s", domain.ErrInvalidTransition, s.Status)
	}
	s.Status = SubscriptionCancelled
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// Pause holds an active subscription without ending it.
func (s *Subscription) Pause(now time.Time) error {
	if s.Status != SubscriptionActive {
		return fmt.Errorf("%w: pause requires active, have %s", domain.ErrInvalidTransition, s.Status)
	}
	s.Status = SubscriptionPaused
	s.UpdatedAt = now
	return nil
}

// Resume reactivates a paused subscription.
func (s *Subscription) Resume(now time.Time) error {
	if s.Status != SubscriptionPaused {
		return fmt.Errorf("%w: resume requires paused, have %s", domain.ErrInvalidTransition, s.Status)
	}
	s.Status = SubscriptionActive
	s.UpdatedAt = now
	return nil
}

// MarkPastDue is the sweep transition for a payment that outlived its
// grace window. Only an active subscription moves.
func (s *Subscription) MarkPastDue(now time.Time) error {
	if s.Status != SubscriptionActive {
		return fmt.Errorf("%w: past_due requires active, have %s", domain.ErrInvalidTransition, s.Status)
	}
	s.Status = SubscriptionPastDue
	s.UpdatedAt = now
	return nil
}

// SubscriptionAccess is the outcome of the access predicate.
type SubscriptionAccess struct {
	HasAccess         bool
	RequiresPayment   bool
	Status            SubscriptionStatus
	NextPaymentDue    time.Time
	GracePeriodEndsAt time.Time
}

// AccessState decides whether the subscriber may pass right now.
// Cancelled, expired and paused always deny. During a trial access is
// free. After NextPaymentDue access survives for gracePeriodHours with
// RequiresPayment raised; past the grace window access is denied until a
// renewal payment lands.
func (s *Subscription) AccessState(now time.Time, gracePeriodHours int) SubscriptionAccess {
	out := SubscriptionAccess{
		Status:            s.Status,
		NextPaymentDue:    s.NextPaymentDue,
		GracePeriodEndsAt: s.NextPaymentDue.Add(time.Duration(gracePeriodHours) * time.Hour),
	}
	switch s.Status {
	case SubscriptionCancelled, SubscriptionExpired, SubscriptionPaused:
		return out
	}
	if s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt) {
		out.HasAccess = true
		return out
	}
	if !now.Before(s.NextPaymentDue) {
		out.RequiresPayment = true
		out.HasAccess = now.Before(out.GracePeriodEndsAt)
		return out
	}
	out.HasAccess = true
	return out
}
