//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"crypto-paylink/internal/domain"
)

// --- Amount Tests ---

func TestCompareAmounts(t *testing.T) {
	t.Run("should compare numerically, not lexicographically", func(t *testing.T) {
		// "0.0005" < "0.001" even though it sorts after it as a string
		c, err := CompareAmounts("0.0005", "0.001")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if c != -1 {
			t.Errorf("expected -1, but got %d", c)
		}
	})

	t.Run("should treat different scales of the same value as equal", func(t *testing.T) {
		c, err := CompareAmounts("1.50", "1.5")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if c != 0 {
			t.Errorf("expected 0, but got %d", c)
		}
	})

	t.Run("should reject malformed amounts", func(t *testing.T) {
		if _, err := CompareAmounts("abc", "1"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
		if _, err := CompareAmounts("", "1"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty amount, but got %v", err)
		}
	})
}

func TestAddSubAmounts(t *testing.T) {
	t.Run("should add with fixed precision and trimmed zeros", func(t *testing.T) {
		sum, err := AddAmounts("0.1", "0.2")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if sum != "0.3" {
			t.Errorf("expected 0.3, but got %s", sum)
		}
	})

	t.Run("should trim trailing zeros on subtraction", func(t *testing.T) {
		diff, err := SubAmounts("1.50", "0.50")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if diff != "1" {
			t.Errorf("expected 1, but got %s", diff)
		}
	})
}

func TestPercentOf(t *testing.T) {
	t.Run("should compute commission with trailing zeros stripped", func(t *testing.T) {
		got, err := PercentOf("0.05", 10)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got != "0.005" {
			t.Errorf("expected 0.005, but got %s", got)
		}
	})
}

// --- PayLink Tests ---

func testPrice() PaymentOption {
	return PaymentOption{ChainID: "ethereum", TokenSymbol: "ETH", Amount: "0.001"}
}

func TestNewPayLink(t *testing.T) {
	t.Run("should create an active link", func(t *testing.T) {
		l, err := NewPayLink("lnk-1", "https://example.com/protected", "0xabc", testPrice())
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if l.Status != LinkStatusActive {
			t.Errorf("expected status active, but got %s", l.Status)
		}
		if l.UsedCount != 0 {
			t.Errorf("expected zero used count, but got %d", l.UsedCount)
		}
	})

	t.Run("should reject a non-positive price", func(t *testing.T) {
		_, err := NewPayLink("lnk-1", "https://example.com", "0xabc", PaymentOption{ChainID: "ethereum", TokenSymbol: "ETH", Amount: "0"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
	})

	t.Run("should reject subscription combined with installment", func(t *testing.T) {
		l, _ := NewPayLink("lnk-1", "https://example.com", "0xabc", testPrice())
		l.Subscription = &SubscriptionConfig{Interval: BillingMonthly, IntervalCount: 1}
		l.Installment = &InstallmentConfig{TotalInstallments: 4, DownPaymentPercent: 25, IntervalDays: 30}
		if err := l.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
	})

	t.Run("should reject duplicate payment option chains", func(t *testing.T) {
		l, _ := NewPayLink("lnk-1", "https://example.com", "0xabc", testPrice())
		l.PaymentOptions = []PaymentOption{{ChainID: "ethereum", TokenSymbol: "USDC", Amount: "2.5"}}
		if err := l.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
	})
}

func TestPayLinkExpiredAndUsage(t *testing.T) {
	now := time.Now()

	t.Run("should report expiry from deadline", func(t *testing.T) {
		l, _ := NewPayLink("lnk-1", "https://example.com", "0xabc", testPrice())
		past := now.Add(-time.Hour)
		l.ExpiresAt = &past
		if !l.Expired(now) {
			t.Error("expected link to be expired")
		}
	})

	t.Run("should report usage exhaustion only when bounded", func(t *testing.T) {
		l, _ := NewPayLink("lnk-1", "https://example.com", "0xabc", testPrice())
		l.UsedCount = 10
		if l.UsageExhausted() {
			t.Error("unbounded link must never exhaust")
		}
		l.MaxUses = 10
		if !l.UsageExhausted() {
			t.Error("expected exhaustion at max uses")
		}
	})

	t.Run("should resolve payment options case-insensitively", func(t *testing.T) {
		l, _ := NewPayLink("lnk-1", "https://example.com", "0xabc", testPrice())
		l.PaymentOptions = []PaymentOption{{ChainID: "solana", TokenSymbol: "SOL", Amount: "0.2"}}
		if o, ok := l.OptionForChain("SOLANA"); !ok || o.TokenSymbol != "SOL" {
			t.Errorf("expected solana option, got %+v ok=%v", o, ok)
		}
		if o, ok := l.OptionForChain(""); !ok || o.TokenSymbol != "ETH" {
			t.Errorf("expected default price, got %+v ok=%v", o, ok)
		}
		if _, ok := l.OptionForChain("tron"); ok {
			t.Error("expected miss for unknown chain")
		}
	})
}

// --- Subscription Tests ---

func monthlyCfg() SubscriptionConfig {
	return SubscriptionConfig{Interval: BillingMonthly, IntervalCount: 1, GracePeriodHours: 24}
}

func TestNextBillingDate(t *testing.T) {
	t.Run("should keep native month overflow normalization", func(t *testing.T) {
		from := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)
		got := NextBillingDate(from, BillingMonthly, 1)
		// Feb 31 does not exist; AddDate normalizes into March
		want := time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("expected %s, but got %s", want, got)
		}
	})

	t.Run("should normalize into March 2nd on leap years", func(t *testing.T) {
		from := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
		got := NextBillingDate(from, BillingMonthly, 1)
		want := time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("expected %s, but got %s", want, got)
		}
	})

	t.Run("should advance weekly by seven days per count", func(t *testing.T) {
		from := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
		got := NextBillingDate(from, BillingWeekly, 2)
		if got.Sub(from) != 14*24*time.Hour {
			t.Errorf("expected 14 days, but got %s", got.Sub(from))
		}
	})
}

func TestSubscriptionProcessPayment(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	t.Run("first payment buys the creation period without rolling", func(t *testing.T) {
		s, err := NewSubscription("sub-1", "lnk-1", "0xpayer", monthlyCfg(), now)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !s.NextPaymentDue.Equal(now) {
			t.Errorf("expected payment due immediately, but got %s", s.NextPaymentDue)
		}
		if err := s.ProcessPayment(monthlyCfg(), now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.CycleCount != 1 {
			t.Errorf("expected cycle 1, but got %d", s.CycleCount)
		}
		if !s.NextPaymentDue.Equal(s.CurrentPeriodEnd) {
			t.Errorf("expected next due at period end %s, but got %s", s.CurrentPeriodEnd, s.NextPaymentDue)
		}
		if !s.CurrentPeriodStart.Equal(now) {
			t.Errorf("first payment must not roll the period, start moved to %s", s.CurrentPeriodStart)
		}
	})

	t.Run("renewal rolls from period end, not from now", func(t *testing.T) {
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", monthlyCfg(), now)
		_ = s.ProcessPayment(monthlyCfg(), now)
		firstEnd := s.CurrentPeriodEnd

		// renew two days late, inside grace
		late := firstEnd.Add(48 * time.Hour)
		if err := s.ProcessPayment(monthlyCfg(), late); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !s.CurrentPeriodStart.Equal(firstEnd) {
			t.Errorf("expected new period anchored at %s, but got %s", firstEnd, s.CurrentPeriodStart)
		}
		if s.CycleCount != 2 {
			t.Errorf("expected cycle 2, but got %d", s.CycleCount)
		}
	})

	t.Run("renewal clears past_due back to active", func(t *testing.T) {
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", monthlyCfg(), now)
		_ = s.ProcessPayment(monthlyCfg(), now)
		if err := s.MarkPastDue(now.AddDate(0, 1, 2)); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := s.ProcessPayment(monthlyCfg(), now.AddDate(0, 1, 3)); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.Status != SubscriptionActive {
			t.Errorf("expected active, but got %s", s.Status)
		}
	})

	t.Run("reaching max cycles expires the subscription", func(t *testing.T) {
		cfg := monthlyCfg()
		cfg.MaxCycles = 2
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", cfg, now)
		_ = s.ProcessPayment(cfg, now)
		if err := s.ProcessPayment(cfg, now.AddDate(0, 1, 0)); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.Status != SubscriptionExpired {
			t.Errorf("expected expired, but got %s", s.Status)
		}
		if err := s.ProcessPayment(cfg, now.AddDate(0, 2, 0)); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on terminal subscription, but got %v", err)
		}
	})

	t.Run("trial pushes the first due date out", func(t *testing.T) {
		cfg := monthlyCfg()
		cfg.TrialDays = 7
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", cfg, now)
		if s.TrialEndsAt == nil || !s.NextPaymentDue.Equal(*s.TrialEndsAt) {
			t.Errorf("expected due date at trial end, but got %s", s.NextPaymentDue)
		}
	})
}

func TestSubscriptionAccessState(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	t.Run("grace window boundary", func(t *testing.T) {
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", monthlyCfg(), now)
		_ = s.ProcessPayment(monthlyCfg(), now)
		due := s.NextPaymentDue

		at23h := s.AccessState(due.Add(23*time.Hour), 24)
		if !at23h.HasAccess || !at23h.RequiresPayment {
			t.Errorf("23h past due: expected access with payment required, got %+v", at23h)
		}

		at25h := s.AccessState(due.Add(25*time.Hour), 24)
		if at25h.HasAccess {
			t.Error("25h past due: expected access denied")
		}
		if !at25h.RequiresPayment {
			t.Error("25h past due: expected payment still required")
		}
	})

	t.Run("paused and cancelled always deny", func(t *testing.T) {
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", monthlyCfg(), now)
		_ = s.ProcessPayment(monthlyCfg(), now)
		if err := s.Pause(now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.AccessState(now, 24).HasAccess {
			t.Error("paused subscription must deny access")
		}
		if err := s.Resume(now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := s.Cancel(now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.AccessState(now, 24).HasAccess {
			t.Error("cancelled subscription must deny access")
		}
	})

	t.Run("trial grants access before first payment", func(t *testing.T) {
		cfg := monthlyCfg()
		cfg.TrialDays = 7
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", cfg, now)
		a := s.AccessState(now.AddDate(0, 0, 3), cfg.GracePeriodHours)
		if !a.HasAccess || a.RequiresPayment {
			t.Errorf("expected free trial access, got %+v", a)
		}
	})

	t.Run("pause requires active", func(t *testing.T) {
		s, _ := NewSubscription("sub-1", "lnk-1", "0xpayer", monthlyCfg(), now)
		_ = s.Cancel(now)
		if err := s.Pause(now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, but got %v", err)
		}
	})
}

// --- Installment Tests ---

func TestInstallmentSchedule(t *testing.T) {
	t.Run("four equal parts with 25 percent down", func(t *testing.T) {
		amounts, err := InstallmentSchedule("100", 4, 25)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		want := []string{"25.0", "25.0", "25.0", "25.0"}
		if len(amounts) != len(want) {
			t.Fatalf("expected %d amounts, but got %d", len(want), len(amounts))
		}
		for i := range want {
			if amounts[i] != want[i] {
				t.Errorf("amount %d: expected %s, but got %s", i, want[i], amounts[i])
			}
		}
	})

	t.Run("independently rounded shares may drift from the total", func(t *testing.T) {
		amounts, err := InstallmentSchedule("100", 7, 15)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if amounts[0] != "15.0" {
			t.Errorf("expected down payment 15.0, but got %s", amounts[0])
		}
		// 85/6 rounds to 14.16666667 per share; summed they overshoot
		sum := "0"
		for _, a := range amounts {
			var err error
			sum, err = AddAmounts(sum, a)
			if err != nil {
				t.Fatalf("expected no error, but got: %v", err)
			}
		}
		if sum == "100" {
			t.Error("expected rounding drift, but sum matched exactly")
		}
		c, _ := CompareAmounts(sum, "99.9")
		if c < 0 {
			t.Errorf("drift too large, sum is %s", sum)
		}
		c, _ = CompareAmounts(sum, "100.1")
		if c > 0 {
			t.Errorf("drift too large, sum is %s", sum)
		}
	})

	t.Run("rejects fewer than two installments", func(t *testing.T) {
		if _, err := InstallmentSchedule("100", 1, 25); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
	})
}

func TestInstallmentPlanLifecycle(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	cfg := InstallmentConfig{TotalInstallments: 4, DownPaymentPercent: 25, IntervalDays: 30, GracePeriodDays: 5}

	t.Run("full run to completion", func(t *testing.T) {
		p, err := NewInstallmentPlan("pln-1", "lnk-1", "0xbuyer", "100", cfg, now)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.Status != PlanPending {
			t.Fatalf("expected pending, but got %s", p.Status)
		}
		if !p.NextDueDate.Equal(now) {
			t.Errorf("down payment must be due immediately, got %s", p.NextDueDate)
		}

		for i := 0; i < 4; i++ {
			if err := p.ApplyConfirmation("25.0", now.AddDate(0, 0, i*30)); err != nil {
				t.Fatalf("confirmation %d: expected no error, but got: %v", i+1, err)
			}
			if i == 0 && p.Status != PlanActive {
				t.Errorf("first confirmation must activate, got %s", p.Status)
			}
		}
		if p.Status != PlanCompleted {
			t.Errorf("expected completed, but got %s", p.Status)
		}
		if p.PaidAmount != "100" {
			t.Errorf("expected paid amount 100, but got %s", p.PaidAmount)
		}
		if p.CompletedInstallments != 4 {
			t.Errorf("expected 4 completed, but got %d", p.CompletedInstallments)
		}
		if !p.HasAccess() {
			t.Error("completed plan must keep access")
		}
	})

	t.Run("confirmation advances the schedule", func(t *testing.T) {
		p, _ := NewInstallmentPlan("pln-1", "lnk-1", "0xbuyer", "100", cfg, now)
		_ = p.ApplyConfirmation("25.0", now)
		if p.NextInstallmentNumber != 2 {
			t.Errorf("expected next installment 2, but got %d", p.NextInstallmentNumber)
		}
		if !p.NextDueDate.Equal(now.AddDate(0, 0, 30)) {
			t.Errorf("expected due date +30d, but got %s", p.NextDueDate)
		}
	})

	t.Run("payment reactivates a suspended plan", func(t *testing.T) {
		p, _ := NewInstallmentPlan("pln-1", "lnk-1", "0xbuyer", "100", cfg, now)
		_ = p.ApplyConfirmation("25.0", now)
		if err := p.Suspend("payment overdue", now.AddDate(0, 0, 40)); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.HasAccess() {
			t.Error("suspended plan must deny access")
		}
		if err := p.ApplyConfirmation("25.0", now.AddDate(0, 0, 41)); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.Status != PlanActive {
			t.Errorf("expected reactivation, but got %s", p.Status)
		}
		if p.SuspendReason != "" {
			t.Errorf("expected cleared suspend reason, but got %q", p.SuspendReason)
		}
	})

	t.Run("suspend requires active", func(t *testing.T) {
		p, _ := NewInstallmentPlan("pln-1", "lnk-1", "0xbuyer", "100", cfg, now)
		if err := p.Suspend("overdue", now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, but got %v", err)
		}
	})

	t.Run("cancel is blocked only on terminal plans", func(t *testing.T) {
		p, _ := NewInstallmentPlan("pln-1", "lnk-1", "0xbuyer", "100", cfg, now)
		if err := p.Cancel(now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := p.Cancel(now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, but got %v", err)
		}
	})

	t.Run("overdue check includes the grace period", func(t *testing.T) {
		p, _ := NewInstallmentPlan("pln-1", "lnk-1", "0xbuyer", "100", cfg, now)
		_ = p.ApplyConfirmation("25.0", now)
		due := p.NextDueDate
		if p.Overdue(due.AddDate(0, 0, 4)) {
			t.Error("inside grace must not be overdue")
		}
		if !p.Overdue(due.AddDate(0, 0, 6)) {
			t.Error("past grace must be overdue")
		}
	})
}

// --- Referral Tests ---

func TestReferralCodeRules(t *testing.T) {
	t.Run("accepts alphanumeric codes between 4 and 16 chars", func(t *testing.T) {
		for _, ok := range []string{"SAVE", "friend2025", "A1B2C3D4E5F6G7H8"} {
			if !ValidReferralCode(ok) {
				t.Errorf("expected %q to be valid", ok)
			}
		}
	})

	t.Run("rejects short, long and symbol-bearing codes", func(t *testing.T) {
		for _, bad := range []string{"abc", "with-dash", "way_too_long_code_here", "sp ace", ""} {
			if ValidReferralCode(bad) {
				t.Errorf("expected %q to be invalid", bad)
			}
		}
	})

	t.Run("normalizes case for storage", func(t *testing.T) {
		if NormalizeReferralCode(" save10 ") != "SAVE10" {
			t.Error("expected uppercase trimmed code")
		}
	})
}

func TestCommissionLifecycle(t *testing.T) {
	now := time.Now()
	ref, err := NewReferral("ref-1", "lnk-1", "0xreferrer", "SAVE10")
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}

	t.Run("computes commission from snapshot percent", func(t *testing.T) {
		c, err := NewCommission("com-1", ref, "pay-1", "0xbuyer", "0.05", 10)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if c.CommissionAmount != "0.005" {
			t.Errorf("expected 0.005, but got %s", c.CommissionAmount)
		}
		if c.Status != CommissionPending {
			t.Errorf("expected pending, but got %s", c.Status)
		}
	})

	t.Run("strict forward-only transitions", func(t *testing.T) {
		c, _ := NewCommission("com-1", ref, "pay-1", "0xbuyer", "1", 10)
		if err := c.MarkPaid(now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition paying a pending commission, but got %v", err)
		}
		if err := c.Confirm(now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := c.Confirm(now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on double confirm, but got %v", err)
		}
		if err := c.MarkPaid(now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := c.Expire(); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition expiring a paid commission, but got %v", err)
		}
	})

	t.Run("aggregates conserve value across payout", func(t *testing.T) {
		r, _ := NewReferral("ref-2", "lnk-1", "0xreferrer", "BONUS22")
		for i := 0; i < 3; i++ {
			r.RecordReferral(now)
			if err := r.ApplyEarned("0.005", now); err != nil {
				t.Fatalf("expected no error, but got: %v", err)
			}
		}
		if r.PendingAmount != "0.015" {
			t.Errorf("expected pending 0.015, but got %s", r.PendingAmount)
		}
		if err := r.SettlePayout("0.005", now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if r.PendingAmount != "0.01" || r.PaidAmount != "0.005" {
			t.Errorf("expected 0.01 pending / 0.005 paid, but got %s / %s", r.PendingAmount, r.PaidAmount)
		}
		total, _ := AddAmounts(r.PendingAmount, r.PaidAmount)
		if total != r.TotalEarned {
			t.Errorf("conservation broken: pending+paid %s != earned %s", total, r.TotalEarned)
		}
	})

	t.Run("self referral detection is case-insensitive", func(t *testing.T) {
		r, _ := NewReferral("ref-3", "lnk-1", "0xAbCd", "SELFREF1")
		if !r.IsSelfReferral("0xabcd") {
			t.Error("expected self referral match across case")
		}
		if r.IsSelfReferral("0xother") {
			t.Error("expected no match for different address")
		}
	})
}
