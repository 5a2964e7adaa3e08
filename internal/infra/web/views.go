package web

import (
	"time"

	"crypto-paylink/internal/domain/model"
)

// View structs shape the JSON the API returns. Domain models stay free of
// transport tags; everything crossing the wire goes through one of these.

type paymentOptionView struct {
	ChainID     string `json:"chainId" validate:"required"`
	TokenSymbol string `json:"tokenSymbol" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
}

type subscriptionConfigView struct {
	Interval         string `json:"interval" validate:"required,oneof=daily weekly monthly yearly"`
	IntervalCount    int    `json:"intervalCount" validate:"min=1"`
	GracePeriodHours int    `json:"gracePeriodHours" validate:"min=0"`
	TrialDays        int    `json:"trialDays" validate:"min=0"`
	MaxCycles        int    `json:"maxCycles" validate:"min=0"`
}

type installmentConfigView struct {
	TotalInstallments  int     `json:"totalInstallments" validate:"min=2"`
	DownPaymentPercent float64 `json:"downPaymentPercent" validate:"gt=0,lt=100"`
	IntervalDays       int     `json:"intervalDays" validate:"min=1"`
	GracePeriodDays    int     `json:"gracePeriodDays" validate:"min=0"`
}

type referralConfigView struct {
	Enabled           bool    `json:"enabled"`
	CommissionPercent float64 `json:"commissionPercent" validate:"gte=0,lte=100"`
}

type linkView struct {
	ID               string                  `json:"id"`
	URL              string                  `json:"url"`
	TargetURL        string                  `json:"targetUrl"`
	Description      string                  `json:"description,omitempty"`
	Preview          string                  `json:"preview,omitempty"`
	RecipientAddress string                  `json:"recipientAddress"`
	Price            paymentOptionView       `json:"price"`
	PaymentOptions   []paymentOptionView     `json:"paymentOptions,omitempty"`
	Status           string                  `json:"status"`
	UsedCount        int                     `json:"usedCount"`
	MaxUses          int                     `json:"maxUses,omitempty"`
	ExpiresAt        *time.Time              `json:"expiresAt,omitempty"`
	MultiUse         bool                    `json:"multiUse"`
	Subscription     *subscriptionConfigView `json:"subscription,omitempty"`
	Installment      *installmentConfigView  `json:"installment,omitempty"`
	Referral         *referralConfigView     `json:"referral,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

func toOptionView(o model.PaymentOption) paymentOptionView {
	return paymentOptionView{ChainID: o.ChainID, TokenSymbol: o.TokenSymbol, Amount: o.Amount}
}

func newLinkView(l *model.PayLink, publicBaseURL string) *linkView {
	v := &linkView{
		ID:               l.ID,
		URL:              publicBaseURL + "/l/" + l.ID,
		TargetURL:        l.TargetURL,
		Description:      l.Description,
		Preview:          l.Preview,
		RecipientAddress: l.RecipientAddress,
		Price:            toOptionView(l.Price),
		Status:           string(l.Status),
		UsedCount:        l.UsedCount,
		MaxUses:          l.MaxUses,
		ExpiresAt:        l.ExpiresAt,
		MultiUse:         l.MultiUse,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
	for _, o := range l.PaymentOptions {
		v.PaymentOptions = append(v.PaymentOptions, toOptionView(o))
	}
	if l.Subscription != nil {
		v.Subscription = &subscriptionConfigView{
			Interval:         string(l.Subscription.Interval),
			IntervalCount:    l.Subscription.IntervalCount,
			GracePeriodHours: l.Subscription.GracePeriodHours,
			TrialDays:        l.Subscription.TrialDays,
			MaxCycles:        l.Subscription.MaxCycles,
		}
	}
	if l.Installment != nil {
		v.Installment = &installmentConfigView{
			TotalInstallments:  l.Installment.TotalInstallments,
			DownPaymentPercent: l.Installment.DownPaymentPercent,
			IntervalDays:       l.Installment.IntervalDays,
			GracePeriodDays:    l.Installment.GracePeriodDays,
		}
	}
	if l.Referral != nil {
		v.Referral = &referralConfigView{
			Enabled:           l.Referral.Enabled,
			CommissionPercent: l.Referral.CommissionPercent,
		}
	}
	return v
}

type subscriptionView struct {
	ID                 string     `json:"id"`
	PayLinkID          string     `json:"payLinkId"`
	SubscriberAddress  string     `json:"subscriberAddress"`
	Status             string     `json:"status"`
	TrialEndsAt        *time.Time `json:"trialEndsAt,omitempty"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	NextPaymentDue     time.Time  `json:"nextPaymentDue"`
	CycleCount         int        `json:"cycleCount"`
	CreatedAt          time.Time  `json:"createdAt"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
}

func newSubscriptionView(s *model.Subscription) *subscriptionView {
	return &subscriptionView{
		ID:                 s.ID,
		PayLinkID:          s.PayLinkID,
		SubscriberAddress:  s.SubscriberAddress,
		Status:             string(s.Status),
		TrialEndsAt:        s.TrialEndsAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		NextPaymentDue:     s.NextPaymentDue,
		CycleCount:         s.CycleCount,
		CreatedAt:          s.CreatedAt,
		CancelledAt:        s.CancelledAt,
	}
}

type planView struct {
	ID                    string     `json:"id"`
	PayLinkID             string     `json:"payLinkId"`
	BuyerAddress          string     `json:"buyerAddress"`
	Status                string     `json:"status"`
	TotalAmount           string     `json:"totalAmount"`
	PaidAmount            string     `json:"paidAmount"`
	InstallmentAmounts    []string   `json:"installmentAmounts"`
	TotalInstallments     int        `json:"totalInstallments"`
	CompletedInstallments int        `json:"completedInstallments"`
	NextInstallmentNumber int        `json:"nextInstallmentNumber"`
	NextDueDate           time.Time  `json:"nextDueDate"`
	SuspendReason         string     `json:"suspendReason,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	ActivatedAt           *time.Time `json:"activatedAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	CancelledAt           *time.Time `json:"cancelledAt,omitempty"`
}

func newPlanView(p *model.InstallmentPlan) *planView {
	return &planView{
		ID:                    p.ID,
		PayLinkID:             p.PayLinkID,
		BuyerAddress:          p.BuyerAddress,
		Status:                string(p.Status),
		TotalAmount:           p.TotalAmount,
		PaidAmount:            p.PaidAmount,
		InstallmentAmounts:    p.InstallmentAmounts,
		TotalInstallments:     p.TotalInstallments,
		CompletedInstallments: p.CompletedInstallments,
		NextInstallmentNumber: p.NextInstallmentNumber,
		NextDueDate:           p.NextDueDate,
		SuspendReason:         p.SuspendReason,
		CreatedAt:             p.CreatedAt,
		ActivatedAt:           p.ActivatedAt,
		CompletedAt:           p.CompletedAt,
		CancelledAt:           p.CancelledAt,
	}
}

type referralView struct {
	ID                 string    `json:"id"`
	PayLinkID          string    `json:"payLinkId"`
	ReferrerAddress    string    `json:"referrerAddress"`
	Code               string    `json:"code"`
	Status             string    `json:"status"`
	TotalReferrals     int       `json:"totalReferrals"`
	ConfirmedReferrals int       `json:"confirmedReferrals"`
	TotalEarned        string    `json:"totalEarned"`
	PendingAmount      string    `json:"pendingAmount"`
	PaidAmount         string    `json:"paidAmount"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newReferralView(ref *model.Referral) *referralView {
	return &referralView{
		ID:                 ref.ID,
		PayLinkID:          ref.PayLinkID,
		ReferrerAddress:    ref.ReferrerAddress,
		Code:               ref.Code,
		Status:             string(ref.Status),
		TotalReferrals:     ref.TotalReferrals,
		ConfirmedReferrals: ref.ConfirmedReferrals,
		TotalEarned:        ref.TotalEarned,
		PendingAmount:      ref.PendingAmount,
		PaidAmount:         ref.PaidAmount,
		CreatedAt:          ref.CreatedAt,
	}
}

type commissionView struct {
	ID                string     `json:"id"`
	ReferralID        string     `json:"referralId"`
	PaymentID         string     `json:"paymentId"`
	ReferrerAddress   string     `json:"referrerAddress"`
	ReferredAddress   string     `json:"referredAddress"`
	CommissionAmount  string     `json:"commissionAmount"`
	CommissionPercent float64    `json:"commissionPercent"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	ConfirmedAt       *time.Time `json:"confirmedAt,omitempty"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
}

func newCommissionView(c *model.ReferralCommission) *commissionView {
	return &commissionView{
		ID:                c.ID,
		ReferralID:        c.ReferralID,
		PaymentID:         c.PaymentID,
		ReferrerAddress:   c.ReferrerAddress,
		ReferredAddress:   c.ReferredAddress,
		CommissionAmount:  c.CommissionAmount,
		CommissionPercent: c.CommissionPercent,
		Status:            string(c.Status),
		CreatedAt:         c.CreatedAt,
		ConfirmedAt:       c.ConfirmedAt,
		PaidAt:            c.PaidAt,
	}
}
